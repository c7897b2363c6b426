package sync

import "time"

// HTTPRequestTimeout is the default timeout for all HTTP requests to external APIs.
const HTTPRequestTimeout = 60 * time.Second

// UserAgent is sent on every outbound request.
const UserAgent = "cin7sync/1.0"

// RecordingDir is where request recordings are written when RecordRequests is set.
const RecordingDir = "testdata/.requests"
