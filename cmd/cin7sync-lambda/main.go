package main

import (
	"context"
	"encoding/base64"
	"log"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/homemade/cin7sync/server"
	"github.com/homemade/cin7sync/sync"
	"github.com/homemade/cin7sync/webhook"
)

var app *server.Server

func respond(status int, contentType string, body []byte) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"content-type": contentType,
		},
		Body: string(body),
	}
}

// requestURI rebuilds the decoded path and query that the webhook signs.
func requestURI(req events.APIGatewayV2HTTPRequest, baseURL string) string {
	raw := req.RawPath
	if req.RawQueryString != "" {
		raw += "?" + req.RawQueryString
	}
	return webhook.SignedURI(raw, baseURL)
}

func requestBody(req events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if req.IsBase64Encoded {
		return base64.StdEncoding.DecodeString(req.Body)
	}
	return []byte(req.Body), nil
}

func handleWebhook(req events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	unauthorized := func(msg string) events.APIGatewayV2HTTPResponse {
		return respond(http.StatusUnauthorized, "text/plain; charset=utf-8", []byte(msg))
	}
	verifier, err := app.Verifier()
	if err != nil {
		return unauthorized("Invalid signature")
	}
	body, err := requestBody(req)
	if err != nil {
		return unauthorized("Invalid signature")
	}
	// API Gateway lower-cases header names
	status, text := verifier.Check(
		req.RequestContext.HTTP.Method,
		requestURI(req, verifier.BaseURL),
		body,
		req.Headers[strings.ToLower(webhook.TimestampHeader)],
		req.Headers[strings.ToLower(webhook.SignatureHeader)],
	)
	if status != http.StatusOK {
		return respond(status, "text/plain; charset=utf-8", []byte(text))
	}
	status, resp := app.AcceptWebhook(body)
	return respond(status, "application/json", resp)
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := req.RequestContext.HTTP.Method
	path := strings.TrimSuffix(req.RawPath, "/")

	switch {
	case method == http.MethodGet && (path == "" || path == "/health" || path == "/healthz"):
		status, contentType, body := app.Health(server.WantsPlainText(req.Headers["accept"]))
		return respond(status, contentType, body), nil
	case method == http.MethodPost && path == "/webhook":
		return handleWebhook(req), nil
	case method == http.MethodGet && path == "/sync":
		status, body := app.RunSync(ctx)
		return respond(status, "application/json", body), nil
	default:
		return respond(http.StatusNotFound, "application/json", []byte(`{"ok":false,"error":"not found"}`)), nil
	}
}

func main() {
	cfg, err := sync.LoadConfigFromEnvironment()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := sync.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	app = server.New(sync.LoadConfigFromEnvironment, logger.With(zap.String("runtime", "lambda")))
	lambda.Start(handler)
}
