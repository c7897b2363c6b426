package sync

// Record is a source order paired with its extracted identifier.
type Record struct {
	ID     string
	Source Source
}

type DedupeResult struct {
	Candidates []Record
	// Skipped counts records with no extractable identifier.
	Skipped int
	// Duplicates counts later records sharing an identifier already seen.
	Duplicates int
}

// Dedupe keeps the first record for each identifier, trying identifierPaths in order.
func Dedupe(orders []Source, identifierPaths []string) DedupeResult {
	var result DedupeResult
	seen := make(map[string]struct{}, len(orders))
	for _, order := range orders {
		id, ok := order.FirstStringForPaths(identifierPaths)
		if !ok {
			result.Skipped++
			continue
		}
		if _, exists := seen[id]; exists {
			result.Duplicates++
			continue
		}
		seen[id] = struct{}{}
		result.Candidates = append(result.Candidates, Record{ID: id, Source: order})
	}
	return result
}
