package enrich

import "github.com/rotisserie/eris"

// Batch-fatal versus routine errors: losing the browsing session kills the
// whole run, while a single lead failing is recorded and skipped.
var (
	// ErrSessionUnavailable means no browsing session could be started or
	// the session died. Nothing further can run in this batch.
	ErrSessionUnavailable = eris.New("enrich: browsing session unavailable")

	// ErrNoWebsite means an operation that needs a confirmed website was
	// asked to run on a lead without one.
	ErrNoWebsite = eris.New("enrich: lead has no website")
)
