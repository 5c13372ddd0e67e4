package api

import (
	"context"
	"time"

	"github.com/linesmerrill/adr-report-api/completion"
)

type instrumentedCompleter struct {
	provider string
	next     completion.Completer
}

// InstrumentCompleter records every completion call on the request trace
// carried by its context
func InstrumentCompleter(provider string, next completion.Completer) completion.Completer {
	return &instrumentedCompleter{provider: provider, next: next}
}

func (c *instrumentedCompleter) Complete(ctx context.Context, turns []completion.Turn) (string, error) {
	start := time.Now()
	text, err := c.next.Complete(ctx, turns)
	RecordUpstreamCallFromContext(ctx, c.provider, "complete", time.Since(start), err)
	return text, err
}
