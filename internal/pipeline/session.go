package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Flusher persists everything the loop accepted. It is called exactly once.
type Flusher interface {
	Save() error
}

// RunAndFlush runs p and then flushes f, whichever way the loop ended:
// quit key, cancellation, exhausted source, collaborator error or panic.
// Only a process kill skips the flush.
func RunAndFlush(ctx context.Context, p *Pipeline, f Flusher) (res Result, err error) {
	defer func() {
		if serr := f.Save(); serr != nil {
			err = errors.Join(err, fmt.Errorf("failed to save results: %w", serr))
		}
	}()
	return p.Run(ctx)
}
