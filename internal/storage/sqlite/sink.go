package sqlite

import (
	"context"

	"github.com/banshee-data/balltrack/internal/cycler"
)

// Sink records every cycle of a run as it completes.
func (s *Store) Sink(runID string) cycler.Sink {
	return cycler.SinkFunc(func(ctx context.Context, record cycler.Record) error {
		return s.RecordCycle(ctx, runID, record.Index, record.Input, record.Output)
	})
}
