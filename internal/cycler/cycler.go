// Package cycler drives a BallFilter once per control-loop tick.
//
// A Source supplies time-aligned cycle inputs, the Cycler runs the filter
// and fans each result out to Sinks (recorders, plotters). The most recent
// record is kept for HTTP readers.
package cycler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/balltrack/internal/ballfilter"
	"github.com/banshee-data/balltrack/internal/debug"
	"github.com/banshee-data/balltrack/internal/monitoring"
	"github.com/banshee-data/balltrack/internal/timeutil"
)

var logf = monitoring.Prefixed("[cycler] ")

// Source yields one CycleInput per call. io.EOF ends the run cleanly.
type Source interface {
	Next(ctx context.Context) (ballfilter.CycleInput, error)
}

// Sink consumes finished cycles. A Sink error stops the run.
type Sink interface {
	Consume(ctx context.Context, record Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, record Record) error

// Consume implements Sink.
func (f SinkFunc) Consume(ctx context.Context, record Record) error {
	return f(ctx, record)
}

// Record is one completed cycle.
type Record struct {
	Index  uint64                 `json:"index"`
	Input  ballfilter.CycleInput  `json:"-"`
	Output ballfilter.CycleOutput `json:"output"`
	Debug  *debug.CycleTrace      `json:"debug,omitempty"`
}

// Cycler owns the filter for the duration of Run.
type Cycler struct {
	filter    *ballfilter.BallFilter
	source    Source
	sinks     []Sink
	clock     timeutil.Clock
	period    time.Duration
	collector *debug.Collector

	mu     sync.RWMutex
	latest *Record
	cycles uint64
}

// Option configures a Cycler.
type Option func(*Cycler)

// WithSinks appends sinks that receive every record in order.
func WithSinks(sinks ...Sink) Option {
	return func(c *Cycler) { c.sinks = append(c.sinks, sinks...) }
}

// WithClock replaces the real clock, mainly for tests.
func WithClock(clock timeutil.Clock) Option {
	return func(c *Cycler) { c.clock = clock }
}

// WithPeriod paces cycles by a ticker. Zero runs cycles back to back.
func WithPeriod(period time.Duration) Option {
	return func(c *Cycler) { c.period = period }
}

// WithDebugCollector brackets each cycle with BeginCycle/Emit and attaches
// the trace to the record. The same collector must be given to the filter.
func WithDebugCollector(collector *debug.Collector) Option {
	return func(c *Cycler) { c.collector = collector }
}

// New creates a Cycler for filter reading from source.
func New(filter *ballfilter.BallFilter, source Source, opts ...Option) *Cycler {
	c := &Cycler{
		filter: filter,
		source: source,
		clock:  timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run cycles until the source is exhausted, ctx is cancelled, or the filter
// or a sink fails. Exhausting the source is not an error.
func (c *Cycler) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if c.period > 0 {
		ticker := c.clock.NewTicker(c.period)
		defer ticker.Stop()
		tick = ticker.C()
	}

	started := c.clock.Now()
	for index := uint64(0); ; index++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		input, err := c.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			logf("source exhausted after %d cycles in %s", index, c.clock.Since(started))
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input for cycle %d: %w", index, err)
		}

		record, err := c.step(index, input)
		if err != nil {
			return err
		}

		for _, sink := range c.sinks {
			if err := sink.Consume(ctx, record); err != nil {
				return fmt.Errorf("sink failed at cycle %d: %w", index, err)
			}
		}
	}
}

func (c *Cycler) step(index uint64, input ballfilter.CycleInput) (Record, error) {
	if c.collector != nil {
		c.collector.BeginCycle(index, input.Now)
	}
	output, err := c.filter.Cycle(input)
	if err != nil {
		if c.collector != nil {
			c.collector.Reset()
		}
		return Record{}, fmt.Errorf("cycle %d: %w", index, err)
	}

	record := Record{Index: index, Input: input, Output: output}
	if c.collector != nil {
		record.Debug = c.collector.Emit()
	}

	c.mu.Lock()
	c.latest = &record
	c.cycles++
	c.mu.Unlock()
	return record, nil
}

// Latest returns a shallow copy of the most recent record. The hypotheses
// in its output are already clones of the filter's state, so readers never
// share memory with the filter, but the slices are shared between readers
// and must be treated as read-only.
func (c *Cycler) Latest() (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return Record{}, false
	}
	return *c.latest, true
}

// Cycles returns how many cycles have completed.
func (c *Cycler) Cycles() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cycles
}

// SliceSource replays a fixed list of inputs.
type SliceSource struct {
	inputs []ballfilter.CycleInput
	next   int
}

// NewSliceSource returns a Source over inputs.
func NewSliceSource(inputs []ballfilter.CycleInput) *SliceSource {
	return &SliceSource{inputs: inputs}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (ballfilter.CycleInput, error) {
	if err := ctx.Err(); err != nil {
		return ballfilter.CycleInput{}, err
	}
	if s.next >= len(s.inputs) {
		return ballfilter.CycleInput{}, io.EOF
	}
	input := s.inputs[s.next]
	s.next++
	return input, nil
}
