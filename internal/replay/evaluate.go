package replay

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/balltrack/internal/cycler"
	"github.com/banshee-data/balltrack/internal/geometry"
)

// Evaluation compares reported ball positions against ground truth.
type Evaluation struct {
	Cycles   int     `json:"cycles"`
	Reported int     `json:"reported"`
	RMSE     float64 `json:"rmse"`
	P95Error float64 `json:"p95_error"`
	MaxError float64 `json:"max_error"`
}

// String implements fmt.Stringer.
func (e Evaluation) String() string {
	return fmt.Sprintf("cycles=%d reported=%d (%.1f%%) rmse=%.3fm p95=%.3fm max=%.3fm",
		e.Cycles, e.Reported, e.ReportedRatio()*100, e.RMSE, e.P95Error, e.MaxError)
}

// ReportedRatio is the share of cycles with truth that reported a ball.
func (e Evaluation) ReportedRatio() float64 {
	if e.Cycles == 0 {
		return 0
	}
	return float64(e.Reported) / float64(e.Cycles)
}

// Evaluator is a cycler.Sink scoring each cycle against the truth of the
// frame with the same index. Cycles without truth are skipped.
type Evaluator struct {
	truth []*geometry.Point2

	mu     sync.Mutex
	cycles int
	errors []float64
}

// NewEvaluator scores against the truth carried by frames.
func NewEvaluator(frames []Frame) *Evaluator {
	truth := make([]*geometry.Point2, len(frames))
	for i := range frames {
		truth[i] = frames[i].Truth
	}
	return &Evaluator{truth: truth}
}

// Consume implements cycler.Sink.
func (e *Evaluator) Consume(_ context.Context, record cycler.Record) error {
	if record.Index >= uint64(len(e.truth)) || e.truth[record.Index] == nil {
		return nil
	}
	truth := *e.truth[record.Index]

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cycles++
	if ball := record.Output.BallPosition; ball != nil {
		e.errors = append(e.errors, ball.Position.DistanceTo(truth))
	}
	return nil
}

// Result returns the evaluation so far.
func (e *Evaluator) Result() Evaluation {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := Evaluation{Cycles: e.cycles, Reported: len(e.errors)}
	if len(e.errors) == 0 {
		return result
	}

	sorted := append([]float64(nil), e.errors...)
	sort.Float64s(sorted)
	squared := make([]float64, len(sorted))
	for i, d := range sorted {
		squared[i] = d * d
	}
	result.RMSE = math.Sqrt(stat.Mean(squared, nil))
	result.P95Error = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	result.MaxError = sorted[len(sorted)-1]
	return result
}
