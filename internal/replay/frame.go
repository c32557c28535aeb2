// Package replay reads, writes and synthesises recorded ball filter input
// as JSON lines, one Frame per control cycle.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/balltrack/internal/ballfilter"
	"github.com/banshee-data/balltrack/internal/geometry"
)

// maxLineBytes bounds a single encoded frame.
const maxLineBytes = 1 << 20

// Frame is one cycle of recorded input. Truth is the ball's actual
// position in the robot frame when known (synthetic scenarios).
type Frame struct {
	Now           time.Time                     `json:"now"`
	CycleDuration time.Duration                 `json:"dt"`
	Odometry      geometry.Isometry2            `json:"odometry"`
	Batches       []ballfilter.MeasurementBatch `json:"batches"`
	Truth         *geometry.Point2              `json:"truth,omitempty"`
}

// Input converts the frame into filter input seen by cameras.
func (f Frame) Input(cameras []ballfilter.CameraView) ballfilter.CycleInput {
	return ballfilter.CycleInput{
		Now:           f.Now,
		CycleDuration: f.CycleDuration,
		Odometry:      f.Odometry,
		Measurements:  f.Batches,
		Cameras:       cameras,
	}
}

// Reader streams frames from JSON lines. It implements cycler.Source.
type Reader struct {
	scanner *bufio.Scanner
	line    int
	cameras []ballfilter.CameraView
	last    Frame
}

// NewReader reads frames from r. Every input it yields carries cameras.
func NewReader(r io.Reader, cameras []ballfilter.CameraView) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &Reader{scanner: scanner, cameras: cameras}
}

// ReadFrame returns the next frame, skipping blank lines. It returns io.EOF
// at the end of input.
func (r *Reader) ReadFrame() (Frame, error) {
	for r.scanner.Scan() {
		r.line++
		data := r.scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			return Frame{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		r.last = f
		return f, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Frame{}, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return Frame{}, io.EOF
}

// Next implements cycler.Source.
func (r *Reader) Next(ctx context.Context) (ballfilter.CycleInput, error) {
	if err := ctx.Err(); err != nil {
		return ballfilter.CycleInput{}, err
	}
	f, err := r.ReadFrame()
	if err != nil {
		return ballfilter.CycleInput{}, err
	}
	return f.Input(r.cameras), nil
}

// Last returns the most recently read frame.
func (r *Reader) Last() Frame { return r.last }

// ReadFrames reads every frame from r.
func ReadFrames(r io.Reader) ([]Frame, error) {
	reader := NewReader(r, nil)
	var frames []Frame
	for {
		f, err := reader.ReadFrame()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
}

// Writer appends frames as JSON lines.
type Writer struct {
	w   *bufio.Writer
	enc *json.Encoder
	n   int
}

// NewWriter writes frames to w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	return &Writer{w: bw, enc: json.NewEncoder(bw)}
}

// Write encodes one frame.
func (w *Writer) Write(f Frame) error {
	if err := w.enc.Encode(f); err != nil {
		return fmt.Errorf("encode frame %d: %w", w.n, err)
	}
	w.n++
	return nil
}

// Frames returns how many frames were written.
func (w *Writer) Frames() int { return w.n }

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Inputs converts frames into filter inputs.
func Inputs(frames []Frame, cameras []ballfilter.CameraView) []ballfilter.CycleInput {
	inputs := make([]ballfilter.CycleInput, len(frames))
	for i, f := range frames {
		inputs[i] = f.Input(cameras)
	}
	return inputs
}
