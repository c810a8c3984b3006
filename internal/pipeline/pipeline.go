// Package pipeline drives the capture, detect, classify and log loop.
//
// The loop owns four collaborators: a Source of frames, a Locator that finds
// faces, an emotion.Classifier and a RowWriter. An optional Display shows the
// annotated frame and reports key presses. Everything runs on the caller's
// goroutine; a slow classifier slows the whole loop down.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/andresmejia3/moodlog/internal/emotion"
	"github.com/andresmejia3/moodlog/internal/gate"
	"github.com/andresmejia3/moodlog/internal/types"
)

// Face detection parameters.
const (
	ScaleFactor  = 1.1
	MinNeighbors = 5
	MinFaceSize  = 30
)

// QuitKey ends the loop when pressed in the preview window.
const QuitKey = 'q'

var (
	// ErrNoFrame means the source had nothing this time; the loop tries again.
	ErrNoFrame = errors.New("no frame available")
	// ErrSourceExhausted means the source will never produce another frame.
	ErrSourceExhausted = errors.New("video source exhausted")
)

// Frame is one captured image. It is only valid until Close.
type Frame interface {
	// GrayRegion returns the grayscale pixels inside r.
	GrayRegion(r image.Rectangle) (*image.Gray, error)
	// Annotate draws the face box and its label onto the colour frame.
	Annotate(r image.Rectangle, label string)
	Close() error
}

// Source blocks until the next frame is available.
type Source interface {
	Read(ctx context.Context) (Frame, error)
}

// Locator finds candidate faces in a frame.
type Locator interface {
	Locate(f Frame) ([]types.FaceRegion, error)
}

// Display shows a frame and polls the keyboard.
type Display interface {
	Show(f Frame) error
	PollKey() int
}

// RowWriter receives accepted rows in acceptance order.
type RowWriter interface {
	Append(r types.LogRow) error
}

// StopReason tells why Run returned.
type StopReason string

const (
	StopQuit      StopReason = "quit key"
	StopCancelled StopReason = "cancelled"
	StopExhausted StopReason = "source exhausted"
	StopError     StopReason = "error"
)

// Result summarises a run.
type Result struct {
	Frames     int
	EmptyReads int
	Faces      int
	Accepted   int
	Rejected   int
	Reason     StopReason
}

// Pipeline wires the collaborators of one capture session.
type Pipeline struct {
	Source     Source
	Locator    Locator
	Classifier emotion.Classifier
	Rows       RowWriter
	// Display may be nil for headless runs.
	Display Display
	// Gate defaults to a fresh gate opened when Run starts.
	Gate *gate.Gate
	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger *slog.Logger
	// OnFrame is called after every processed frame.
	OnFrame func(Result)
}

func (p *Pipeline) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

// Run loops until the quit key, context cancellation or an exhausted source.
// Errors from the locator, classifier or writer stop the loop and are
// returned together with the counts gathered so far.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	var res Result
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Gate == nil {
		p.Gate = gate.New(p.now(), gate.Interval)
	}

	for {
		if ctx.Err() != nil {
			res.Reason = StopCancelled
			return res, nil
		}

		frame, err := p.Source.Read(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrNoFrame):
			res.EmptyReads++
			p.Logger.Debug("empty read, retrying", "count", res.EmptyReads)
			continue
		case errors.Is(err, ErrSourceExhausted):
			res.Reason = StopExhausted
			return res, nil
		case errors.Is(err, context.Canceled):
			res.Reason = StopCancelled
			return res, nil
		default:
			res.Reason = StopError
			return res, fmt.Errorf("failed to read frame: %w", err)
		}

		quit, err := p.step(ctx, frame, &res)
		frame.Close()
		if err != nil && ctx.Err() != nil {
			// Ctrl+C also reaches the model process, so its failure is part of the shutdown
			p.Logger.Debug("collaborator failed during shutdown", "error", err)
			res.Reason = StopCancelled
			return res, nil
		}
		if err != nil {
			res.Reason = StopError
			return res, err
		}
		res.Frames++
		res.Accepted = p.Gate.Accepted()
		res.Rejected = p.Gate.Rejected()
		if p.OnFrame != nil {
			p.OnFrame(res)
		}
		if quit {
			res.Reason = StopQuit
			return res, nil
		}
	}
}

// step processes one frame and reports whether the quit key was pressed.
func (p *Pipeline) step(ctx context.Context, frame Frame, res *Result) (bool, error) {
	faces, err := p.Locator.Locate(frame)
	if err != nil {
		return false, fmt.Errorf("face detection failed: %w", err)
	}

	for _, r := range faces {
		res.Faces++
		sample, err := p.classify(ctx, frame, r)
		if err != nil {
			return false, err
		}

		frame.Annotate(r, sample.Label)

		if p.Gate.Admit(sample.Time) {
			if err := p.Rows.Append(sample.Row()); err != nil {
				return false, fmt.Errorf("failed to log sample: %w", err)
			}
			p.Logger.Debug("sample logged", "emotion", sample.Label, "confidence", sample.Confidence)
		}
	}

	if p.Display == nil {
		return false, nil
	}
	if err := p.Display.Show(frame); err != nil {
		return false, fmt.Errorf("failed to display frame: %w", err)
	}
	return p.Display.PollKey()&0xFF == QuitKey, nil
}

func (p *Pipeline) classify(ctx context.Context, frame Frame, r types.FaceRegion) (types.EmotionSample, error) {
	face, err := frame.GrayRegion(r)
	if err != nil {
		return types.EmotionSample{}, fmt.Errorf("failed to crop face %v: %w", r, err)
	}
	tensor, err := emotion.Preprocess(face)
	if err != nil {
		return types.EmotionSample{}, fmt.Errorf("failed to preprocess face %v: %w", r, err)
	}
	probs, err := p.Classifier.Classify(ctx, tensor)
	if err != nil {
		return types.EmotionSample{}, fmt.Errorf("classification failed: %w", err)
	}
	return emotion.Decide(probs, p.now())
}
