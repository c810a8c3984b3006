package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/andresmejia3/moodlog/internal/emotion"
	"github.com/andresmejia3/moodlog/internal/utils" // Using the SafeCommand wrapper
)

// Response status bytes written by python/emotion_worker.py
const (
	statusOK    byte = 0
	statusError byte = 1
)

// maxResponse guards against reading garbage lengths off a broken pipe.
const maxResponse = 1 << 20

// Config controls how the Python model process is started.
type Config struct {
	Python      string // interpreter, defaults to python3
	Script      string // defaults to python/emotion_worker.py
	ReadTimeout time.Duration
}

// PythonWorker runs the emotion model in a child Python process and talks to it
// over stdin (requests) and FD 3 (responses).
type PythonWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	// ReadTimeout bounds every response after the first one. The first answer
	// waits for the model to load (and download on a fresh install).
	ReadTimeout time.Duration
	warm        bool
}

// NewPythonWorker starts the model process. It is stopped when ctx is cancelled.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Script == "" {
		cfg.Script = "python/emotion_worker.py"
	}

	// 1. Initialize the SafeCommand
	py := utils.NewSafeCommand(ctx, cfg.Python, "-u", cfg.Script)

	// Create a side-channel pipe (FD 3) so TensorFlow chatter on stdout never corrupts the protocol
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed request and reads one length-prefixed response.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if d, ok := w.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok && w.ReadTimeout > 0 && w.warm {
		d.SetReadDeadline(time.Now().Add(w.ReadTimeout))
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}
	w.warm = true

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponse {
		return nil, fmt.Errorf("response of %d bytes exceeds limit", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// Classify sends the tensor as big endian float32 values and decodes the probability vector.
func (w *PythonWorker) Classify(ctx context.Context, t emotion.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := make([]byte, 4*len(t.Data))
	for i, v := range t.Data {
		binary.BigEndian.PutUint32(req[i*4:], math.Float32bits(v))
	}

	resp, err := w.Communicate(req)
	if err != nil {
		return nil, fmt.Errorf("worker %d: %w", w.ID, err)
	}
	return parseResponse(resp)
}

// parseResponse decodes [Status] followed by either [N][N x float32] or [MsgLen][Msg].
func parseResponse(resp []byte) ([]float32, error) {
	if len(resp) < 1 {
		return nil, errors.New("empty response from python worker")
	}
	r := bytes.NewReader(resp[1:])

	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("truncated response: %w", err)
	}

	switch resp[0] {
	case statusOK:
		if int(n)*4 != r.Len() {
			return nil, fmt.Errorf("expected %d scores, payload holds %d bytes", n, r.Len())
		}
		probs := make([]float32, n)
		if err := binary.Read(r, binary.BigEndian, probs); err != nil {
			return nil, err
		}
		return probs, nil
	case statusError:
		msg := make([]byte, n)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("truncated error message: %w", err)
		}
		return nil, fmt.Errorf("python worker error: %s", msg)
	default:
		return nil, fmt.Errorf("unknown status byte %d", resp[0])
	}
}

// Close shuts the pipes and waits for the child to exit.
func (w *PythonWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}
