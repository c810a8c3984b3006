// Package vision adapts OpenCV (gocv) to the pipeline collaborators:
// capture, face location, preview window and a DNN emotion classifier.
package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"github.com/andresmejia3/moodlog/internal/pipeline"
	"github.com/andresmejia3/moodlog/internal/types"
	"gocv.io/x/gocv"
)

// WindowTitle is the preview window name.
const WindowTitle = "Real-time Emotion Detection"

// CascadeFile is the Haar model used for face location.
const CascadeFile = "haarcascade_frontalface_default.xml"

var overlayColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}

var errForeignFrame = errors.New("vision: frame was not produced by a vision.Source")

// --- Frames ---

// Frame holds a captured colour image and its grayscale twin.
type Frame struct {
	color   gocv.Mat
	gray    gocv.Mat
	hasGray bool
}

// Gray converts the frame once and caches the result.
func (f *Frame) Gray() gocv.Mat {
	if !f.hasGray {
		f.gray = gocv.NewMat()
		gocv.CvtColor(f.color, &f.gray, gocv.ColorBGRToGray)
		f.hasGray = true
	}
	return f.gray
}

// GrayRegion copies the grayscale pixels inside r, clipped to the frame.
func (f *Frame) GrayRegion(r image.Rectangle) (*image.Gray, error) {
	gray := f.Gray()
	r = r.Intersect(image.Rect(0, 0, gray.Cols(), gray.Rows()))
	if r.Empty() {
		return nil, fmt.Errorf("region outside %dx%d frame", gray.Cols(), gray.Rows())
	}

	roi := gray.Region(r)
	defer roi.Close()
	// Region shares memory with the parent; clone to get a continuous buffer
	face := roi.Clone()
	defer face.Close()

	img, err := face.ToImage()
	if err != nil {
		return nil, err
	}
	g, ok := img.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("unexpected image type %T", img)
	}
	return g, nil
}

// Annotate draws the face box and writes the label 10px above it.
func (f *Frame) Annotate(r image.Rectangle, label string) {
	gocv.Rectangle(&f.color, r, overlayColor, 2)
	gocv.PutText(&f.color, label, image.Pt(r.Min.X, r.Min.Y-10), gocv.FontHersheySimplex, 0.9, overlayColor, 2)
}

// Close releases the native buffers.
func (f *Frame) Close() error {
	if f.hasGray {
		f.gray.Close()
	}
	return f.color.Close()
}

func asFrame(f pipeline.Frame) (*Frame, error) {
	vf, ok := f.(*Frame)
	if !ok {
		return nil, errForeignFrame
	}
	return vf, nil
}

// --- Capture ---

// Source reads frames from a camera or a video file.
type Source struct {
	capture *gocv.VideoCapture
	device  bool
	name    string
}

// OpenSource opens a camera when target is a device index ("0"), otherwise a file or stream URL.
func OpenSource(target string) (*Source, error) {
	if id, err := strconv.Atoi(target); err == nil {
		c, err := gocv.VideoCaptureDevice(id)
		if err != nil {
			return nil, fmt.Errorf("failed to open camera %d: %w", id, err)
		}
		return &Source{capture: c, device: true, name: "camera " + target}, nil
	}

	c, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", target, err)
	}
	return &Source{capture: c, name: target}, nil
}

// Read grabs the next frame. Cameras report a missed grab as pipeline.ErrNoFrame,
// files report the end of the stream as pipeline.ErrSourceExhausted.
func (s *Source) Read(ctx context.Context) (pipeline.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := gocv.NewMat()
	if ok := s.capture.Read(&m); !ok || m.Empty() {
		m.Close()
		if s.device {
			return nil, pipeline.ErrNoFrame
		}
		return nil, pipeline.ErrSourceExhausted
	}
	return &Frame{color: m}, nil
}

// Name describes the source for logs and the archive.
func (s *Source) Name() string { return s.name }

func (s *Source) Close() error { return s.capture.Close() }

// --- Face location ---

// CascadeLocator finds faces with a Haar cascade.
type CascadeLocator struct {
	classifier gocv.CascadeClassifier
	Path       string
}

// NewCascadeLocator loads path, or the first well-known install location when path is empty.
func NewCascadeLocator(path string) (*CascadeLocator, error) {
	candidates := []string{path}
	if path == "" {
		candidates = cascadeCandidates()
	}

	classifier := gocv.NewCascadeClassifier()
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if classifier.Load(p) {
			return &CascadeLocator{classifier: classifier, Path: p}, nil
		}
	}
	classifier.Close()
	return nil, fmt.Errorf("failed to load %s from %v", CascadeFile, candidates)
}

func cascadeCandidates() []string {
	var paths []string
	if dir := os.Getenv("OPENCV_CASCADE_PATH"); dir != "" {
		paths = append(paths, filepath.Join(dir, CascadeFile))
	}
	return append(paths,
		CascadeFile,
		filepath.Join("data", CascadeFile),
		"/usr/local/share/opencv4/haarcascades/"+CascadeFile,
		"/usr/share/opencv4/haarcascades/"+CascadeFile,
		"/opt/homebrew/share/opencv4/haarcascades/"+CascadeFile,
	)
}

// Locate runs the cascade on the grayscale frame.
func (l *CascadeLocator) Locate(f pipeline.Frame) ([]types.FaceRegion, error) {
	vf, err := asFrame(f)
	if err != nil {
		return nil, err
	}
	return l.classifier.DetectMultiScaleWithParams(
		vf.Gray(),
		pipeline.ScaleFactor,
		pipeline.MinNeighbors,
		0,
		image.Pt(pipeline.MinFaceSize, pipeline.MinFaceSize),
		image.Pt(0, 0),
	), nil
}

func (l *CascadeLocator) Close() error { return l.classifier.Close() }

// --- Display ---

// Window shows annotated frames and polls the keyboard.
type Window struct {
	win *gocv.Window
}

func NewWindow() *Window {
	return &Window{win: gocv.NewWindow(WindowTitle)}
}

func (w *Window) Show(f pipeline.Frame) error {
	vf, err := asFrame(f)
	if err != nil {
		return err
	}
	w.win.IMShow(vf.color)
	return nil
}

// PollKey waits 1ms for a key press.
func (w *Window) PollKey() int {
	return w.win.WaitKey(1) & 0xFF
}

func (w *Window) Close() error { return w.win.Close() }
