// Package emotion turns a cropped grayscale face into a model input and a
// model output into an EmotionSample.
package emotion

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/andresmejia3/moodlog/internal/types"
	"golang.org/x/image/draw"
)

// FaceSize is the side of the square input the emotion model was trained on.
const FaceSize = 48

var (
	// ErrBadDistribution is returned when a classifier output cannot be decided on.
	ErrBadDistribution = errors.New("emotion: malformed probability vector")
	// ErrEmptyFace is returned when the cropped face has no pixels.
	ErrEmptyFace = errors.New("emotion: empty face region")
)

// Classifier scores a preprocessed face. The returned slice is aligned to types.Labels.
type Classifier interface {
	Classify(ctx context.Context, t Tensor) ([]float32, error)
}

// Tensor is a single-sample, single-channel FaceSize x FaceSize input (NHWC 1x48x48x1).
type Tensor struct {
	Data []float32
}

// Shape returns the NHWC dimensions of the tensor.
func (t Tensor) Shape() [4]int {
	return [4]int{1, FaceSize, FaceSize, 1}
}

// area averages every source pixel covered by a destination pixel when shrinking.
var area = &draw.Kernel{Support: 0.5, At: func(t float64) float64 {
	if math.Abs(t) < 0.5 {
		return 1
	}
	return 0
}}

// Preprocess resizes the face to FaceSize x FaceSize and scales intensities into [0,1].
func Preprocess(face *image.Gray) (Tensor, error) {
	sr := face.Bounds()
	if sr.Empty() {
		return Tensor{}, ErrEmptyFace
	}

	dst := image.NewGray(image.Rect(0, 0, FaceSize, FaceSize))
	// Box filtering degenerates to nearest neighbour when enlarging, so small
	// faces are interpolated linearly instead.
	var scaler draw.Scaler = area
	if sr.Dx() < FaceSize || sr.Dy() < FaceSize {
		scaler = draw.BiLinear
	}
	scaler.Scale(dst, dst.Bounds(), face, sr, draw.Src, nil)

	data := make([]float32, FaceSize*FaceSize)
	for i, p := range dst.Pix {
		data[i] = float32(p) / 255.0
	}
	return Tensor{Data: data}, nil
}

// Decide picks the most probable label. Ties go to the first maximum.
func Decide(probs []float32, now time.Time) (types.EmotionSample, error) {
	if len(probs) != types.NumLabels {
		return types.EmotionSample{}, fmt.Errorf("%w: got %d values, want %d", ErrBadDistribution, len(probs), types.NumLabels)
	}

	best := -1
	for i, p := range probs {
		if math.IsNaN(float64(p)) {
			continue
		}
		if best == -1 || p > probs[best] {
			best = i
		}
	}
	if best == -1 {
		return types.EmotionSample{}, fmt.Errorf("%w: no finite values", ErrBadDistribution)
	}

	conf := float64(probs[best])
	conf = math.Max(0, math.Min(1, conf))

	return types.EmotionSample{
		Time:       now,
		Label:      types.Labels[best],
		Confidence: conf,
	}, nil
}

// Softmax converts raw logits into a probability distribution in place.
func Softmax(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}
	maxV := v[0]
	for _, x := range v[1:] {
		if x > maxV {
			maxV = x
		}
	}
	var sum float64
	for i, x := range v {
		e := math.Exp(float64(x - maxV))
		v[i] = float32(e)
		sum += e
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / sum)
	}
	return v
}

// IsDistribution reports whether v already looks like softmax output.
func IsDistribution(v []float32) bool {
	var sum float64
	for _, x := range v {
		if x < 0 || x > 1 {
			return false
		}
		sum += float64(x)
	}
	return math.Abs(sum-1) < 1e-3
}
