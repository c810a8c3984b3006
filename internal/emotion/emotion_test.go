package emotion

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/andresmejia3/moodlog/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformFace(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestPreprocess_ShapeAndRange(t *testing.T) {
	// Checkerboard exercises both ends of the intensity range
	img := image.NewGray(image.Rect(0, 0, 96, 96))
	for y := 0; y < 96; y++ {
		for x := 0; x < 96; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	tensor, err := Preprocess(img)
	require.NoError(t, err)
	require.Len(t, tensor.Data, FaceSize*FaceSize)
	assert.Equal(t, [4]int{1, 48, 48, 1}, tensor.Shape())

	for i, v := range tensor.Data {
		if v < 0 || v > 1 {
			t.Fatalf("value %d out of range: %f", i, v)
		}
	}
	// 2x2 blocks of a checkerboard average to mid grey
	assert.InDelta(t, 127.5/255.0, tensor.Data[0], 0.01)
}

func TestPreprocess_Uniform(t *testing.T) {
	for _, size := range []int{30, 48, 200} {
		tensor, err := Preprocess(uniformFace(size, size, 255))
		require.NoError(t, err)
		for _, v := range tensor.Data {
			assert.InDelta(t, 1.0, v, 1e-6, "size %d", size)
		}
	}
}

func TestPreprocess_SubImageCrop(t *testing.T) {
	// Crops keep their parent's coordinates; bounds must not be assumed to start at 0
	parent := uniformFace(200, 200, 0)
	for y := 100; y < 160; y++ {
		for x := 100; x < 160; x++ {
			parent.SetGray(x, y, color.Gray{Y: 51})
		}
	}
	crop := parent.SubImage(image.Rect(100, 100, 160, 160)).(*image.Gray)

	tensor, err := Preprocess(crop)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, tensor.Data[len(tensor.Data)/2], 1e-6)
}

func TestPreprocess_Empty(t *testing.T) {
	_, err := Preprocess(image.NewGray(image.Rect(0, 0, 0, 0)))
	assert.ErrorIs(t, err, ErrEmptyFace)
}

func TestDecide(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		probs     []float32
		wantLabel string
		wantConf  float64
		wantErr   error
	}{
		{
			name:      "happy wins",
			probs:     []float32{0.01, 0.01, 0.02, 0.9, 0.02, 0.02, 0.02},
			wantLabel: "happy",
			wantConf:  0.9,
		},
		{
			name:      "tie goes to first maximum",
			probs:     []float32{0.1, 0.1, 0.3, 0.1, 0.3, 0.05, 0.05},
			wantLabel: "fear",
			wantConf:  0.3,
		},
		{
			name:      "NaN is never chosen",
			probs:     []float32{float32(math.NaN()), 0, 0, 0, 0, 0, 0.2},
			wantLabel: "neutral",
			wantConf:  0.2,
		},
		{
			name:      "confidence is clamped",
			probs:     []float32{0, 0, 0, 0, 0, 1.2, 0},
			wantLabel: "surprise",
			wantConf:  1,
		},
		{
			name:    "wrong length",
			probs:   []float32{0.5, 0.5},
			wantErr: ErrBadDistribution,
		},
		{
			name:    "all NaN",
			probs:   []float32{nan(), nan(), nan(), nan(), nan(), nan(), nan()},
			wantErr: ErrBadDistribution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Decide(tt.probs, now)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, s.Label)
			assert.InDelta(t, tt.wantConf, s.Confidence, 1e-6)
			assert.Equal(t, now, s.Time)
			assert.True(t, types.ValidLabel(s.Label))
		})
	}
}

func nan() float32 { return float32(math.NaN()) }

func TestSoftmax(t *testing.T) {
	v := Softmax([]float32{1, 2, 3, 4, 1, 2, 3})
	assert.True(t, IsDistribution(v))
	assert.Greater(t, v[3], v[2])

	assert.False(t, IsDistribution([]float32{2, -1, 0, 0, 0, 0, 0}))
	assert.Empty(t, Softmax(nil))
}
