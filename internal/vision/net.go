package vision

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/andresmejia3/moodlog/internal/emotion"
	"gocv.io/x/gocv"
)

// NetClassifier runs an exported emotion model (ONNX, TensorFlow or Caffe) through the OpenCV DNN module.
type NetClassifier struct {
	net  gocv.Net
	path string
}

// NewNetClassifier loads the model at path. config is only needed by formats that split weights and graph.
func NewNetClassifier(path, config string) (*NetClassifier, error) {
	net := gocv.ReadNet(path, config)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load emotion model %s", path)
	}
	return &NetClassifier{net: net, path: path}, nil
}

// Classify feeds the NHWC tensor to the network and returns a probability vector.
func (c *NetClassifier) Classify(ctx context.Context, t emotion.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shape := t.Shape()
	buf := make([]byte, 4*len(t.Data))
	for i, v := range t.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	blob, err := gocv.NewMatWithSizesFromBytes(shape[:], gocv.MatTypeCV32F, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build input blob: %w", err)
	}
	defer blob.Close()

	c.net.SetInput(blob, "")
	out := c.net.Forward("")
	defer out.Close()

	if out.Empty() {
		return nil, fmt.Errorf("%s produced no output", c.path)
	}
	probs := make([]float32, out.Total())
	for i := range probs {
		probs[i] = out.GetFloatAt(0, i)
	}
	if !emotion.IsDistribution(probs) {
		emotion.Softmax(probs)
	}
	return probs, nil
}

func (c *NetClassifier) Close() error { return c.net.Close() }
