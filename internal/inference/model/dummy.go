package model

import (
	"math/rand"
	"time"
)

// Dummy simulates a model with realistic CPU/GPU-bound latency. Used by
// benchmarks and load tests.
type Dummy struct {
	BaseLatency    time.Duration
	PerItemLatency time.Duration
	Dim            int

	// Fail forces every Predict call to return this error.
	Fail error
}

// NewDummy returns a dummy model with default latencies.
func NewDummy() *Dummy {
	return &Dummy{
		BaseLatency:    50 * time.Millisecond,
		PerItemLatency: 5 * time.Millisecond,
		Dim:            8,
	}
}

// Name implements EmbeddingModel.
func (d *Dummy) Name() string { return "dummy" }

// Device implements EmbeddingModel.
func (d *Dummy) Device() string { return "cpu" }

// Predict implements EmbeddingModel with a blocking sleep proportional to
// batch size.
func (d *Dummy) Predict(inputs []string) ([][]float64, error) {
	if d.Fail != nil {
		return nil, d.Fail
	}

	total := d.BaseLatency + time.Duration(float64(d.PerItemLatency)*float64(len(inputs))*0.3)
	if total > 0 {
		jitter := time.Duration(rand.Int63n(int64(10 * time.Millisecond)))
		time.Sleep(total + jitter - 5*time.Millisecond)
	}

	out := make([][]float64, len(inputs))
	for i, s := range inputs {
		vec := make([]float64, d.Dim)
		for j := range vec {
			vec[j] = float64(len(s)%7) * 0.1
		}
		out[i] = vec
	}
	return out, nil
}
