// Package model defines the embedding model boundary consumed by the
// batching scheduler and the implementations shipped with the server.
package model

// EmbeddingModel is the blocking contract the batcher consumes: one call,
// one forward pass, one fixed-dimension vector per input. Predict must
// never be called from a request-serving goroutine; the batcher hands it
// to a dedicated executor.
type EmbeddingModel interface {
	Predict(inputs []string) ([][]float64, error)
	Name() string
	Device() string
}
