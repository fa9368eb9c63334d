package model

import "context"

// EmbedderInterface turns a batch of texts into one fixed-dimensionality
// vector per text.
type EmbedderInterface interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
