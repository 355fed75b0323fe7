//go:build !cgo

package ai

import (
	"context"
	"errors"
)

// ErrFastEmbedUnavailable is returned when the binary was built without cgo,
// which the ONNX runtime requires.
var ErrFastEmbedUnavailable = errors.New("fastembed: not available in builds without cgo")

type FastEmbedClient struct{}

func NewFastEmbedClient(config *ClientConfig) (*FastEmbedClient, error) {
	return nil, ErrFastEmbedUnavailable
}

func (c *FastEmbedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

func (c *FastEmbedClient) Dim() int { return 0 }

func (c *FastEmbedClient) Close() error { return nil }
