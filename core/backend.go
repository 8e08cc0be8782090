package core

import (
	"context"

	"pkt.systems/browserx/schema"
)

// Backend answers chat completions.
type Backend interface {
	Complete(ctx context.Context, req schema.CompletionRequest) (string, error)
}

// PageFetcher downloads link targets for previews.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (schema.PagePreview, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req schema.CompletionRequest) (string, error)

// Complete calls f.
func (f BackendFunc) Complete(ctx context.Context, req schema.CompletionRequest) (string, error) {
	return f(ctx, req)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, url string) (schema.PagePreview, error)

// Fetch calls f.
func (f PageFetcherFunc) Fetch(ctx context.Context, url string) (schema.PagePreview, error) {
	return f(ctx, url)
}
