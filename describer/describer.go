package describer

import (
	"context"
	"fmt"

	"vision2lang/imaging"
)

// DefaultMaxTokens bounds generated caption and answer length when the
// caller does not say otherwise.
const DefaultMaxTokens = 50

// Describer generates natural language about an image using a specific
// vision-language model backend.
type Describer interface {
	// Name returns the name of the backing model, e.g. "blip" or "llava"
	Name() string

	// Caption returns an English description of the image. Generation is
	// capped at maxTokens output tokens; 0 means DefaultMaxTokens.
	Caption(ctx context.Context, img *imaging.Image, maxTokens int) (string, error)

	// Answer returns an answer to a free-form question about the image,
	// bounded the same way as Caption.
	Answer(ctx context.Context, img *imaging.Image, question string, maxTokens int) (string, error)

	// IsHealthy returns whether the backend is ready to serve requests.
	IsHealthy() bool
}

// InferenceError wraps a failure during model construction or generation
// with the backend it came from.
type InferenceError struct {
	Backend string
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s inference failed: %s", e.Backend, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
