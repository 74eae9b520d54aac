// Package blip runs BLIP image captioning and visual question answering
// locally through ONNX Runtime. Captioning and VQA use independent model
// exports, each loaded lazily on first use and then shared for the process
// lifetime.
package blip

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"

	"vision2lang/describer"
	"vision2lang/imaging"
)

type Blip struct {
	captionDir string
	vqaDir     string

	captionOnce  sync.Once
	captionModel *handle
	captionErr   error

	vqaOnce  sync.Once
	vqaModel *handle
	vqaErr   error

	loads int // construction attempts, for tests
}

var _ describer.Describer = &Blip{}

// Init prepares the backend without loading anything. captionDir and vqaDir
// point at the ONNX exports of the two models; loading is deferred until
// the first request of each kind.
func Init(captionDir, vqaDir string) *Blip {
	return &Blip{captionDir: captionDir, vqaDir: vqaDir}
}

func (b *Blip) Name() string { return "blip" }

func (b *Blip) IsHealthy() bool {
	_, err := os.Stat(filepath.Join(b.captionDir, "vision_model.onnx"))
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(b.vqaDir, "vision_model.onnx"))
	return err == nil
}

func (b *Blip) Caption(ctx context.Context, img *imaging.Image, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = describer.DefaultMaxTokens
	}

	h, err := b.ensureCaptionModel()
	if err != nil {
		return "", &describer.InferenceError{Backend: b.Name(), Err: err}
	}

	text, err := b.run(ctx, h, img, "", maxTokens)
	if err != nil {
		return "", &describer.InferenceError{Backend: b.Name(), Err: err}
	}
	return text, nil
}

func (b *Blip) Answer(ctx context.Context, img *imaging.Image, question string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = describer.DefaultMaxTokens
	}

	h, err := b.ensureVQAModel()
	if err != nil {
		return "", &describer.InferenceError{Backend: b.Name(), Err: err}
	}

	text, err := b.run(ctx, h, img, question, maxTokens)
	if err != nil {
		return "", &describer.InferenceError{Backend: b.Name(), Err: err}
	}
	return text, nil
}

// run encodes the image, optionally re-encodes it jointly with a question,
// then decodes up to maxTokens of text.
func (b *Blip) run(ctx context.Context, h *handle, img *imaging.Image, question string, maxTokens int) (string, error) {
	enc, err := h.encodeImage(img)
	if err != nil {
		return "", err
	}

	if question != "" {
		enc, err = h.encodeQuestion(question, enc)
		if err != nil {
			return "", err
		}
	}

	return h.generate(ctx, enc, maxTokens)
}

// ensureCaptionModel loads the captioning handle exactly once. Later calls
// observe the same handle or the same construction error.
func (b *Blip) ensureCaptionModel() (*handle, error) {
	b.captionOnce.Do(func() {
		b.loads++
		log.Printf("blip: loading captioning model from %s", b.captionDir)
		b.captionModel, b.captionErr = loadHandle(b.captionDir, false)
	})
	return b.captionModel, b.captionErr
}

func (b *Blip) ensureVQAModel() (*handle, error) {
	b.vqaOnce.Do(func() {
		b.loads++
		log.Printf("blip: loading VQA model from %s", b.vqaDir)
		b.vqaModel, b.vqaErr = loadHandle(b.vqaDir, true)
	})
	return b.vqaModel, b.vqaErr
}
