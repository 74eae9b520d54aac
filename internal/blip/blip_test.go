package blip

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"vision2lang/describer"
	"vision2lang/imaging"
)

func TestLoadModelConfig(t *testing.T) {
	t.Run("defaults without config.json", func(t *testing.T) {
		cfg, err := loadModelConfig(t.TempDir())
		if err != nil {
			t.Fatalf("Unexpected error %s", err)
		}
		if expected, actual := 384, cfg.ImageSize; expected != actual {
			t.Errorf("Expected image size %d, got %d", expected, actual)
		}
		if expected, actual := int64(30522), cfg.BOSTokenID; expected != actual {
			t.Errorf("Expected BOS id %d, got %d", expected, actual)
		}
		if expected, actual := int64(102), cfg.EOSTokenID; expected != actual {
			t.Errorf("Expected EOS id %d, got %d", expected, actual)
		}
	})

	t.Run("config.json overrides", func(t *testing.T) {
		dir := t.TempDir()
		body := `{"image_size": 224, "bos_token_id": 5}`
		if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}

		cfg, err := loadModelConfig(dir)
		if err != nil {
			t.Fatalf("Unexpected error %s", err)
		}
		if expected, actual := 224, cfg.ImageSize; expected != actual {
			t.Errorf("Expected image size %d, got %d", expected, actual)
		}
		if expected, actual := int64(5), cfg.BOSTokenID; expected != actual {
			t.Errorf("Expected BOS id %d, got %d", expected, actual)
		}
		// untouched fields keep their defaults
		if expected, actual := int64(102), cfg.EOSTokenID; expected != actual {
			t.Errorf("Expected EOS id %d, got %d", expected, actual)
		}
	})

	t.Run("rejects malformed normalization", func(t *testing.T) {
		dir := t.TempDir()
		body := `{"image_mean": [0.5]}`
		if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := loadModelConfig(dir); err == nil {
			t.Fatal("Expected an error")
		}
	})
}

func TestCaptionLoadsModelOnce(t *testing.T) {
	// Empty directories have no vocab.txt, so loading fails before any
	// runtime work happens. The failure must be cached, not retried.
	b := Init(t.TempDir(), t.TempDir())
	img := &imaging.Image{Width: 1, Height: 1, Pix: []uint8{0, 0, 0}}

	_, err1 := b.Caption(t.Context(), img, 0)
	_, err2 := b.Caption(t.Context(), img, 0)
	if err1 == nil || err2 == nil {
		t.Fatal("Expected errors from an empty model directory")
	}

	var ie *describer.InferenceError
	if !errors.As(err1, &ie) {
		t.Fatalf("Expected *describer.InferenceError, got %T", err1)
	}
	if expected, actual := "blip", ie.Backend; expected != actual {
		t.Errorf("Expected backend %q, got %q", expected, actual)
	}

	if expected, actual := 1, b.loads; expected != actual {
		t.Errorf("Expected %d load attempt, got %d", expected, actual)
	}
}

func TestAnswerLoadsSeparateModel(t *testing.T) {
	b := Init(t.TempDir(), t.TempDir())
	img := &imaging.Image{Width: 1, Height: 1, Pix: []uint8{0, 0, 0}}

	b.Caption(t.Context(), img, 0)
	b.Answer(t.Context(), img, "what is this?", 0)
	b.Answer(t.Context(), img, "what is this?", 0)

	if expected, actual := 2, b.loads; expected != actual {
		t.Errorf("Expected %d load attempts, got %d", expected, actual)
	}
}

func TestIsHealthy(t *testing.T) {
	dir := t.TempDir()
	b := Init(dir, dir)
	if b.IsHealthy() {
		t.Error("Expected unhealthy without model files")
	}

	if err := os.WriteFile(filepath.Join(dir, "vision_model.onnx"), []byte{0}, 0o644); err != nil {
		t.Fatal(err)
	}
	if !b.IsHealthy() {
		t.Error("Expected healthy with model files present")
	}
}
