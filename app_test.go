package vision2lang

import (
	"context"
	"errors"
	"strings"
	"testing"

	"vision2lang/imaging"
)

type fakeDescriber struct {
	caption    string
	answer     string
	err        error
	captions   int
	answers    int
	lastPrompt string
}

func (f *fakeDescriber) Name() string    { return "fake" }
func (f *fakeDescriber) IsHealthy() bool { return true }

func (f *fakeDescriber) Caption(ctx context.Context, img *imaging.Image, maxTokens int) (string, error) {
	f.captions++
	return f.caption, f.err
}

func (f *fakeDescriber) Answer(ctx context.Context, img *imaging.Image, question string, maxTokens int) (string, error) {
	f.answers++
	f.lastPrompt = question
	return f.answer, f.err
}

type fakeSynthesizer struct {
	path  string
	err   error
	calls int
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text, lang string, slow bool) (string, error) {
	f.calls++
	return f.path, f.err
}

type fakeCapturer struct {
	img *imaging.Image
	err error
}

func (f *fakeCapturer) CaptureFrame() (*imaging.Image, error) {
	return f.img, f.err
}

func smallImage() *imaging.Image {
	return &imaging.Image{Width: 1, Height: 1, Pix: []uint8{10, 20, 30}}
}

func TestDescribeImage(t *testing.T) {
	t.Run("no image", func(t *testing.T) {
		d := &fakeDescriber{caption: "unused"}
		app := NewApp(d, nil, nil, "en", false)

		res := app.DescribeImage(t.Context(), nil, false)
		if expected, actual := MsgUploadFirst, res.Text; expected != actual {
			t.Errorf("Expected %q, got %q", expected, actual)
		}
		if d.captions != 0 {
			t.Error("Model was invoked without an image")
		}
	})

	t.Run("success with audio", func(t *testing.T) {
		d := &fakeDescriber{caption: "a cat on a mat"}
		tts := &fakeSynthesizer{path: "/tmp/v2l-x.mp3"}
		app := NewApp(d, tts, nil, "en", false)

		res := app.DescribeImage(t.Context(), smallImage(), true)
		if expected, actual := "a cat on a mat", res.Text; expected != actual {
			t.Errorf("Expected %q, got %q", expected, actual)
		}
		if expected, actual := tts.path, res.AudioPath; expected != actual {
			t.Errorf("Expected audio path %q, got %q", expected, actual)
		}
	})

	t.Run("audio not requested", func(t *testing.T) {
		tts := &fakeSynthesizer{path: "/tmp/v2l-x.mp3"}
		app := NewApp(&fakeDescriber{caption: "a cat"}, tts, nil, "en", false)

		res := app.DescribeImage(t.Context(), smallImage(), false)
		if res.AudioPath != "" {
			t.Errorf("Expected no audio, got %q", res.AudioPath)
		}
		if tts.calls != 0 {
			t.Error("Synthesizer was invoked without a request for audio")
		}
	})

	t.Run("synthesis failure keeps the text", func(t *testing.T) {
		tts := &fakeSynthesizer{err: errors.New("tts offline")}
		app := NewApp(&fakeDescriber{caption: "a cat"}, tts, nil, "en", false)

		res := app.DescribeImage(t.Context(), smallImage(), true)
		if expected, actual := "a cat", res.Text; expected != actual {
			t.Errorf("Expected %q, got %q", expected, actual)
		}
		if res.AudioPath != "" {
			t.Errorf("Expected no audio after a synthesis failure, got %q", res.AudioPath)
		}
	})

	t.Run("inference failure", func(t *testing.T) {
		d := &fakeDescriber{err: errors.New("model exploded")}
		app := NewApp(d, nil, nil, "en", false)

		res := app.DescribeImage(t.Context(), smallImage(), false)
		if !strings.HasPrefix(res.Text, "Error: ") {
			t.Errorf("Expected an error message, got %q", res.Text)
		}
	})

	t.Run("unsupported input", func(t *testing.T) {
		app := NewApp(&fakeDescriber{}, nil, nil, "en", false)

		res := app.DescribeImage(t.Context(), 42, false)
		if !strings.Contains(res.Text, "int") {
			t.Errorf("Expected the offending type in the message, got %q", res.Text)
		}
	})
}

func TestAnswerQuestion(t *testing.T) {
	t.Run("blank question", func(t *testing.T) {
		d := &fakeDescriber{answer: "unused"}
		tts := &fakeSynthesizer{}
		app := NewApp(d, tts, nil, "en", false)

		for _, q := range []string{"", "   ", "\n"} {
			res := app.AnswerQuestion(t.Context(), smallImage(), q, true)
			if expected, actual := MsgAskQuestion, res.Text; expected != actual {
				t.Errorf("Expected %q for question %q, got %q", expected, q, actual)
			}
		}
		if d.answers != 0 {
			t.Error("Model was invoked for a blank question")
		}
		if tts.calls != 0 {
			t.Error("Synthesizer was invoked for a blank question")
		}
	})

	t.Run("no image", func(t *testing.T) {
		app := NewApp(&fakeDescriber{}, nil, nil, "en", false)

		res := app.AnswerQuestion(t.Context(), nil, "what is this?", false)
		if expected, actual := MsgUploadFirst, res.Text; expected != actual {
			t.Errorf("Expected %q, got %q", expected, actual)
		}
	})

	t.Run("success", func(t *testing.T) {
		d := &fakeDescriber{answer: "two dogs"}
		app := NewApp(d, nil, nil, "en", false)

		res := app.AnswerQuestion(t.Context(), smallImage(), "how many dogs?", false)
		if expected, actual := "two dogs", res.Text; expected != actual {
			t.Errorf("Expected %q, got %q", expected, actual)
		}
		if expected, actual := "how many dogs?", d.lastPrompt; expected != actual {
			t.Errorf("Expected question %q, got %q", expected, actual)
		}
	})
}

func TestCaptureAndDescribe(t *testing.T) {
	t.Run("no camera", func(t *testing.T) {
		app := NewApp(&fakeDescriber{caption: "unused"}, nil, nil, "en", false)

		res := app.CaptureAndDescribe(t.Context(), false)
		if expected, actual := MsgCaptureFailed, res.Text; expected != actual {
			t.Errorf("Expected %q, got %q", expected, actual)
		}
	})

	t.Run("capture failure", func(t *testing.T) {
		cam := &fakeCapturer{err: errors.New("device busy")}
		app := NewApp(&fakeDescriber{caption: "unused"}, nil, cam, "en", false)

		res := app.CaptureAndDescribe(t.Context(), false)
		if expected, actual := MsgCaptureFailed, res.Text; expected != actual {
			t.Errorf("Expected %q, got %q", expected, actual)
		}
	})

	t.Run("success carries the frame", func(t *testing.T) {
		frame := smallImage()
		cam := &fakeCapturer{img: frame}
		app := NewApp(&fakeDescriber{caption: "a desk"}, nil, cam, "en", false)

		res := app.CaptureAndDescribe(t.Context(), false)
		if expected, actual := "a desk", res.Text; expected != actual {
			t.Errorf("Expected %q, got %q", expected, actual)
		}
		if res.Image != frame {
			t.Error("Expected the captured frame in the result")
		}
	})

	t.Run("caption failure still carries the frame", func(t *testing.T) {
		frame := smallImage()
		cam := &fakeCapturer{img: frame}
		app := NewApp(&fakeDescriber{err: errors.New("model exploded")}, nil, cam, "en", false)

		res := app.CaptureAndDescribe(t.Context(), false)
		if !strings.HasPrefix(res.Text, "Error: ") {
			t.Errorf("Expected an error message, got %q", res.Text)
		}
		if res.Image != frame {
			t.Error("Expected the captured frame in the result")
		}
	})
}
