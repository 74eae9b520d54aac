// Package vision2lang wires a vision-language model backend, a speech
// synthesizer and a camera source behind the three user actions of the
// application: describe an image, answer a question about an image, and
// capture a webcam frame and describe it.
package vision2lang

import (
	"context"
	"log"
	"strings"

	"vision2lang/describer"
	"vision2lang/imaging"
)

// User guidance messages. These are responses to incomplete input, not
// failures.
const (
	MsgUploadFirst   = "Please upload an image first."
	MsgAskQuestion   = "Please ask a question about the image."
	MsgCaptureFailed = "Failed to capture webcam frame. Make sure your webcam is connected."
)

// Synthesizer renders text to a playable audio file and returns its path.
// An empty path with a nil error means nothing to say.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string, slow bool) (string, error)
}

// Capturer acquires one still frame from a camera.
type Capturer interface {
	CaptureFrame() (*imaging.Image, error)
}

// Result is what an action hands back to the UI. Text is either the model
// output or a user-visible error/guidance message. AudioPath is empty when
// no audio is available, which callers must treat as "text only", never as
// a failure. Image is set by the capture action.
type Result struct {
	Text      string
	AudioPath string
	Image     *imaging.Image
}

type App struct {
	d      describer.Describer
	tts    Synthesizer // nil disables audio
	cam    Capturer    // nil disables webcam capture
	lang   string
	slow   bool
	logger *log.Logger
}

func NewApp(d describer.Describer, tts Synthesizer, cam Capturer, lang string, slow bool) *App {
	if lang == "" {
		lang = "en"
	}
	return &App{
		d:      d,
		tts:    tts,
		cam:    cam,
		lang:   lang,
		slow:   slow,
		logger: log.Default(),
	}
}

// DescribeImage captions the image in src, which may be any input shape
// imaging.Normalize accepts. Errors never propagate, they come back as the
// Result text.
func (a *App) DescribeImage(ctx context.Context, src any, wantAudio bool) Result {
	if src == nil {
		return Result{Text: MsgUploadFirst}
	}

	img, err := imaging.Normalize(src)
	if err != nil {
		return a.failure("caption", err)
	}

	caption, err := a.d.Caption(ctx, img, describer.DefaultMaxTokens)
	if err != nil {
		return a.failure("caption", err)
	}

	return Result{Text: caption, AudioPath: a.speak(ctx, caption, wantAudio)}
}

// AnswerQuestion answers a free-form question about the image in src. A
// blank question short-circuits to a guidance message without touching the
// model.
func (a *App) AnswerQuestion(ctx context.Context, src any, question string, wantAudio bool) Result {
	if src == nil {
		return Result{Text: MsgUploadFirst}
	}
	if strings.TrimSpace(question) == "" {
		return Result{Text: MsgAskQuestion}
	}

	img, err := imaging.Normalize(src)
	if err != nil {
		return a.failure("answer", err)
	}

	answer, err := a.d.Answer(ctx, img, question, describer.DefaultMaxTokens)
	if err != nil {
		return a.failure("answer", err)
	}

	return Result{Text: answer, AudioPath: a.speak(ctx, answer, wantAudio)}
}

// CaptureAndDescribe grabs one webcam frame and captions it. Capture
// failures degrade to a guidance message since the webcam is an optional
// enhancement.
func (a *App) CaptureAndDescribe(ctx context.Context, wantAudio bool) Result {
	if a.cam == nil {
		return Result{Text: MsgCaptureFailed}
	}

	frame, err := a.cam.CaptureFrame()
	if err != nil {
		a.logger.Printf("capture error: %s", err)
		return Result{Text: MsgCaptureFailed}
	}

	caption, err := a.d.Caption(ctx, frame, describer.DefaultMaxTokens)
	if err != nil {
		res := a.failure("caption", err)
		res.Image = frame
		return res
	}

	return Result{
		Text:      caption,
		AudioPath: a.speak(ctx, caption, wantAudio),
		Image:     frame,
	}
}

// speak converts text to audio on a best-effort basis. Synthesis failures
// are logged and downgraded to "no audio".
func (a *App) speak(ctx context.Context, text string, want bool) string {
	if !want || a.tts == nil {
		return ""
	}

	path, err := a.tts.Synthesize(ctx, text, a.lang, a.slow)
	if err != nil {
		a.logger.Printf("tts error: %s", err)
		return ""
	}
	return path
}

func (a *App) failure(action string, err error) Result {
	a.logger.Printf("%s error: %s", action, err)
	return Result{Text: "Error: " + err.Error()}
}
