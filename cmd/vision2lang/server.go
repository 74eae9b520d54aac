package main

import (
	"context"
	"embed"
	"html/template"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vision2lang"
)

var (
	//go:embed tmpl/*.html
	tmplFS embed.FS

	indexTmpl  *template.Template
	resultTmpl *template.Template
)

func init() {
	indexTmpl = template.Must(template.ParseFS(tmplFS, "tmpl/index.html"))
	resultTmpl = template.Must(template.ParseFS(tmplFS, "tmpl/result.html"))
}

type Server struct {
	hs      *http.Server
	app     *vision2lang.App
	backend string
	logger  *log.Logger
}

// resultView is the template payload for an action result.
type resultView struct {
	Title    string
	Text     string
	AudioURL string
	ImageURL string
}

func NewServer(app *vision2lang.App, backend, port string) *Server {
	srv := &Server{
		app:     app,
		backend: backend,
		logger:  log.Default(),
	}

	srv.hs = &http.Server{
		Addr:    net.JoinHostPort("0.0.0.0", port),
		Handler: srv.serveHandler(),
	}

	return srv
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.hs.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.hs.Shutdown(shutCtx)
	})

	return g.Wait()
}

func (s *Server) serveHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /caption", s.serveCaption())
	mux.Handle("POST /vqa", s.serveVQA())
	mux.Handle("POST /webcam", s.serveWebcam())
	mux.Handle("GET /artifact/{name}", s.serveArtifact())
	mux.Handle("GET /", s.serveRoot())

	return mux
}

func (s *Server) serveRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		indexTmpl.Execute(w, struct{ Backend string }{s.backend})
	}
}

func (s *Server) serveCaption() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		src, ok := formImage(req)
		var input any
		if ok {
			input = src
		}

		res := s.app.DescribeImage(req.Context(), input, formBool(req, "tts"))
		s.render(w, "Generated Caption", res)
	}
}

func (s *Server) serveVQA() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		src, ok := formImage(req)
		var input any
		if ok {
			input = src
		}

		res := s.app.AnswerQuestion(req.Context(), input, req.FormValue("question"), formBool(req, "tts"))
		s.render(w, "Answer", res)
	}
}

func (s *Server) serveWebcam() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		res := s.app.CaptureAndDescribe(req.Context(), formBool(req, "tts"))
		s.render(w, "Webcam Description", res)
	}
}

// serveArtifact serves synthesized audio and captured frames out of the
// temp directory. Only files this process named are reachable.
func (s *Server) serveArtifact() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		name := req.PathValue("name")
		if !strings.HasPrefix(name, "v2l-") || name != filepath.Base(name) {
			http.NotFound(w, req)
			return
		}

		data, err := os.ReadFile(filepath.Join(os.TempDir(), name))
		if err != nil {
			http.NotFound(w, req)
			return
		}

		w.Header().Set("Content-Type", http.DetectContentType(data))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func (s *Server) render(w http.ResponseWriter, title string, res vision2lang.Result) {
	view := resultView{
		Title: title,
		Text:  res.Text,
	}
	if res.AudioPath != "" {
		view.AudioURL = "/artifact/" + filepath.Base(res.AudioPath)
	}
	if res.Image != nil {
		url, err := s.writeFrame(res)
		if err != nil {
			s.logger.Printf("saving captured frame: %s", err)
		} else {
			view.ImageURL = url
		}
	}

	resultTmpl.Execute(w, view)
}

// writeFrame persists a captured frame to the temp directory so the result
// page can display it.
func (s *Server) writeFrame(res vision2lang.Result) (string, error) {
	jpg, err := res.Image.FitWithin(800, 600).EncodeJPEG()
	if err != nil {
		return "", err
	}

	name := "v2l-" + uuid.NewString() + ".jpg"
	if err := os.WriteFile(filepath.Join(os.TempDir(), name), jpg, 0o644); err != nil {
		return "", err
	}

	return "/artifact/" + name, nil
}

// formImage pulls the uploaded image bytes out of a multipart form. ok is
// false when no file was provided.
func formImage(req *http.Request) ([]byte, bool) {
	if err := req.ParseMultipartForm(10 << 20); err != nil {
		return nil, false
	}

	file, _, err := req.FormFile("image")
	if err != nil {
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		return nil, false
	}

	return data, true
}

func formBool(req *http.Request, field string) bool {
	v := req.FormValue(field)
	return v == "on" || v == "true" || v == "1"
}
