package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"vision2lang"
	"vision2lang/imaging"
	"vision2lang/internal/camera"
	"vision2lang/internal/gtts"
)

var (
	port           = flag.String("port", envOr("PORT", "7860"), "Port the web UI listens on")
	blipCaptionDir = flag.String("blip-caption", envOr("BLIP_CAPTION_DIR", ""), "Directory with the BLIP captioning ONNX export")
	blipVQADir     = flag.String("blip-vqa", envOr("BLIP_VQA_DIR", ""), "Directory with the BLIP VQA ONNX export")
	llavaServer    = flag.String("llava", envOr("LLAVA_SERVER", ""), "Address of a running llama.cpp llava server, typically http://localhost:8080")
	llavaSeed      = flag.Int("seed", 385480504, "Random seed for llava")
	openAI         = flag.Bool("openai", false, "Use the OpenAI vision backend")
	ttsLang        = flag.String("lang", envOr("TTS_LANG", "en"), "Language code for speech synthesis")
	ttsSlow        = flag.Bool("slow", false, "Speak slowly")
	cameraID       = flag.Int("camera", 0, "Camera device id for webcam capture")
	noCamera       = flag.Bool("no-camera", false, "Disable the webcam panel")
	batchDir       = flag.String("dir", "", "Caption every JPEG under this directory and exit")
	count          = flag.Int("count", -1, "Number of items to process in batch mode")

	lameduck bool
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func findJpegFiles(root string) ([]string, error) {
	var photos []string

	err := filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".jpg" || ext == ".jpeg" {
			photos = append(photos, path)
		}

		return nil
	})

	return photos, err
}

// captionBatch describes every JPEG under dir, printing path and caption
// pairs. Used for offline cataloguing without the web UI.
func captionBatch(ctx context.Context, v *vision2lang.V2L, dir string) error {
	if !v.IsHealthy() {
		return fmt.Errorf("backend is not responding")
	}

	photos, err := findJpegFiles(dir)
	if err != nil {
		return err
	}
	if *count > -1 {
		photos = photos[:min(len(photos), *count)]
	}
	fmt.Printf("%d images to process using backend %s\n", len(photos), v.Name())

	bar := progressbar.Default(int64(len(photos)))
	errcnt := 0
out:
	for i := 0; i < len(photos) && !lameduck; i++ {
		if errcnt >= 5 {
			return fmt.Errorf("too many errors, exiting")
		}

		select {
		case <-ctx.Done():
			break out
		default:
		}

		img, err := imaging.FromFile(photos[i])
		if err != nil {
			fmt.Printf("\nskipping %s: %s\n", photos[i], err)
			errcnt++
			continue
		}

		caption, err := v.Caption(ctx, img, 0)
		if err != nil {
			fmt.Printf("\n%s: %s\n", photos[i], err)
			errcnt++
			continue
		}

		_, fname := filepath.Split(photos[i])
		fmt.Printf("\n%s: %s\n", fname, caption)
		bar.Add(1)
	}

	return nil
}

func run(ctx context.Context, v *vision2lang.V2L) error {
	if *batchDir != "" {
		return captionBatch(ctx, v, *batchDir)
	}

	tts := gtts.New(nil)

	var cam vision2lang.Capturer
	if !*noCamera {
		cam = camera.New(*cameraID)
	}

	app := vision2lang.NewApp(v, tts, cam, *ttsLang, *ttsSlow)

	srv := NewServer(app, v.Name(), *port)
	log.Printf("Serving on http://0.0.0.0:%s (backend %s)", *port, v.Name())
	return srv.Run(ctx)
}

func sighandler(ch chan os.Signal, cancel context.CancelFunc) {
	for {
		<-ch
		if lameduck {
			// Already in lame duck, hard stop
			fmt.Println("Exiting")
			cancel()
			return
		} else {
			fmt.Println("SIGINT received, stopping...")
			lameduck = true
			cancel()
		}
	}
}

func main() {
	godotenv.Load() // missing .env is fine
	flag.Parse()

	vio := vision2lang.InitOptions{
		BlipCaptionDir: *blipCaptionDir,
		BlipVQADir:     *blipVQADir,
		LlavaServer:    *llavaServer,
		LlavaSeed:      *llavaSeed,
		OpenAI:         *openAI,
		HttpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	v, err := vision2lang.Init(vio)
	if err != nil {
		log.Fatal(err)
	}

	sigch := make(chan os.Signal, 2)
	signal.Notify(sigch, os.Interrupt)

	ctx, cancel := context.WithCancel(context.Background())
	go sighandler(sigch, cancel)

	if err := run(ctx, v); err != nil {
		log.Fatal(err)
	}
}
