package vision2lang

import (
	"fmt"
	"net/http"

	"vision2lang/describer"
	"vision2lang/internal/blip"
	"vision2lang/internal/llava"
	"vision2lang/internal/openai"
)

type InitOptions struct {
	// Local BLIP backend, directories holding the ONNX exports of the
	// captioning and VQA models.
	BlipCaptionDir string
	BlipVQADir     string

	// Remote llava backend via a llama.cpp server.
	LlavaServer string
	LlavaSeed   int

	// OpenAI vision backend, credentials come from the environment.
	OpenAI bool

	HttpClient *http.Client // if nil uses http.DefaultClient
}

type V2L struct {
	describer.Describer
}

// Init selects and constructs the model backend. Exactly one backend must
// be configured.
func Init(vio InitOptions) (*V2L, error) {
	v := &V2L{}

	httpClient := vio.HttpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var n int
	if vio.BlipCaptionDir != "" || vio.BlipVQADir != "" {
		n++
	}
	if vio.LlavaServer != "" {
		n++
	}
	if vio.OpenAI {
		n++
	}
	switch n {
	case 0:
		return nil, fmt.Errorf("no backend selected")
	case 1:
		// no-op
	default:
		return nil, fmt.Errorf("multiple backends selected, only one allowed")
	}

	if vio.BlipCaptionDir != "" || vio.BlipVQADir != "" {
		if vio.BlipCaptionDir == "" || vio.BlipVQADir == "" {
			return nil, fmt.Errorf("blip backend needs both the captioning and VQA model directories")
		}
		v.Describer = blip.Init(vio.BlipCaptionDir, vio.BlipVQADir)
	} else if vio.LlavaServer != "" {
		v.Describer = llava.Init(vio.LlavaServer, vio.LlavaSeed, httpClient)
	} else if vio.OpenAI {
		v.Describer = openai.Init(httpClient)
	}

	return v, nil
}
