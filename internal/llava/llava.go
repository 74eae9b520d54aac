// Package llava talks to a llama.cpp server hosting a llava multimodal
// model. The image travels base64-encoded inside the completion request.
package llava

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"vision2lang/describer"
	"vision2lang/imaging"
)

const (
	imagePreamble = `A chat between a curious human and an artificial intelligence assistant. The assistant gives helpful, detailed, and polite answers to the human's questions.
USER:`
	imageSuffix = `
ASSISTANT:`

	captionPrompt = "[img-10]please describe this image in detail"
)

type jsonmap map[string]any

// These were lifted from the web inspector for the server UI
var defaultparams = jsonmap{
	"n_probs":           0,
	"temperature":       0,
	"stop":              []string{"</s>", "USER:"},
	"repeat_last_n":     256,
	"repeat_penalty":    1.18,
	"top_k":             40,
	"top_p":             0.5,
	"tfs_z":             1,
	"typical_p":         1,
	"presence_penalty":  0,
	"frequency_penalty": 0,
	"mirostat":          0,
	"mirostat_tau":      5,
	"mirostat_eta":      0.1,
	"grammar":           "",
	"slot_id":           -1,
	"cache_prompt":      true,
}

type llava struct {
	srvAddr string
	seed    int

	client *http.Client
}

var _ describer.Describer = &llava{}

func Init(srvAddr string, seed int, httpClient *http.Client) *llava {
	return &llava{
		srvAddr: srvAddr,
		seed:    seed,
		client:  httpClient,
	}
}

func (l *llava) Name() string { return "llava" }

func (l *llava) IsHealthy() bool {
	resp, err := l.client.Get(l.srvAddr + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func (l *llava) Caption(ctx context.Context, img *imaging.Image, maxTokens int) (string, error) {
	return l.describe(ctx, img, captionPrompt, maxTokens)
}

func (l *llava) Answer(ctx context.Context, img *imaging.Image, question string, maxTokens int) (string, error) {
	// Short answers read better for VQA, the model is asked to be brief.
	prompt := fmt.Sprintf("[img-10]%s Answer briefly.", question)
	return l.describe(ctx, img, prompt, maxTokens)
}

func (l *llava) describe(ctx context.Context, img *imaging.Image, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = describer.DefaultMaxTokens
	}

	jpg, err := img.EncodeJPEG()
	if err != nil {
		return "", &describer.InferenceError{Backend: l.Name(), Err: err}
	}

	imb64 := base64.StdEncoding.EncodeToString(jpg)
	text, err := l.sendRequest(ctx, imagePreamble+prompt+imageSuffix, false, jsonmap{
		"n_predict": maxTokens,
		"image_data": []jsonmap{
			{
				"data": imb64, "id": 10,
			},
		},
	})
	if err != nil {
		return "", &describer.InferenceError{Backend: l.Name(), Err: err}
	}
	return text, nil
}

func (l *llava) sendRequest(ctx context.Context, prompt string, stream bool, keys jsonmap) (string, error) {
	data := maps.Clone(defaultparams)
	maps.Copy(data, keys)
	data["prompt"] = prompt
	data["stream"] = stream
	data["seed"] = l.seed

	buf := bytes.NewBuffer(make([]byte, 0, 2_000_000)) // The buffer will be resized by Encode
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(&data)
	if err != nil {
		return "", err
	}
	br := bytes.NewReader(buf.Bytes())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.srvAddr+"/completion", br)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned %s", resp.Status)
	}

	content := new(bytes.Buffer)
	respbody := struct {
		Content string
		Stop    bool
	}{}

	lr := bufio.NewScanner(resp.Body)
	for !respbody.Stop {
		// Read in one line
		if !lr.Scan() {
			return "", lr.Err()
		}
		line := lr.Text()
		if len(line) == 0 {
			continue
		}
		if stream {
			var found bool
			line, found = strings.CutPrefix(line, "data: ")
			if !found {
				return "", fmt.Errorf("missing `data: ` prefix")
			}
		}

		dec := json.NewDecoder(bytes.NewBufferString(line))
		if err := dec.Decode(&respbody); err != nil {
			return "", err
		}
		content.WriteString(respbody.Content)
	}

	return strings.TrimSpace(content.String()), nil
}
