// Package gtts renders text to speech through the Google Translate TTS
// endpoint and writes the result as an MP3 in the temp directory.
package gtts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const defaultEndpoint = "https://translate.google.com/translate_tts"

// The endpoint rejects long queries so text is split into chunks of at
// most this many characters and the MP3 payloads are concatenated.
const maxChunkLen = 200

type Client struct {
	endpoint string
	tempDir  string
	client   *http.Client
}

// New returns a client writing audio files to the OS temp directory. If
// httpClient is nil http.DefaultClient is used.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint: defaultEndpoint,
		tempDir:  os.TempDir(),
		client:   httpClient,
	}
}

// Synthesize renders text in the given language at normal or slow cadence
// and returns the path of the written MP3. Empty or whitespace-only text is
// an intentional no-op returning an empty path and no error. The file is
// never cleaned up here, temp-directory lifecycle handles that.
func (c *Client) Synthesize(ctx context.Context, text, lang string, slow bool) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if lang == "" {
		lang = "en"
	}

	chunks := splitChunks(text, maxChunkLen)

	var audio []byte
	for i, chunk := range chunks {
		data, err := c.fetchChunk(ctx, chunk, lang, slow, i, len(chunks))
		if err != nil {
			return "", err
		}
		audio = append(audio, data...)
	}

	path := filepath.Join(c.tempDir, "v2l-"+uuid.NewString()+".mp3")
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("writing audio file: %w", err)
	}

	return path, nil
}

func (c *Client) fetchChunk(ctx context.Context, chunk, lang string, slow bool, idx, total int) ([]byte, error) {
	speed := "1"
	if slow {
		speed = "0.3"
	}

	q := url.Values{
		"ie":       {"UTF-8"},
		"client":   {"tw-ob"},
		"q":        {chunk},
		"tl":       {lang},
		"ttsspeed": {speed},
		"idx":      {strconv.Itoa(idx)},
		"total":    {strconv.Itoa(total)},
		"textlen":  {strconv.Itoa(len(chunk))},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts backend returned %s", resp.Status)
	}

	return io.ReadAll(resp.Body)
}

// splitChunks breaks text into pieces no longer than limit, preferring
// whitespace boundaries so words are not cut mid-way.
func splitChunks(text string, limit int) []string {
	var chunks []string
	var cur strings.Builder

	for _, word := range strings.Fields(text) {
		if cur.Len() > 0 && cur.Len()+1+len(word) > limit {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		// A single word longer than the limit still becomes its own chunk
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}

	return chunks
}
