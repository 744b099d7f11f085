// Package whisper implements pkg/gateway/speech.Gateway against a running
// whisper.cpp HTTP server, uploading the whole source file to its
// /inference endpoint as a multipart form once per pass.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/autoclipper/pipeline/internal/domain"
	"github.com/autoclipper/pipeline/pkg/gateway/speech"
)

// Gateway implements speech.Gateway against a whisper.cpp HTTP server, using
// a fast model/beam setting for Pass1 and a slower, word-timestamped setting
// for Pass2.
type Gateway struct {
	serverURL  string
	httpClient *http.Client

	pass1Model string
	pass1Beam  int
	pass2Model string
	pass2Beam  int
}

var _ speech.Gateway = (*Gateway)(nil)

// Option configures a Gateway.
type Option func(*Gateway)

// WithPass1Params sets the model and beam size used for the throughput pass.
func WithPass1Params(model string, beam int) Option {
	return func(g *Gateway) { g.pass1Model, g.pass1Beam = model, beam }
}

// WithPass2Params sets the model and beam size used for the precision pass.
func WithPass2Params(model string, beam int) Option {
	return func(g *Gateway) { g.pass2Model, g.pass2Beam = model, beam }
}

// WithHTTPClient overrides the default 10-minute-timeout client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpClient = c }
}

// New creates a Gateway that connects to the whisper.cpp server at serverURL
// (e.g. "http://localhost:8081").
func New(serverURL string, opts ...Option) (*Gateway, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("whisper: serverURL must not be empty")
	}
	g := &Gateway{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		pass1Model: "base.en",
		pass1Beam:  1,
		pass2Model: "small.en",
		pass2Beam:  5,
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// segment is one recognized span in the whisper.cpp verbose_json response.
type segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []word  `json:"words,omitempty"`
}

type word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type inferenceResponse struct {
	Text     string    `json:"text"`
	Segments []segment `json:"segments"`
}

func (g *Gateway) Pass1(ctx context.Context, sourceAudioPath string, windows []speech.Window) ([]speech.Pass1Result, error) {
	resp, err := g.infer(ctx, sourceAudioPath, g.pass1Model, g.pass1Beam, false)
	if err != nil {
		return nil, fmt.Errorf("speech gateway: pass1: %w", err)
	}

	results := make([]speech.Pass1Result, 0, len(windows))
	for _, w := range windows {
		var text string
		for _, seg := range resp.Segments {
			if overlaps(seg.Start, seg.End, w.Start, w.End) {
				if text != "" {
					text += " "
				}
				text += seg.Text
			}
		}
		results = append(results, speech.Pass1Result{WindowID: w.ID, Text: text})
	}
	return results, nil
}

func (g *Gateway) Pass2(ctx context.Context, sourceAudioPath string, windows []speech.Window) ([]speech.Pass2Result, error) {
	resp, err := g.infer(ctx, sourceAudioPath, g.pass2Model, g.pass2Beam, true)
	if err != nil {
		return nil, fmt.Errorf("speech gateway: pass2: %w", err)
	}

	results := make([]speech.Pass2Result, 0, len(windows))
	for _, w := range windows {
		var text string
		var words []domain.WordTiming
		for _, seg := range resp.Segments {
			if !overlaps(seg.Start, seg.End, w.Start, w.End) {
				continue
			}
			if text != "" {
				text += " "
			}
			text += seg.Text
			for _, wd := range seg.Words {
				if !overlaps(wd.Start, wd.End, w.Start, w.End) {
					continue
				}
				words = append(words, domain.WordTiming{
					Word:  wd.Word,
					Start: clampMin0(wd.Start - w.Start),
					End:   clampMin0(wd.End - w.Start),
				})
			}
		}
		results = append(results, speech.Pass2Result{ClipID: w.ID, Text: text, Words: words})
	}
	return results, nil
}

// infer uploads the audio file at path to the whisper.cpp /inference
// endpoint and returns the parsed verbose_json response. withWords requests
// per-word timestamps for the Pass2 use case.
func (g *Gateway) infer(ctx context.Context, path, model string, beamSize int, withWords bool) (*inferenceResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("write audio to form: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
	}
	if model != "" {
		fields["model"] = model
	}
	if beamSize > 0 {
		fields["beam_size"] = fmt.Sprintf("%d", beamSize)
	}
	if withWords {
		fields["word_timestamps"] = "true"
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %q: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var out inferenceResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse JSON response: %w", err)
	}
	return &out, nil
}

func overlaps(aStart, aEnd, bStart, bEnd float64) bool {
	return aStart < bEnd && bStart < aEnd
}

func clampMin0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
