package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rbright/kombo/internal/audio"
	"github.com/rbright/kombo/internal/segment"
)

// HTTP posts each utterance as a WAV body and decodes a JSON transcript.
//
// Accepted response shapes:
//
//	{"text": "hadouken", "confidence": 0.93}
//	{"candidates": [{"text": "hadouken", "confidence": 0.93}, ...]}
//	[{"text": "hadouken", "confidence": 0.93}, ...]
//
// A missing confidence counts as 1.
type HTTP struct {
	endpoint string
	client   *http.Client
}

// NewHTTP builds an HTTP recognizer. language is sent as a query parameter.
func NewHTTP(endpoint, language string, timeout time.Duration) (*HTTP, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid recognizer endpoint %q", endpoint)
	}
	if language != "" {
		q := u.Query()
		q.Set("language", language)
		u.RawQuery = q.Encode()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTP{endpoint: u.String(), client: &http.Client{Timeout: timeout}}, nil
}

// Recognize implements Recognizer.
func (h *HTTP) Recognize(ctx context.Context, u segment.Utterance) ([]Candidate, error) {
	body, err := audio.EncodeUtterance(u)
	if err != nil {
		return nil, fmt.Errorf("encode utterance: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")
	if u.ID != "" {
		req.Header.Set("X-Utterance-Id", u.ID)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post utterance: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read recognizer response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("recognizer returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return decodeCandidates(payload)
}

// Close implements Recognizer.
func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

type jsonCandidate struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

type jsonResponse struct {
	jsonCandidate
	Candidates []jsonCandidate `json:"candidates"`
}

func decodeCandidates(payload []byte) ([]Candidate, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, errors.New("empty recognizer response")
	}

	var raw []jsonCandidate
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("decode recognizer response: %w", err)
		}
	} else {
		var resp jsonResponse
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			return nil, fmt.Errorf("decode recognizer response: %w", err)
		}
		raw = resp.Candidates
		if len(raw) == 0 && resp.Text != "" {
			raw = []jsonCandidate{resp.jsonCandidate}
		}
	}

	out := make([]Candidate, 0, len(raw))
	for _, c := range raw {
		confidence := 1.0
		if c.Confidence != nil {
			confidence = *c.Confidence
		}
		out = append(out, Candidate{Text: c.Text, Confidence: confidence})
	}
	return out, nil
}
