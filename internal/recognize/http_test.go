package recognize

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rbright/kombo/internal/config"
	"github.com/rbright/kombo/internal/segment"
	"github.com/stretchr/testify/require"
)

func testUtterance() segment.Utterance {
	return segment.Utterance{
		ID: "utt-1",
		Frames: []segment.Frame{
			{Seq: 0, SampleRate: 16000, Samples: []int16{1, 2, 3, 4}},
			{Seq: 1, SampleRate: 16000, Samples: []int16{5, 6, 7, 8}},
		},
		SpeechFrames: 2,
	}
}

func TestHTTPRecognizerPostsWAV(t *testing.T) {
	var (
		gotType     string
		gotLanguage string
		gotID       string
		gotBody     []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		gotLanguage = r.URL.Query().Get("language")
		gotID = r.Header.Get("X-Utterance-Id")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"text":"Hadouken","confidence":0.87}`))
	}))
	defer srv.Close()

	rec, err := NewHTTP(srv.URL+"/recognize", "en", time.Second)
	require.NoError(t, err)
	defer rec.Close()

	got, err := rec.Recognize(context.Background(), testUtterance())
	require.NoError(t, err)
	require.Equal(t, []Candidate{{Text: "Hadouken", Confidence: 0.87}}, got)
	require.Equal(t, "audio/wav", gotType)
	require.Equal(t, "en", gotLanguage)
	require.Equal(t, "utt-1", gotID)
	require.Len(t, gotBody, 44+16)
	require.Equal(t, "RIFF", string(gotBody[:4]))
}

func TestHTTPRecognizerReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec, err := NewHTTP(srv.URL, "", time.Second)
	require.NoError(t, err)

	_, err = rec.Recognize(context.Background(), testUtterance())
	require.Error(t, err)
	require.Contains(t, err.Error(), "HTTP 503")
	require.Contains(t, err.Error(), "model loading")
}

func TestHTTPRecognizerHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	rec, err := NewHTTP(srv.URL, "", 5*time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = rec.Recognize(ctx, testUtterance())
	require.Error(t, err)
}

func TestNewHTTPRejectsBadEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "ftp://host/x", "http://", "::nope"} {
		_, err := NewHTTP(endpoint, "", 0)
		require.Error(t, err, endpoint)
	}
}

func TestDecodeCandidates(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []Candidate
		wantErr bool
	}{
		{name: "single object", payload: `{"text":"jab","confidence":0.5}`, want: []Candidate{{Text: "jab", Confidence: 0.5}}},
		{name: "missing confidence", payload: `{"text":"jab"}`, want: []Candidate{{Text: "jab", Confidence: 1}}},
		{name: "candidates list", payload: `{"candidates":[{"text":"a","confidence":0.2},{"text":"b","confidence":0.7}]}`, want: []Candidate{{Text: "a", Confidence: 0.2}, {Text: "b", Confidence: 0.7}}},
		{name: "top-level array", payload: ` [{"text":"a"}]`, want: []Candidate{{Text: "a", Confidence: 1}}},
		{name: "no speech", payload: `{"text":""}`, want: []Candidate{}},
		{name: "empty body", payload: "  ", wantErr: true},
		{name: "invalid json", payload: `{"text":`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeCandidates([]byte(tc.payload))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Default().Recognizer
	rec, err := New(context.Background(), cfg)
	require.NoError(t, err)
	_, ok := rec.(*HTTP)
	require.True(t, ok)
	require.NoError(t, rec.Close())

	cfg.Backend = "carrier-pigeon"
	_, err = New(context.Background(), cfg)
	require.Error(t, err)
}
