package transcription

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

func TestGoogle_Transcribe(t *testing.T) {
	audio := &domain.NormalizedAudio{PCM: []byte{1, 0, 2, 0, 3, 0, 4, 0}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/speech:recognize" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("expected api key in query, got %q", got)
		}
		var req recognizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Config.Encoding != "LINEAR16" || req.Config.SampleRateHertz != 16000 {
			t.Errorf("unexpected audio config %+v", req.Config)
		}
		if req.Config.LanguageCode != "he-IL" || !req.Config.EnableAutomaticPunctuation || req.Config.Model != "default" {
			t.Errorf("unexpected recognition config %+v", req.Config)
		}
		if req.Audio.Content != base64.StdEncoding.EncodeToString(audio.PCM) {
			t.Errorf("audio content not base64 PCM")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"alternatives":[{"transcript":"שלום","confidence":0.92},{"transcript":"שלם","confidence":0.4}]},
			{"alternatives":[{"transcript":"מה שלומך","confidence":0.78}]}
		]}`))
	}))
	defer srv.Close()

	g := NewGoogle(GoogleConfig{Endpoint: srv.URL, APIKey: "test-key", HTTPClient: srv.Client(), Logger: testLogger()})
	res, err := g.Transcribe(context.Background(), audio, "he-IL")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "שלום מה שלומך" {
		t.Errorf("unexpected text %q", res.Text)
	}
	if res.Confidence < 0.849 || res.Confidence > 0.851 {
		t.Errorf("expected mean confidence 0.85, got %v", res.Confidence)
	}
	if res.LanguageCode != "he-IL" {
		t.Errorf("expected he-IL, got %s", res.LanguageCode)
	}
}

func TestGoogle_ResultWithoutAlternativesCountsTowardMean(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[
			{"alternatives":[{"transcript":"hello","confidence":0.9}]},
			{"alternatives":[]},
			{"alternatives":[{"transcript":"world","confidence":0.6}]}
		]}`))
	}))
	defer srv.Close()

	g := NewGoogle(GoogleConfig{Endpoint: srv.URL, APIKey: "k", HTTPClient: srv.Client(), Logger: testLogger()})
	res, err := g.Transcribe(context.Background(), oneSecond(), "en-US")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello  world" {
		t.Errorf("unexpected text %q", res.Text)
	}
	if res.Confidence < 0.499 || res.Confidence > 0.501 {
		t.Errorf("expected mean confidence 0.5 over three results, got %v", res.Confidence)
	}
}

func TestGoogle_NoSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	g := NewGoogle(GoogleConfig{Endpoint: srv.URL, APIKey: "k", HTTPClient: srv.Client(), Logger: testLogger()})
	res, err := g.Transcribe(context.Background(), oneSecond(), "en-US")
	if err != nil {
		t.Fatalf("no speech should not be an error: %v", err)
	}
	if res.Text != "" || res.Confidence != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestGoogle_BackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"quota exceeded","status":"PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	g := NewGoogle(GoogleConfig{Endpoint: srv.URL, APIKey: "k", HTTPClient: srv.Client(), Logger: testLogger()})
	_, err := g.Transcribe(context.Background(), oneSecond(), "en-US")
	var trErr *domain.TranscriptionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TranscriptionError, got %v", err)
	}
	if trErr.Language != "en-US" {
		t.Errorf("expected language on error, got %q", trErr.Language)
	}
}

func TestGoogle_TokenSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer svc-token" {
			t.Errorf("expected bearer token, got %q", got)
		}
		if r.URL.Query().Has("key") {
			t.Error("api key should not be sent with a token source")
		}
		w.Write([]byte(`{"results":[{"alternatives":[{"transcript":"hi","confidence":0.5}]}]}`))
	}))
	defer srv.Close()

	g := NewGoogle(GoogleConfig{
		Endpoint:    srv.URL,
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "svc-token"}),
		HTTPClient:  srv.Client(),
		Logger:      testLogger(),
	})
	res, err := g.Transcribe(context.Background(), oneSecond(), "en-US")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hi" {
		t.Errorf("unexpected text %q", res.Text)
	}
}

func TestGoogle_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewGoogle(GoogleConfig{Endpoint: srv.URL, HTTPClient: srv.Client(), Logger: testLogger()})
	if _, err := g.Transcribe(ctx, oneSecond(), "en-US"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
