package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

func TestTwilio_SendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Accounts/AC123/Messages.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Errorf("unexpected basic auth %q %q", user, pass)
		}
		r.ParseForm()
		if r.PostForm.Get("From") != "whatsapp:+14155238886" || r.PostForm.Get("To") != "whatsapp:+15550001111" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		if r.PostForm.Get("Body") != "Received your audio. Transcribing now..." {
			t.Errorf("unexpected body %q", r.PostForm.Get("Body"))
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM42","status":"queued"}`))
	}))
	defer srv.Close()

	tw := NewTwilio(TwilioConfig{
		APIBase:    srv.URL,
		AccountSID: "AC123",
		AuthToken:  "secret",
		From:       "whatsapp:+14155238886",
		HTTPClient: srv.Client(),
		Logger:     testLogger(),
	})
	receipt, err := tw.SendMessage(context.Background(), "whatsapp:+15550001111", "Received your audio. Transcribing now...")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if receipt.MessageID != "SM42" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestTwilio_SendMessage_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	tw := NewTwilio(TwilioConfig{APIBase: srv.URL, AccountSID: "AC1", HTTPClient: srv.Client(), Logger: testLogger()})
	_, err := tw.SendMessage(context.Background(), "bad", "x")
	var sendErr *domain.SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("expected SendError, got %v", err)
	}
}

func TestTwilio_DownloadMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok {
			t.Error("expected basic auth on media download")
		}
		w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	tw := NewTwilio(TwilioConfig{AccountSID: "AC1", AuthToken: "t", HTTPClient: srv.Client(), Logger: testLogger()})
	data, err := tw.DownloadMedia(context.Background(), srv.URL+"/Media/ME1")
	if err != nil {
		t.Fatalf("DownloadMedia: %v", err)
	}
	if string(data) != "ID3audio" {
		t.Fatalf("unexpected data %q", data)
	}

	_, err = tw.DownloadMedia(context.Background(), "ME1")
	var fetchErr *domain.MediaFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected MediaFetchError for non-URL ref, got %v", err)
	}
}
