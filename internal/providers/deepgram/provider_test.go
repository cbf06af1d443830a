package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"scopevoice/internal/domain"
	"scopevoice/internal/ports"
)

func TestNewProviderDefaults(t *testing.T) {
	t.Parallel()

	p := NewProvider(Config{})
	if p.cfg.APIBaseURL != defaultBaseURL || p.cfg.Model != defaultModel {
		t.Fatalf("unexpected endpoint defaults: %+v", p.cfg)
	}
	if p.cfg.KeepAlive != defaultKeepAlive || p.cfg.DialRetries != defaultDialRetries || p.cfg.DialBackoff != defaultDialBackoff {
		t.Fatalf("unexpected connection defaults: %+v", p.cfg)
	}
}

func TestStartStreamingRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(Config{}).StartStreaming(context.Background(), ports.StreamingConfig{})
	if err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestListenURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider Config
		stream   ports.StreamingConfig
		wantBase string
		want     map[string]string
		absent   []string
	}{
		{
			name:     "defaults",
			provider: Config{Model: "nova-2"},
			wantBase: "wss://api.deepgram.com/v1/listen",
			want: map[string]string{
				"model":           "nova-2",
				"encoding":        "linear16",
				"sample_rate":     "16000",
				"channels":        "1",
				"interim_results": "false",
				"smart_format":    "false",
			},
			absent: []string{"language", "endpointing", "utterance_end_ms"},
		},
		{
			name:     "plain http base with language",
			provider: Config{APIBaseURL: "http://localhost:8080/v1/", Model: "m", Language: "en-US", SmartFormat: true},
			stream:   ports.StreamingConfig{Encoding: "linear16", SampleRate: 8000, Channels: 2, InterimResults: true},
			wantBase: "ws://localhost:8080/v1/listen",
			want: map[string]string{
				"language":        "en-US",
				"smart_format":    "true",
				"sample_rate":     "8000",
				"channels":        "2",
				"interim_results": "true",
			},
		},
		{
			name:     "stream language wins and endpointing is forwarded",
			provider: Config{Model: "nova-2", Language: "en-US", EndpointingMS: 300, UtteranceEndMS: 1000},
			stream:   ports.StreamingConfig{InterimResults: true, Language: "de"},
			wantBase: "wss://api.deepgram.com/v1/listen",
			want: map[string]string{
				"language":         "de",
				"endpointing":      "300",
				"utterance_end_ms": "1000",
			},
		},
		{
			name:     "utterance end requires interim results",
			provider: Config{Model: "nova-2", UtteranceEndMS: 1000},
			wantBase: "wss://api.deepgram.com/v1/listen",
			absent:   []string{"utterance_end_ms"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			raw, err := listenURL(tc.provider, tc.stream)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			u, err := url.Parse(raw)
			if err != nil {
				t.Fatalf("invalid url %q: %v", raw, err)
			}
			if base := u.Scheme + "://" + u.Host + u.Path; base != tc.wantBase {
				t.Fatalf("expected base %q, got %q", tc.wantBase, base)
			}
			q := u.Query()
			for key, want := range tc.want {
				if got := q.Get(key); got != want {
					t.Fatalf("expected %s=%q, got %q", key, want, got)
				}
			}
			for _, key := range tc.absent {
				if q.Has(key) {
					t.Fatalf("expected %s to be absent in %s", key, raw)
				}
			}
		})
	}
}

func TestListenURLInvalidBase(t *testing.T) {
	t.Parallel()

	if _, err := listenURL(Config{APIBaseURL: ":// bad"}, ports.StreamingConfig{}); err == nil {
		t.Fatalf("expected invalid base url error")
	}
}

func TestStartStreamingRejectedCredentialsAreNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	p := NewProvider(Config{APIKey: "k", APIBaseURL: server.URL + "/v1", DialRetries: 3, DialBackoff: time.Millisecond})
	_, err := p.StartStreaming(context.Background(), ports.StreamingConfig{})
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", hits.Load())
	}
}

func TestStartStreamingRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	p := NewProvider(Config{APIKey: "k", APIBaseURL: server.URL + "/v1", DialRetries: 2, DialBackoff: time.Millisecond})
	_, err := p.StartStreaming(context.Background(), ports.StreamingConfig{})
	if err == nil || errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected connect error, got %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected initial attempt plus two retries, got %d", hits.Load())
	}
}

func TestStartStreamingRecoversFromTransientFailure(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	p := NewProvider(Config{APIKey: "k", APIBaseURL: server.URL + "/v1", DialBackoff: time.Millisecond})
	session, err := p.StartStreaming(context.Background(), ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected two attempts, got %d", hits.Load())
	}
}
