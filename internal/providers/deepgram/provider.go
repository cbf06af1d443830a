// Package deepgram streams microphone audio to Deepgram's live transcription
// websocket.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"

	"scopevoice/internal/domain"
	"scopevoice/internal/ports"
)

const (
	defaultBaseURL     = "https://api.deepgram.com/v1"
	defaultModel       = "nova-2"
	defaultKeepAlive   = 5 * time.Second
	defaultDialRetries = 2
	defaultDialBackoff = 250 * time.Millisecond
)

// Config controls the live transcription connection.
type Config struct {
	APIKey         string
	APIBaseURL     string
	Model          string
	Language       string
	SmartFormat    bool
	EndpointingMS  int
	UtteranceEndMS int

	// KeepAlive is how long the socket may go without audio before a
	// KeepAlive message is sent.
	KeepAlive   time.Duration
	DialRetries int
	DialBackoff time.Duration
}

// Provider opens Deepgram live transcription streams.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewProvider(cfg Config) *Provider {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	if cfg.DialRetries <= 0 {
		cfg.DialRetries = defaultDialRetries
	}
	if cfg.DialBackoff <= 0 {
		cfg.DialBackoff = defaultDialBackoff
	}
	return &Provider{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, errors.New("DEEPGRAM_API_KEY is not configured")
	}

	target, err := listenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}
	conn, err := p.dial(ctx, target)
	if err != nil {
		return nil, err
	}

	s := newStream(conn, p.cfg.KeepAlive)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// dial retries transient handshake failures. Rejected credentials and other
// client errors fail immediately.
func (p *Provider) dial(ctx context.Context, target string) (*websocket.Conn, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	backoff := retry.WithMaxRetries(uint64(p.cfg.DialRetries), retry.NewExponential(p.cfg.DialBackoff))

	var conn *websocket.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, resp, err := p.dialer.DialContext(ctx, target, headers)
		if err == nil {
			conn = c
			return nil
		}
		if resp != nil {
			switch code := resp.StatusCode; {
			case code == http.StatusUnauthorized || code == http.StatusForbidden:
				return fmt.Errorf("deepgram rejected credentials (%d): %w", code, domain.ErrPermissionDenied)
			case code < http.StatusInternalServerError && code != http.StatusTooManyRequests:
				return fmt.Errorf("deepgram refused the stream (%d): %w", code, err)
			}
		}
		return retry.RetryableError(fmt.Errorf("failed to connect to Deepgram websocket: %w", err))
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func listenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(providerCfg.APIBaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	u, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	encoding := streamCfg.Encoding
	if encoding == "" {
		encoding = "linear16"
	}
	sampleRate := streamCfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := streamCfg.Channels
	if channels <= 0 {
		channels = 1
	}

	q := url.Values{}
	q.Set("model", providerCfg.Model)
	q.Set("encoding", encoding)
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", strconv.Itoa(channels))
	q.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	q.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	if language := pickLanguage(streamCfg.Language, providerCfg.Language); language != "" {
		q.Set("language", language)
	}
	if providerCfg.EndpointingMS > 0 {
		q.Set("endpointing", strconv.Itoa(providerCfg.EndpointingMS))
	}
	// Deepgram only accepts utterance_end_ms alongside interim results.
	if providerCfg.UtteranceEndMS > 0 && streamCfg.InterimResults {
		q.Set("utterance_end_ms", strconv.Itoa(providerCfg.UtteranceEndMS))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func pickLanguage(stream, provider string) string {
	if lang := strings.TrimSpace(stream); lang != "" {
		return lang
	}
	return strings.TrimSpace(provider)
}
