package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"github.com/rl1809/food-flow/internal/core/domain"
)

// RemoteError is a failure reported by the completion endpoint.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("assistant: %d %s", e.Status, e.Message)
}

type RemoteConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	// MaxFailures consecutive failures open the breaker for OpenTimeout.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Remote calls a completion endpoint over HTTP. A circuit breaker stops
// calling it after repeated failures so the chat falls back immediately.
type Remote struct {
	url     string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[domain.AssistantReply]
}

func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "assistant",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
		// Bad input is the caller's fault, not the endpoint's.
		IsSuccessful: func(err error) bool {
			var remoteErr *RemoteError
			if errors.As(err, &remoteErr) {
				return remoteErr.Status < http.StatusInternalServerError
			}
			return err == nil
		},
	}

	return &Remote{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[domain.AssistantReply](settings),
	}
}

func (r *Remote) Complete(ctx context.Context, req domain.AssistantRequest) (domain.AssistantReply, error) {
	return r.breaker.Execute(func() (domain.AssistantReply, error) {
		return r.call(ctx, req)
	})
}

func (r *Remote) call(ctx context.Context, req domain.AssistantRequest) (domain.AssistantReply, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return domain.AssistantReply{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return domain.AssistantReply{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.http.Do(httpReq)
	if err != nil {
		return domain.AssistantReply{}, fmt.Errorf("call assistant: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return domain.AssistantReply{}, &RemoteError{Status: resp.StatusCode, Message: body.Error}
	}

	var reply domain.AssistantReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return domain.AssistantReply{}, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}
