// Package push delivers mobile push notifications over the provider's HTTP API.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cashback-ledger/config"
	"cashback-ledger/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

const maxSendRetries = 3

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Sender implements ports.Notifier. Delivery is best-effort; callers log
// failures and move on.
type Sender struct {
	cfg        config.PushConfig
	httpClient HTTPClient
	log        zerolog.Logger
	backoff    func() retry.Backoff
}

// NewSender creates a push sender.
func NewSender(cfg config.PushConfig, httpClient HTTPClient, log zerolog.Logger) *Sender {
	return &Sender{
		cfg:        cfg,
		httpClient: httpClient,
		log:        log,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(maxSendRetries, retry.NewFibonacci(500*time.Millisecond))
		},
	}
}

type message struct {
	RegistrationIDs []string          `json:"registration_ids"`
	Notification    messageBody       `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
}

type messageBody struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send delivers one notification to the given device tokens, retrying
// transient failures with backoff.
func (s *Sender) Send(ctx context.Context, n ports.Notification, deviceTokens []string) error {
	if s.cfg.Endpoint == "" || len(deviceTokens) == 0 {
		return nil
	}

	payload, err := json.Marshal(message{
		RegistrationIDs: deviceTokens,
		Notification:    messageBody{Title: n.Title, Body: n.Body},
		Data:            map[string]string{"type": n.Type},
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	err = retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "key="+s.cfg.ServerKey)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return retry.RetryableError(fmt.Errorf("push provider returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("push provider returned %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}

	s.log.Debug().Int("devices", len(deviceTokens)).Str("type", n.Type).Msg("push delivered")
	return nil
}
