package push

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"cashback-ledger/config"
	"cashback-ledger/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient answers each request with the next queued status code.
type scriptedClient struct {
	statuses []int
	requests []*http.Request
	bodies   []message
}

func (c *scriptedClient) Do(req *http.Request) (*http.Response, error) {
	c.requests = append(c.requests, req)
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		var m message
		_ = json.Unmarshal(raw, &m)
		c.bodies = append(c.bodies, m)
	}

	status := http.StatusOK
	if len(c.statuses) > 0 {
		status = c.statuses[0]
		c.statuses = c.statuses[1:]
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("{}")),
	}, nil
}

func newTestSender(client *scriptedClient) *Sender {
	s := NewSender(config.PushConfig{
		Endpoint:  "https://push.example.com/send",
		ServerKey: "server-key",
		Timeout:   time.Second,
	}, client, zerolog.Nop())
	s.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(maxSendRetries, retry.NewConstant(time.Millisecond))
	}
	return s
}

func TestSend_DeliversToAllTokens(t *testing.T) {
	client := &scriptedClient{}
	s := newTestSender(client)

	err := s.Send(context.Background(), ports.Notification{
		Title: "Cashback received",
		Body:  "12.34 RON confirmed",
		Type:  "commission-paid",
	}, []string{"tok-1", "tok-2"})
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "key=server-key", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	require.Len(t, client.bodies, 1)
	body := client.bodies[0]
	assert.Equal(t, []string{"tok-1", "tok-2"}, body.RegistrationIDs)
	assert.Equal(t, "Cashback received", body.Notification.Title)
	assert.Equal(t, "commission-paid", body.Data["type"])
}

func TestSend_RetriesServerErrors(t *testing.T) {
	client := &scriptedClient{statuses: []int{http.StatusBadGateway, http.StatusTooManyRequests, http.StatusOK}}
	s := newTestSender(client)

	err := s.Send(context.Background(), ports.Notification{Title: "t"}, []string{"tok-1"})
	require.NoError(t, err)
	assert.Len(t, client.requests, 3)
}

func TestSend_GivesUpAfterMaxRetries(t *testing.T) {
	client := &scriptedClient{statuses: []int{500, 500, 500, 500, 500}}
	s := newTestSender(client)

	err := s.Send(context.Background(), ports.Notification{Title: "t"}, []string{"tok-1"})
	require.Error(t, err)
	assert.Len(t, client.requests, maxSendRetries+1)
}

func TestSend_ClientErrorIsNotRetried(t *testing.T) {
	client := &scriptedClient{statuses: []int{http.StatusBadRequest}}
	s := newTestSender(client)

	err := s.Send(context.Background(), ports.Notification{Title: "t"}, []string{"tok-1"})
	require.Error(t, err)
	assert.Len(t, client.requests, 1)
}

func TestSend_NoTokensIsNoOp(t *testing.T) {
	client := &scriptedClient{}
	s := newTestSender(client)

	require.NoError(t, s.Send(context.Background(), ports.Notification{Title: "t"}, nil))
	assert.Empty(t, client.requests)
}

func TestSend_NoEndpointIsNoOp(t *testing.T) {
	client := &scriptedClient{}
	s := NewSender(config.PushConfig{}, client, zerolog.Nop())

	require.NoError(t, s.Send(context.Background(), ports.Notification{Title: "t"}, []string{"tok-1"}))
	assert.Empty(t, client.requests)
}
