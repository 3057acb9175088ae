// Package feed talks to the affiliate network's commission API.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"cashback-ledger/config"
	"cashback-ledger/internal/core/domain"
	"cashback-ledger/internal/core/ports"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// session carries the network's token-auth state. It lives on the client and
// expires explicitly instead of hiding in a package-level cache, so a 401 can
// drop it and the next call re-authenticates.
type session struct {
	accessToken string
	client      string
	uid         string
	tokenType   string
	uniqueCode  string
	expiresAt   time.Time
}

func (s *session) valid() bool {
	return s != nil && time.Now().Before(s.expiresAt)
}

// Client implements ports.CommissionFeed. Transient upstream failures
// (including 429 rate limiting with Retry-After) are retried with backoff by
// the underlying retryable HTTP client.
type Client struct {
	cfg  config.FeedConfig
	http *retryablehttp.Client
	log  zerolog.Logger

	mu   sync.Mutex
	sess *session
}

// NewClient creates a feed client.
func NewClient(cfg config.FeedConfig, log zerolog.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil

	return &Client{
		cfg:  cfg,
		http: rc,
		log:  log,
	}
}

// commissionPage is the feed's wire format for one page of commissions.
type commissionPage struct {
	Commissions []feedCommission `json:"commissions"`
	Metadata    struct {
		Pagination struct {
			CurrentPage int `json:"current_page"`
			Pages       int `json:"pages"`
		} `json:"pagination"`
	} `json:"metadata"`
}

type feedCommission struct {
	ID        int64    `json:"id"`
	Amount    string   `json:"amount"`
	Currency  string   `json:"currency"`
	Status    string   `json:"status"`
	Reason    []string `json:"reason"`
	StatsTags string   `json:"stats_tags"`
	ProgramID int64    `json:"program_id"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
	Program   struct {
		Name string `json:"name"`
	} `json:"program"`
	PublicActionData struct {
		SourceIP string `json:"source_ip"`
	} `json:"public_action_data"`
}

// FetchCommissions retrieves every commission page reported since the given
// watermark. The result may overlap previous fetches; the reconciler is
// idempotent against that.
func (c *Client) FetchCommissions(ctx context.Context, since *time.Time) ([]ports.FeedCommission, error) {
	var all []ports.FeedCommission

	page := 1
	for {
		body, err := c.fetchPage(ctx, since, page)
		if err != nil {
			return nil, err
		}

		for _, fc := range body.Commissions {
			mapped, err := mapCommission(fc)
			if err != nil {
				c.log.Warn().Err(err).Int64("feed_id", fc.ID).Msg("skipping malformed feed commission")
				continue
			}
			all = append(all, mapped)
		}

		if body.Metadata.Pagination.CurrentPage >= body.Metadata.Pagination.Pages {
			break
		}
		page++
	}

	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, since *time.Time, page int) (*commissionPage, error) {
	return c.fetchPageWithAuth(ctx, since, page, false)
}

// fetchPageWithAuth retries a rejected session at most once: a 401 after a
// fresh sign-in means the credentials themselves are bad, not the session.
func (c *Client) fetchPageWithAuth(ctx context.Context, since *time.Time, page int, reauthed bool) (*commissionPage, error) {
	sess, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/affiliate/commissions?page=%d&perpage=%d",
		strings.TrimRight(c.cfg.BaseURL, "/"), page, c.cfg.PageSize)
	if since != nil {
		url += "&filter[since]=" + since.UTC().Format(time.RFC3339)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}
	req.Header.Set("access-token", sess.accessToken)
	req.Header.Set("client", sess.client)
	req.Header.Set("uid", sess.uid)
	req.Header.Set("token-type", sess.tokenType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch commissions page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if reauthed {
			return nil, fmt.Errorf("feed rejected fresh session for page %d", page)
		}
		// Session expired upstream before our local expiry; drop it and retry
		// once with a fresh sign-in.
		c.invalidateSession()
		return c.fetchPageWithAuth(ctx, since, page, true)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d for page %d", resp.StatusCode, page)
	}

	var body commissionPage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode commissions page %d: %w", page, err)
	}
	return &body, nil
}

// ensureSession returns a valid session, signing in when needed.
func (c *Client) ensureSession(ctx context.Context) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.valid() {
		return c.sess, nil
	}

	reqBody, err := json.Marshal(map[string]any{
		"user": map[string]string{
			"email":    c.cfg.Email,
			"password": c.cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal sign-in body: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/users/sign_in"
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed sign-in: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("feed sign-in returned status %d", resp.StatusCode)
	}

	var body struct {
		User struct {
			UniqueCode string `json:"unique_code"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode sign-in response: %w", err)
	}

	c.sess = &session{
		accessToken: resp.Header.Get("access-token"),
		client:      resp.Header.Get("client"),
		uid:         resp.Header.Get("uid"),
		tokenType:   resp.Header.Get("token-type"),
		uniqueCode:  body.User.UniqueCode,
		expiresAt:   time.Now().Add(c.cfg.SessionTTL),
	}

	c.log.Debug().Time("expires_at", c.sess.expiresAt).Msg("feed session established")
	return c.sess, nil
}

func (c *Client) invalidateSession() {
	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()
}

// mapCommission converts the wire format into the attribution-ready form.
func mapCommission(fc feedCommission) (ports.FeedCommission, error) {
	amount, err := parseAmount(fc.Amount)
	if err != nil {
		return ports.FeedCommission{}, fmt.Errorf("parse amount %q: %w", fc.Amount, err)
	}

	createdAt, err := time.Parse(time.RFC3339, fc.CreatedAt)
	if err != nil {
		return ports.FeedCommission{}, fmt.Errorf("parse created_at %q: %w", fc.CreatedAt, err)
	}
	updatedAt, err := time.Parse(time.RFC3339, fc.UpdatedAt)
	if err != nil {
		return ports.FeedCommission{}, fmt.Errorf("parse updated_at %q: %w", fc.UpdatedAt, err)
	}

	raw, err := json.Marshal(fc)
	if err != nil {
		return ports.FeedCommission{}, fmt.Errorf("marshal raw commission: %w", err)
	}

	return ports.FeedCommission{
		OriginID:       strconv.FormatInt(fc.ID, 10),
		UserCode:       userCodeFromTags(fc.StatsTags),
		SourceIP:       fc.PublicActionData.SourceIP,
		ProgramID:      strconv.FormatInt(fc.ProgramID, 10),
		Program:        fc.Program.Name,
		OriginalAmount: amount,
		Currency:       fc.Currency,
		Status:         domain.CommissionStatus(fc.Status),
		Reason:         strings.Join(fc.Reason, "; "),
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		Raw:            raw,
	}, nil
}

// parseAmount converts the feed's decimal string into minor units.
func parseAmount(s string) (int64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f * 100)), nil
}

// userCodeFromTags extracts the user code the click tagging embedded in the
// commission's stats tags, e.g. "(user-code)".
func userCodeFromTags(tags string) string {
	code := strings.TrimSpace(tags)
	code = strings.TrimPrefix(code, "(")
	code = strings.TrimSuffix(code, ")")
	return code
}
