package campaign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/pkg/httpretry"
)

// HTTPRunner asks the campaign sender to run a campaign with
// POST <base>/campaigns/{id}/run.
type HTTPRunner struct {
	base   string
	token  string
	client httpretry.HTTPDoer
}

// NewHTTPRunner creates a runner for the sender at baseURL. token, when set,
// is sent as a bearer token.
func NewHTTPRunner(baseURL, token string, client httpretry.HTTPDoer) (*HTTPRunner, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	return &HTTPRunner{base: strings.TrimRight(baseURL, "/"), token: token, client: client}, nil
}

type runRequest struct {
	CompanyID string  `json:"companyId"`
	SegmentID *string `json:"segmentId,omitempty"`
}

func (r *HTTPRunner) RunCampaign(ctx context.Context, c *domain.Campaign) error {
	body, err := json.Marshal(runRequest{CompanyID: c.CompanyID, SegmentID: c.SegmentID})
	if err != nil {
		return err
	}
	endpoint := r.base + "/campaigns/" + url.PathEscape(c.ID) + "/run"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("run campaign: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrRunRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// LogRunner records campaigns that would have been re-run. Used when no
// campaign sender is configured.
type LogRunner struct{}

func (LogRunner) RunCampaign(_ context.Context, c *domain.Campaign) error {
	log.Printf("[campaign.LogRunner] skipping run of campaign %s (company %s): no runner configured", c.ID, c.CompanyID)
	return nil
}
