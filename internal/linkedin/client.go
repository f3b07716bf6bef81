// Package linkedin is the protocol-level client for the publishing
// platform. A Client is stateless and constructed per job with just the
// access credential and the company identity, so concurrent workers never
// share mutable adapter state.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aweilerffp/marketing-machine-sub001/pkg/clients"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/logging"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/models"
)

const (
	// DefaultAPIURL is the LinkedIn REST endpoint.
	DefaultAPIURL = "https://api.linkedin.com"

	defaultTimeout = 30 * time.Second
)

// Config configures a per-job client.
type Config struct {
	BaseURL     string
	AccessToken string
	CompanyID   string
	Timeout     time.Duration
	Breaker     *clients.CircuitBreaker // optional, shared across clients
	Logger      logging.Logger
	HTTPClient  *http.Client // optional override, used by tests
}

// Client talks to the platform for exactly one (token, company) pair.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	companyID   string
	breaker     *clients.CircuitBreaker
	logger      logging.Logger
}

// NewClient creates a stateless platform client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: clients.DefaultTransport(),
		}
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     baseURL,
		accessToken: cfg.AccessToken,
		companyID:   cfg.CompanyID,
		breaker:     cfg.Breaker,
		logger:      cfg.Logger,
	}
}

// ValidateToken checks the stored credential against the platform's
// identity endpoint. A definitive 401/403 yields (false, nil); transport
// failures yield an error.
func (c *Client) ValidateToken(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/userinfo", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.do(req)
	if err != nil {
		return false, &models.PublishError{Message: fmt.Sprintf("token validation failed: %v", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, &models.PublishError{Message: fmt.Sprintf("token validation returned status %d", resp.StatusCode)}
	}
}

// ugcPost is the share payload for the ugcPosts endpoint.
type ugcPost struct {
	Author          string                  `json:"author"`
	LifecycleState  string                  `json:"lifecycleState"`
	SpecificContent map[string]shareContent `json:"specificContent"`
	Visibility      map[string]string       `json:"visibility"`
}

type shareContent struct {
	ShareCommentary    textWrapper  `json:"shareCommentary"`
	ShareMediaCategory string       `json:"shareMediaCategory"`
	Media              []shareMedia `json:"media,omitempty"`
}

type textWrapper struct {
	Text string `json:"text"`
}

type shareMedia struct {
	Status      string      `json:"status"`
	OriginalURL string      `json:"originalUrl"`
	Title       textWrapper `json:"title"`
}

// PublishTextPost shares formatted text on behalf of the company.
func (c *Client) PublishTextPost(ctx context.Context, formattedContent, visibility string) (*models.PublishResult, error) {
	payload := c.basePayload(formattedContent, visibility)
	payload.SpecificContent["com.linkedin.ugc.ShareContent"] = shareContent{
		ShareCommentary:    textWrapper{Text: formattedContent},
		ShareMediaCategory: "NONE",
	}
	return c.publish(ctx, payload, "")
}

// PublishImagePost shares a caption plus a single image reference.
func (c *Client) PublishImagePost(ctx context.Context, caption, imageURL, visibility string) (*models.PublishResult, error) {
	payload := c.basePayload(caption, visibility)
	payload.SpecificContent["com.linkedin.ugc.ShareContent"] = shareContent{
		ShareCommentary:    textWrapper{Text: caption},
		ShareMediaCategory: "IMAGE",
		Media: []shareMedia{{
			Status:      "READY",
			OriginalURL: imageURL,
			Title:       textWrapper{Text: caption},
		}},
	}
	return c.publish(ctx, payload, imageURL)
}

func (c *Client) basePayload(text, visibility string) ugcPost {
	if visibility == "" {
		visibility = VisibilityPublic
	}
	return ugcPost{
		Author:          "urn:li:organization:" + c.companyID,
		LifecycleState:  "PUBLISHED",
		SpecificContent: map[string]shareContent{},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": visibility,
		},
	}
}

func (c *Client) publish(ctx context.Context, payload ugcPost, imageRef string) (*models.PublishResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &models.PublishError{Message: fmt.Sprintf("failed to encode share payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return nil, &models.PublishError{Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := c.do(req)
	if err != nil {
		return nil, &models.PublishError{Message: fmt.Sprintf("platform request failed: %v", err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &models.AuthError{Message: "access token is invalid or expired"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.PublishError{Message: platformMessage(resp.StatusCode, respBody)}
	}

	platformID := resp.Header.Get("X-RestLi-Id")
	if platformID == "" {
		var created struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(respBody, &created); err == nil {
			platformID = created.ID
		}
	}

	result := &models.PublishResult{
		PlatformID:  platformID,
		URL:         "https://www.linkedin.com/feed/update/" + platformID,
		PublishedAt: time.Now().UTC(),
		ImageRef:    imageRef,
	}

	if c.logger != nil {
		c.logger.WithFields(logging.Fields{
			"company_id":  c.companyID,
			"platform_id": platformID,
		}).Info("Published to LinkedIn")
	}

	return result, nil
}

// do routes the request through the shared circuit breaker when one is
// configured.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	err := c.breaker.Call(func() error {
		var callErr error
		resp, callErr = c.httpClient.Do(req)
		if callErr != nil {
			return callErr
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error: %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil && resp == nil {
		return nil, err
	}
	return resp, nil
}

// platformMessage extracts the platform's error message verbatim,
// falling back to the raw body.
func platformMessage(status int, body []byte) string {
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	if len(body) > 0 {
		return fmt.Sprintf("platform returned status %d: %s", status, bytes.TrimSpace(body))
	}
	return fmt.Sprintf("platform returned status %d", status)
}
