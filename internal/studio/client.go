// Package studio is the client side of the generation pipeline: an HTTP
// client for the /v1 API, the safe-parallel batch executor, and the
// cached-balance synchronizer. The studio CLI and design tool
// integrations build on it.
package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/couturelab/backend/internal/models"
	"github.com/couturelab/backend/internal/prompt"
)

// Client-visible failure classes, mapped from gateway HTTP statuses.
var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrNotEntitled         = errors.New("not entitled")
	ErrModelFailure        = errors.New("image generation failed upstream")
)

const requestTimeout = 180 * time.Second

// Client talks to the generation API with an API key.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: requestTimeout},
	}
}

// Generate runs one single-image generation call. regen marks the call
// as a slot regeneration for usage accounting.
func (c *Client) Generate(ctx context.Context, req models.GenerationRequest, regen bool) (*models.GenerationResponse, error) {
	url := c.BaseURL + "/v1/generations"
	if regen {
		url += "?action=" + models.ActionRegeneration
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal generation request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call generation api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var out models.GenerationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode generation response: %w", err)
	}
	return &out, nil
}

// Account returns the authenticated user's profile: balance and
// entitlements, used to seed the balance cache and clamp tier selection.
func (c *Client) Account(ctx context.Context) (*models.User, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/account", nil)
	if err != nil {
		return nil, fmt.Errorf("create account request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call account api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var u models.User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode account response: %w", err)
	}
	return &u, nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", ErrInsufficientCredits, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrNotEntitled, msg)
	case http.StatusBadGateway:
		return fmt.Errorf("%w: %s", ErrModelFailure, msg)
	default:
		return fmt.Errorf("api error (status %d): %s", resp.StatusCode, msg)
	}
}

// NewGenerationRequest assembles the wire request for one image from a
// composed prompt payload.
func NewGenerationRequest(model string, payload *prompt.Payload, genType, resolution, aspectRatio string) models.GenerationRequest {
	return models.GenerationRequest{
		Model:    model,
		Contents: models.Contents{Parts: payload.Parts},
		Type:     genType,
		Config: models.GenerationConfig{
			Count:       1,
			Resolution:  resolution,
			AspectRatio: aspectRatio,
		},
	}
}
