// Package genai is the HTTP client for the hosted image generation
// model. It speaks the inline-parts wire format: ordered image and text
// parts in, one base64 image plus token accounting out.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/couturelab/backend/internal/models"
)

const generateTimeout = 120 * time.Second

// ErrModel marks any upstream model failure: timeout, content policy
// rejection, transient 5xx. Callers never retry automatically.
var ErrModel = errors.New("image model request failed")

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: generateTimeout},
	}
}

// Result is one generated image with its usage accounting.
type Result struct {
	Data     string
	MimeType string
	Usage    models.Usage
}

type upstreamRequest struct {
	Contents         []upstreamContent `json:"contents"`
	GenerationConfig upstreamConfig    `json:"generationConfig"`
}

type upstreamContent struct {
	Parts []models.Part `json:"parts"`
}

type upstreamConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	ImageConfig        upstreamImage `json:"imageConfig"`
}

type upstreamImage struct {
	AspectRatio string `json:"aspectRatio"`
	ImageSize   string `json:"imageSize"`
}

type upstreamResponse struct {
	Candidates []struct {
		Content struct {
			Parts []models.Part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateImage runs one generation call. Exactly one image is requested
// per call; batching is the caller's concern.
func (c *Client) GenerateImage(ctx context.Context, req models.GenerationRequest) (*Result, error) {
	body, err := json.Marshal(upstreamRequest{
		Contents: []upstreamContent{{Parts: req.Contents.Parts}},
		GenerationConfig: upstreamConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig: upstreamImage{
				AspectRatio: req.Config.AspectRatio,
				ImageSize:   req.Config.Resolution,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal model request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.BaseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create model request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrModel, err)
	}

	var out upstreamResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: invalid response JSON: %v", ErrModel, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := "unknown error"
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrModel, resp.StatusCode, msg)
	}

	for _, cand := range out.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				return &Result{
					Data:     part.InlineData.Data,
					MimeType: part.InlineData.MimeType,
					Usage: models.Usage{
						PromptTokens:   out.UsageMetadata.PromptTokenCount,
						ResponseTokens: out.UsageMetadata.CandidatesTokenCount,
						TotalTokens:    out.UsageMetadata.TotalTokenCount,
					},
				}, nil
			}
		}
	}
	// 2xx with no image part means the model declined (content policy).
	return nil, fmt.Errorf("%w: response contained no image", ErrModel)
}
