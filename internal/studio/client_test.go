package studio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/couturelab/backend/internal/models"
	"github.com/couturelab/backend/internal/prompt"
)

func TestClientGenerate_Success(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(models.GenerationResponse{
			Data:       "aW1hZ2U=",
			Usage:      models.Usage{TotalTokens: 1390},
			NewBalance: 46,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "clab_testkey")
	resp, err := c.Generate(context.Background(), batchRequest(models.Resolution1K), false)
	if err != nil {
		t.Fatal(err)
	}
	if resp.NewBalance != 46 || resp.Data != "aW1hZ2U=" {
		t.Errorf("resp = %+v", resp)
	}
	if gotAuth != "Bearer clab_testkey" {
		t.Errorf("auth header %q", gotAuth)
	}
	if gotPath != "/v1/generations" || gotQuery != "" {
		t.Errorf("path %q query %q", gotPath, gotQuery)
	}
}

func TestClientGenerate_RegenerationQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(models.GenerationResponse{NewBalance: 42})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "clab_testkey")
	if _, err := c.Generate(context.Background(), batchRequest(models.Resolution1K), true); err != nil {
		t.Fatal(err)
	}
	if gotQuery != "action=regeneration" {
		t.Errorf("query %q, want action=regeneration", gotQuery)
	}
}

func TestClientGenerate_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusPaymentRequired, ErrInsufficientCredits},
		{http.StatusForbidden, ErrNotEntitled},
		{http.StatusBadGateway, ErrModelFailure},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "nope"})
		}))
		cl := NewClient(srv.URL, "clab_testkey")
		_, err := cl.Generate(context.Background(), batchRequest(models.Resolution1K), false)
		srv.Close()
		if !errors.Is(err, c.want) {
			t.Errorf("status %d mapped to %v, want %v", c.status, err, c.want)
		}
	}
}

func TestClientAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/account" {
			t.Errorf("path %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(models.User{
			Email:         "designer@example.com",
			CreditBalance: 50,
			Resolutions:   []string{models.Resolution1K},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "clab_testkey")
	u, err := c.Account(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if u.CreditBalance != 50 || !u.AllowsResolution(models.Resolution1K) {
		t.Errorf("user = %+v", u)
	}
}

func TestNewGenerationRequest(t *testing.T) {
	payload := &prompt.Payload{
		Parts: []models.Part{
			{InlineData: &models.InlineData{MimeType: "image/jpeg", Data: "c2tldGNo"}},
			{Text: "instruction"},
		},
		Instruction: "instruction",
	}
	req := NewGenerationRequest("gemini-2.5-flash-image", payload, models.GenTypeLookbook, models.Resolution2K, "9:16")
	if req.Config.Count != 1 {
		t.Error("count must always be 1 per wire call")
	}
	if len(req.Contents.Parts) != 2 || req.Type != models.GenTypeLookbook {
		t.Errorf("req = %+v", req)
	}
}
