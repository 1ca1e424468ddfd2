package main

import (
	"encoding/json"
	"net/http"

	"github.com/couturelab/backend/internal/gateway"
	"github.com/couturelab/backend/internal/middleware"
	"github.com/couturelab/backend/internal/repository"
)

// RegisterV1Routes adds the /v1/ studio API endpoints to the given mux.
// Middleware chain: APIKeyAuth -> (CreditCheck on POST /v1/generations) -> handler.
func RegisterV1Routes(
	mux *http.ServeMux,
	apiKeyRepo *repository.APIKeyRepo,
	genHandler *gateway.Handler,
) {
	auth := middleware.APIKeyAuth(apiKeyRepo)
	creditCheck := middleware.CreditCheck()

	// POST /v1/generations — Auth -> CreditCheck -> Generate
	mux.Handle("POST /v1/generations", auth(creditCheck(http.HandlerFunc(genHandler.Generate))))

	// GET /v1/account — balance and entitlements for the studio client
	mux.Handle("GET /v1/account", auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromCtx(r.Context())
		if user == nil {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(user)
	})))
}
