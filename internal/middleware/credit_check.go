package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/couturelab/backend/internal/pricing"
)

// peekedRequest is the slice of the generation request the pre-flight
// check needs. The full body is restored for the handler.
type peekedRequest struct {
	Type   string `json:"type"`
	Config struct {
		Resolution string `json:"resolution"`
	} `json:"config"`
}

// CreditCheck rejects requests the authenticated user cannot afford or
// is not entitled to, before the body reaches the gateway. This is the
// cheap early check; the gateway service re-validates against a fresh
// user row before any debit.
func CreditCheck() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromCtx(r.Context())
			if user == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek peekedRequest
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}

			price, err := pricing.Cost(peek.Type, peek.Config.Resolution)
			if err != nil {
				http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
				return
			}

			if !user.IsActive {
				http.Error(w, `{"error":"account is deactivated"}`, http.StatusForbidden)
				return
			}
			if !user.AllowsResolution(peek.Config.Resolution) {
				http.Error(w, fmt.Sprintf(`{"error":"resolution %s is not included in your plan"}`, peek.Config.Resolution), http.StatusForbidden)
				return
			}
			if !user.AllowsFeature(peek.Type) {
				http.Error(w, fmt.Sprintf(`{"error":"the %s module is not included in your plan"}`, peek.Type), http.StatusForbidden)
				return
			}
			if user.CreditBalance < price {
				http.Error(w, fmt.Sprintf(`{"error":"insufficient credits: need %d, have %d"}`, price, user.CreditBalance), http.StatusPaymentRequired)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
