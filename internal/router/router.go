package router

import (
	"net/http"
	"strings"

	"github.com/couturelab/backend/internal/admin"
	"github.com/couturelab/backend/internal/auth"
	"github.com/couturelab/backend/internal/dashboard"
)

// New returns an http.Handler that serves the dashboard API under
// /api/v1. These routes authenticate with the dashboard JWT; the studio
// API under /v1 uses API keys and is registered separately.
func New(authHandler *auth.Handler, dashHandler *dashboard.Handler, adminHandler *admin.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"
	mux.HandleFunc(base+"/auth/register", authHandler.Register)
	mux.HandleFunc(base+"/auth/login", authHandler.Login)

	mux.HandleFunc(base+"/account/me", methodGET(dashHandler.GetMe))
	mux.HandleFunc(base+"/account/settings", methodPATCH(dashHandler.UpdateSettings))
	mux.HandleFunc(base+"/credit-ledger", methodGET(dashHandler.ListCreditLedger))
	mux.HandleFunc(base+"/usage", methodGET(dashHandler.ListUsage))
	mux.HandleFunc(base+"/history", methodGET(dashHandler.ListHistory))
	mux.HandleFunc(base+"/history/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.HasSuffix(strings.TrimRight(r.URL.Path, "/"), "/image") {
			dashHandler.GetHistoryImage(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc(base+"/api-keys", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			dashHandler.ListAPIKeys(w, r)
		case http.MethodPost:
			dashHandler.CreateAPIKey(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc(base+"/api-keys/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && strings.Count(r.URL.Path, "/") >= 4 {
			dashHandler.DeleteAPIKey(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc(base+"/admin/users", methodGET(adminHandler.ListUsers))
	mux.HandleFunc(base+"/admin/users/", adminUsersHandler(adminHandler))
	mux.HandleFunc(base+"/admin/credit-ledger/", methodGET(adminHandler.GetLedgerEntry))

	return mux
}

// adminUsersHandler dispatches /admin/users/{id} and its subresources.
func adminUsersHandler(h *admin.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimRight(r.URL.Path, "/")
		switch {
		case strings.HasSuffix(path, "/topup"):
			methodPOST(h.Topup)(w, r)
		case strings.HasSuffix(path, "/credit-ledger"):
			methodGET(h.ListUserLedger)(w, r)
		case strings.HasSuffix(path, "/usage"):
			methodGET(h.ListUserUsage)(w, r)
		default:
			switch r.Method {
			case http.MethodGet:
				h.GetUser(w, r)
			case http.MethodPatch:
				h.UpdateUser(w, r)
			default:
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			}
		}
	}
}

func methodGET(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodPOST(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodPATCH(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}
