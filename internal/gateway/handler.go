package gateway

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the public gateway surface over chi.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) Routes(r chi.Router) {
	r.Get("/auth/login", h.login)
	r.Get("/auth/callback", h.callback)
	r.Get("/usage/stats", h.stats)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect, fail := h.svc.Login(r.Context(), LoginRequest{
		AppID:        q.Get("app_id"),
		Provider:     q.Get("provider"),
		RedirectPath: q.Get("redirect"),
	})
	if fail != nil {
		// Admission denials stay JSON so the caller gets the plan guidance;
		// other failures go back to the app UI when we know where it lives.
		if fail.Decision == nil && fail.AppRedirect != "" {
			redirectFailure(w, r, fail)
			return
		}
		writeFailure(w, fail)
		return
	}
	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		// Alipay delivers the code as auth_code.
		code = q.Get("auth_code")
	}
	redirect, fail := h.svc.Callback(r.Context(), CallbackRequest{
		Code:  code,
		State: q.Get("state"),
	})
	if fail != nil {
		// The browser is mid-flight on the callback leg; send it back to the
		// app when we know where that is, else fall back to JSON.
		if fail.AppRedirect != "" {
			redirectFailure(w, r, fail)
			return
		}
		writeFailure(w, fail)
		return
	}
	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

func redirectFailure(w http.ResponseWriter, r *http.Request, f *Failure) {
	q := url.Values{}
	q.Set("error", f.Code)
	q.Set("error_description", f.Description)
	http.Redirect(w, r, withQuery(f.AppRedirect, q), http.StatusFound)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	resp, fail := h.svc.Stats(r.Context(), r.URL.Query().Get("developer_id"))
	if fail != nil {
		writeFailure(w, fail)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Timestamp        string `json:"timestamp"`

	// LIMIT_EXCEEDED only.
	CurrentPlan  string       `json:"current_plan,omitempty"`
	RequiredPlan string       `json:"required_plan,omitempty"`
	CurrentUsage *usageDetail `json:"current_usage,omitempty"`
}

type usageDetail struct {
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
}

func writeFailure(w http.ResponseWriter, f *Failure) {
	body := errorBody{
		Error:            f.Code,
		ErrorDescription: f.Description,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	}
	if f.Decision != nil {
		body.CurrentPlan = string(f.Decision.Plan)
		body.RequiredPlan = string(f.Decision.RecommendedPlan)
		body.CurrentUsage = &usageDetail{
			Daily:   f.Decision.Usage.Daily,
			Monthly: f.Decision.Usage.Monthly,
		}
	}
	writeJSON(w, f.Status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
