package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"costmanager/internal/core"
	"costmanager/internal/log"
	"costmanager/internal/settings"
)

type handlers struct {
	deps   Dependencies
	logger *log.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ready != nil {
		if err := h.deps.Ready(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handlers) rateLimited(w http.ResponseWriter, r *http.Request) {
	h.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldPath, r.URL.Path,
		log.FieldMethod, r.Method)
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded, try again later"})
}

type createCostRequest struct {
	Sum         json.RawMessage `json:"sum"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
}

func (h *handlers) createCost(w http.ResponseWriter, r *http.Request) {
	var req createCostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := parseSumField(req.Sum)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := h.deps.Recorder.Record(r.Context(), core.CostInput{
		Sum:         sum,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *handlers) listCosts(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Costs.ListAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.CostEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handlers) monthlyReport(w http.ResponseWriter, r *http.Request) {
	q, err := parseReportQuery(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	report, err := h.deps.Reports.Generate(r.Context(), q.Year, q.Month, q.Currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) yearlyReport(w http.ResponseWriter, r *http.Request) {
	q, err := parseReportQuery(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := h.deps.Reports.Yearly(r.Context(), q.Year, q.Currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type categoryReportResponse struct {
	Year       int                  `json:"year"`
	Month      int                  `json:"month"`
	Currency   string               `json:"currency"`
	Categories []core.CategoryTotal `json:"categories"`
}

func (h *handlers) categoryReport(w http.ResponseWriter, r *http.Request) {
	q, err := parseReportQuery(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	totals, err := h.deps.Reports.ByCategory(r.Context(), q.Year, q.Month, q.Currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if totals == nil {
		totals = []core.CategoryTotal{}
	}
	writeJSON(w, http.StatusOK, categoryReportResponse{
		Year:       q.Year,
		Month:      q.Month,
		Currency:   q.Currency,
		Categories: totals,
	})
}

type settingsResponse struct {
	RatesURL    string `json:"ratesUrl"`
	ResolvedURL string `json:"resolvedUrl"`
}

func (h *handlers) settingsView(r *http.Request) settingsResponse {
	ctx := r.Context()
	return settingsResponse{
		RatesURL:    h.deps.Settings.Load(ctx).RatesURL,
		ResolvedURL: h.deps.Settings.Resolve(ctx),
	}
}

func (h *handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settingsView(r))
}

// putSettings stores the rates URL. A blank URL is allowed and makes the
// built-in default source apply again.
func (h *handlers) putSettings(w http.ResponseWriter, r *http.Request) {
	var req settings.Settings
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	url := strings.TrimSpace(req.RatesURL)
	if url != "" && !validSourceURL(url) {
		writeError(w, r, core.NewValidationError("ratesUrl must be an http or https URL", nil))
		return
	}
	if err := h.deps.Settings.Save(r.Context(), settings.Settings{RatesURL: url}); err != nil {
		writeError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "Rates source updated", log.FieldRatesURL, url)
	writeJSON(w, http.StatusOK, h.settingsView(r))
}

type testSourceResponse struct {
	RatesURL   string   `json:"ratesUrl"`
	Currencies []string `json:"currencies"`
}

// testSettings fetches a candidate source, or the resolved one when the body
// names none, without caching it.
func (h *handlers) testSettings(w http.ResponseWriter, r *http.Request) {
	var req settings.Settings
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	url := strings.TrimSpace(req.RatesURL)
	if url == "" {
		url = h.deps.Settings.Resolve(r.Context())
	}
	if !validSourceURL(url) {
		writeError(w, r, core.NewValidationError("ratesUrl must be an http or https URL", nil))
		return
	}

	table, err := h.deps.Rates.FetchFrom(r.Context(), url)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, testSourceResponse{RatesURL: url, Currencies: table.Currencies()})
}

func (h *handlers) clearRatesCache(w http.ResponseWriter, r *http.Request) {
	h.deps.Rates.ClearCache()
	h.logger.InfoContext(r.Context(), "Rates cache cleared")
	w.WriteHeader(http.StatusNoContent)
}
