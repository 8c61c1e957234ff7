package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/anesthub/research-digest-service/internal/domain"
)

type papersResponse struct {
	Papers  []domain.Paper `json:"papers"`
	Count   int            `json:"count"`
	Journal string         `json:"journal,omitempty"`
	From    string         `json:"from,omitempty"`
	To      string         `json:"to,omitempty"`
}

type journalsResponse struct {
	Journals []journalEntry `json:"journals"`
	Count    int            `json:"count"`
}

type journalEntry struct {
	Label        string `json:"label"`
	MedlineTitle string `json:"medline_title"`
}

type deepSummaryResponse struct {
	PMID    string `json:"pmid"`
	Summary string `json:"summary"`
}

type weeklyReportResponse struct {
	Report      string    `json:"report"`
	GeneratedAt time.Time `json:"generated_at"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// writeDomainError maps a pipeline or cache error onto an HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		var rle *domain.RateLimitError
		if errors.As(err, &rle) && rle.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(rle.RetryAfter.Seconds())))
		}
		writeError(w, http.StatusTooManyRequests, "upstream rate limit exceeded, retry later")
	case errors.Is(err, domain.ErrRefreshInProgress):
		writeError(w, http.StatusConflict, "a refresh for this query is already running")
	case errors.Is(err, domain.ErrSourceUnavailable):
		writeError(w, http.StatusBadGateway, "bibliographic source unavailable")
	case errors.Is(err, domain.ErrEnrichmentUnavailable):
		writeError(w, http.StatusBadGateway, "enrichment service unavailable")
	case errors.Is(err, domain.ErrMissingCredentials):
		writeError(w, http.StatusInternalServerError, "service misconfigured")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
