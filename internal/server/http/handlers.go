package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anesthub/research-digest-service/internal/domain"
	"github.com/anesthub/research-digest-service/internal/journals"
)

const (
	dateLayout         = "2006-01-02"
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
	maxDateRangeDays   = 366
)

// deepSummaryRequest is the JSON request body for a deep summary. The fields
// mirror an enriched paper; the model reads the title and the abstract, with
// the enriched summary standing in when the source had no abstract. At least
// one of the two must be present.
type deepSummaryRequest struct {
	PMID     string   `json:"id" validate:"required"`
	Title    string   `json:"title" validate:"required,min=3"`
	Authors  []string `json:"authors,omitempty"`
	Journal  string   `json:"journal,omitempty"`
	Date     string   `json:"date,omitempty"`
	URL      string   `json:"url,omitempty"`
	Abstract string   `json:"abstract,omitempty" validate:"required_without=Summary,omitempty,min=10"`
	Summary  string   `json:"summary,omitempty" validate:"required_without=Abstract,omitempty,min=10"`
}

// getResearch handles GET /api/v1/research.
// Optional query parameters: journal (canonical label), start and end
// (YYYY-MM-DD, both or neither).
func (s *Server) getResearch(w http.ResponseWriter, r *http.Request) {
	journal, from, to, err := parseResearchFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	papers, err := s.digest.Research(r.Context(), journal, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, papersResponseFor(papers, journal, from, to))
}

// refreshResearch handles POST /api/v1/research/refresh. It bypasses the
// cache for the given filters and returns the fresh result.
func (s *Server) refreshResearch(w http.ResponseWriter, r *http.Request) {
	journal, from, to, err := parseResearchFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	papers, err := s.digest.Refresh(r.Context(), journal, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, papersResponseFor(papers, journal, from, to))
}

// getGuidelines handles GET /api/v1/guidelines.
func (s *Server) getGuidelines(w http.ResponseWriter, r *http.Request) {
	papers, err := s.digest.Guidelines(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, papersResponse{Papers: papers, Count: len(papers)})
}

// listJournals handles GET /api/v1/journals.
func (s *Server) listJournals(w http.ResponseWriter, r *http.Request) {
	known := s.digest.Journals()
	entries := make([]journalEntry, len(known))
	for i, j := range known {
		entries[i] = journalEntry{Label: j.Label, MedlineTitle: j.TA}
	}
	writeJSON(w, http.StatusOK, journalsResponse{Journals: entries, Count: len(entries)})
}

// getWeeklyReport handles GET /api/v1/reports/weekly.
func (s *Server) getWeeklyReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.digest.WeeklyReport(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, weeklyReportResponse{Report: report, GeneratedAt: time.Now().UTC()})
}

// deepSummary handles POST /api/v1/papers/deep-summary.
func (s *Server) deepSummary(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req deepSummaryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	paper := domain.Paper{
		ID:       req.PMID,
		Title:    strings.TrimSpace(req.Title),
		Authors:  req.Authors,
		Journal:  journals.Normalize(req.Journal),
		Date:     req.Date,
		URL:      req.URL,
		Abstract: req.Abstract,
		Summary:  req.Summary,
	}

	summary, err := s.digest.DeepSummary(r.Context(), paper)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deepSummaryResponse{PMID: req.PMID, Summary: summary})
}

// parseResearchFilters reads the journal and date-range query parameters.
// start and end must be given together, end must not precede start, and the
// window is capped so a typo cannot trigger an unbounded source query.
func parseResearchFilters(r *http.Request) (journal string, from, to time.Time, err error) {
	q := r.URL.Query()

	journal = strings.TrimSpace(q.Get("journal"))
	if journal != "" {
		if _, ok := journals.LookupLabel(journal); !ok {
			return "", time.Time{}, time.Time{}, fmt.Errorf("unknown journal %q", journal)
		}
	}

	start, end := q.Get("start"), q.Get("end")
	if (start == "") != (end == "") {
		return "", time.Time{}, time.Time{}, fmt.Errorf("start and end must be provided together")
	}
	if start == "" {
		return journal, time.Time{}, time.Time{}, nil
	}

	from, err = time.Parse(dateLayout, start)
	if err != nil {
		return "", time.Time{}, time.Time{}, fmt.Errorf("invalid start date, expected YYYY-MM-DD")
	}
	to, err = time.Parse(dateLayout, end)
	if err != nil {
		return "", time.Time{}, time.Time{}, fmt.Errorf("invalid end date, expected YYYY-MM-DD")
	}
	if to.Before(from) {
		return "", time.Time{}, time.Time{}, fmt.Errorf("end date precedes start date")
	}
	if to.Sub(from) > maxDateRangeDays*24*time.Hour {
		return "", time.Time{}, time.Time{}, fmt.Errorf("date range must not exceed %d days", maxDateRangeDays)
	}
	return journal, from, to, nil
}

func papersResponseFor(papers []domain.Paper, journal string, from, to time.Time) papersResponse {
	resp := papersResponse{Papers: papers, Count: len(papers), Journal: journal}
	if !from.IsZero() {
		resp.From = from.Format(dateLayout)
		resp.To = to.Format(dateLayout)
	}
	return resp
}
