package web

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/payments/internal/core"
	"github.com/JonMunkholm/payments/internal/csv"
	"github.com/JonMunkholm/payments/internal/ledger"
	"github.com/JonMunkholm/payments/internal/logging"
	"github.com/JonMunkholm/payments/internal/store"
)

// multipartMemory is how much of a multipart body is buffered in memory;
// the rest spills to temporary files.
const multipartMemory = 32 << 20

// AccountView is an account with amounts printed at fixed precision.
type AccountView struct {
	Client    uint16 `json:"client"`
	Available string `json:"available"`
	Held      string `json:"held"`
	Total     string `json:"total"`
	Locked    bool   `json:"locked"`
}

// RunResponse is the JSON body returned for a finished run.
type RunResponse struct {
	RunID      string           `json:"run_id"`
	Source     string           `json:"source"`
	StartedAt  time.Time        `json:"started_at"`
	DurationMS int64            `json:"duration_ms"`
	BytesRead  int64            `json:"bytes_read"`
	Events     int64            `json:"events"`
	Applied    int64            `json:"applied"`
	Failed     int64            `json:"failed"`
	ByKind     map[string]int64 `json:"by_type,omitempty"`
	Stored     bool             `json:"stored"`
	Accounts   []AccountView    `json:"accounts,omitempty"`
	FailedRows []core.FailedRow `json:"failed_rows,omitempty"`
	Truncated  bool             `json:"failed_rows_truncated,omitempty"`
}

// handleCreateRun processes the CSV in the request and returns the accounts.
//
// The CSV is either the raw body or the "file" part of a multipart form.
// With ?format=csv the account table is returned as CSV.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	input, source, cleanup, err := requestInput(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer cleanup()

	res, err := s.service.Run(r.Context(), core.RunRequest{Source: source}, input)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("X-Run-ID", res.RunID.String())

	if wantsCSV(r) {
		s.writeAccountsCSV(w, r, res.Accounts)
		return
	}

	writeJSONStatus(w, r, http.StatusCreated, s.toResponse(res))
}

// requestInput returns the CSV stream of r and a name for it.
func requestInput(r *http.Request) (io.Reader, string, func(), error) {
	noop := func() {}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		source := r.URL.Query().Get("source")
		if source == "" {
			source = "request-body"
		}
		return r.Body, source, noop, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, "", noop, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", noop, errNoFile
	}
	return file, header.Filename, func() { file.Close() }, nil
}

// handleListRuns lists stored runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			badRequest(w, r, "limit must be 1-1000")
			return
		}
		limit = n
	}

	runs, err := s.service.RecentRuns(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]RunResponse, len(runs))
	for i, run := range runs {
		out[i] = storedRunResponse(run)
	}
	writeJSON(w, r, out)
}

// handleGetRun returns the summary of a stored run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runIDParam(w, r)
	if !ok {
		return
	}

	run, err := s.service.StoredRun(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, storedRunResponse(run))
}

// handleRunAccounts returns the accounts of a stored run.
func (s *Server) handleRunAccounts(w http.ResponseWriter, r *http.Request) {
	id, ok := runIDParam(w, r)
	if !ok {
		return
	}

	accounts, err := s.service.Accounts(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if wantsCSV(r) {
		s.writeAccountsCSV(w, r, accounts)
		return
	}
	writeJSON(w, r, s.accountViews(accounts))
}

// handleDeleteRun removes a stored run and its accounts.
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runIDParam(w, r)
	if !ok {
		return
	}

	if err := s.service.DeleteRun(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePurgeRuns removes stored runs started before ?before (RFC 3339).
func (s *Server) handlePurgeRuns(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("before")
	if raw == "" {
		badRequest(w, r, "before is required")
		return
	}
	before, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		badRequest(w, r, "before must be an RFC 3339 timestamp")
		return
	}

	n, err := s.service.PurgeRuns(r.Context(), before)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]int64{"deleted": n})
}

func wantsCSV(r *http.Request) bool {
	return strings.EqualFold(r.URL.Query().Get("format"), "csv")
}

// writeAccountsCSV streams the account table. Headers are sent by the first
// write, so a failure can only be logged.
func (s *Server) writeAccountsCSV(w http.ResponseWriter, r *http.Request, accounts []ledger.Account) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	if err := csv.WriteAccounts(w, accounts, s.service.AmountPlaces()); err != nil {
		logging.FromContext(r.Context()).Error("writing accounts csv", "error", err)
	}
}

func (s *Server) handleLimiterStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.service.LimiterStatus())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]string{"status": "ok"})
}

func runIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		badRequest(w, r, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) toResponse(res *core.RunResult) RunResponse {
	return RunResponse{
		RunID:      res.RunID.String(),
		Source:     res.Source,
		StartedAt:  res.StartedAt,
		DurationMS: res.Duration.Milliseconds(),
		BytesRead:  res.BytesRead,
		Events:     res.Events,
		Applied:    res.Applied,
		Failed:     res.Failed,
		ByKind:     res.ByKind,
		Stored:     res.Stored,
		Accounts:   s.accountViews(res.Accounts),
		FailedRows: res.FailedRows,
		Truncated:  res.Truncated,
	}
}

func storedRunResponse(run store.Run) RunResponse {
	return RunResponse{
		RunID:      run.ID.String(),
		Source:     run.Source,
		StartedAt:  run.StartedAt,
		DurationMS: run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
		BytesRead:  run.BytesRead,
		Events:     run.Events,
		Applied:    run.Applied,
		Failed:     run.Failed,
		Stored:     true,
	}
}

func (s *Server) accountViews(accounts []ledger.Account) []AccountView {
	places := s.service.AmountPlaces()
	out := make([]AccountView, len(accounts))
	for i, a := range accounts {
		out[i] = AccountView{
			Client:    uint16(a.Client),
			Available: a.Available.StringFixed(places),
			Held:      a.Held.StringFixed(places),
			Total:     a.Total.StringFixed(places),
			Locked:    a.Locked,
		}
	}
	return out
}
