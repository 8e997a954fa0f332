package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
)

const (
	defaultRunLimit     = 50
	maxRunLimit         = 500
	defaultOutcomeLimit = 500
	maxOutcomeLimit     = 5000
	ledgerTimeout       = 3 * time.Second
)

// LedgerReader reads persisted runs.
type LedgerReader interface {
	GetRun(ctx context.Context, runID string) (crawler.RunRecord, error)
	ListRuns(ctx context.Context, limit, offset int) ([]crawler.RunRecord, error)
	ListOutcomes(ctx context.Context, runID string) ([]crawler.DownloadOutcome, error)
}

// RunHandler exposes read-only run history endpoints.
type RunHandler struct {
	ledger  LedgerReader
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunHandler wires the ledger and logger.
func NewRunHandler(ledger LedgerReader, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{
		ledger:  ledger,
		timeout: ledgerTimeout,
		logger:  logger,
	}
}

// ListRuns handles GET /v1/runs?limit=&offset=. It returns {"runs": [...]}, 400 for
// bad paging, 503 without a ledger, or 500 if the ledger call fails.
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "outcome ledger unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	runs, err := h.ledger.ListRuns(ctx, limit, offset)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": toRunDTOs(runs)})
}

// GetRun handles GET /v1/runs/{run_id}; 404 when the ledger does not know the run.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "outcome ledger unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.ledger.GetRun(ctx, runID.String())
	if err != nil {
		if errors.Is(err, crawler.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)})
}

// ListOutcomes handles GET /v1/runs/{run_id}/outcomes?status=&limit=&offset=.
func (h *RunHandler) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "outcome ledger unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := parseOutcomeFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultOutcomeLimit, maxOutcomeLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	outcomes, err := h.ledger.ListOutcomes(ctx, runID.String())
	if err != nil {
		if errors.Is(err, crawler.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("list outcomes failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list outcomes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": page(filterOutcomes(outcomes, filter), limit, offset)})
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "run_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	runID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return runID, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

// parseOutcomeFilter returns nil for all outcomes, otherwise the wanted Success value.
func parseOutcomeFilter(r *http.Request) (*bool, error) {
	success, failed := true, false
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))) {
	case "", "all":
		return nil, nil
	case "success", "succeeded":
		return &success, nil
	case "failed", "failure", "error":
		return &failed, nil
	default:
		return nil, errors.New("invalid status")
	}
}

func filterOutcomes(in []crawler.DownloadOutcome, filter *bool) []crawler.DownloadOutcome {
	if filter == nil {
		return in
	}
	out := make([]crawler.DownloadOutcome, 0, len(in))
	for _, o := range in {
		if o.Success == *filter {
			out = append(out, o)
		}
	}
	return out
}

func page[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit < len(in) {
		in = in[:limit]
	}
	return in
}

func toRunDTOs(in []crawler.RunRecord) []runDTO {
	out := make([]runDTO, 0, len(in))
	for _, run := range in {
		out = append(out, toRunDTO(run))
	}
	return out
}

func toRunDTO(run crawler.RunRecord) runDTO {
	dto := runDTO{
		ID:        run.ID,
		State:     run.State,
		StartedAt: run.StartedAt,
		Items:     run.Items,
		Succeeded: run.Succeeded,
		Failed:    run.Failed,
	}
	if !run.FinishedAt.IsZero() {
		finished := run.FinishedAt
		dto.FinishedAt = &finished
	}
	return dto
}

type runDTO struct {
	ID         string     `json:"id"`
	State      string     `json:"state"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Items      int        `json:"items"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
}
