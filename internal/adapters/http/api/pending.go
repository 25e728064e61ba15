package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/tierboard/internal/domain/model"
)

const (
	defaultPendingLimit = 15
	maxPendingLimit     = 100
)

type submissionResponse struct {
	ID          string    `json:"id"`
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name"`
	Score       int       `json:"score"`
	Tier        int       `json:"tier"`
	ProofURL    string    `json:"proof_url"`
	CreatedAt   time.Time `json:"created_at"`
}

type pendingResponse struct {
	Total int                  `json:"total"`
	Items []submissionResponse `json:"items"`
}

// PendingHandler lists pending submissions.
type PendingHandler struct {
	deps     PendingDependencies
	maxLimit int
}

// NewPendingHandler creates a new pending handler.
func NewPendingHandler(deps PendingDependencies, maxLimit int) *PendingHandler {
	return &PendingHandler{deps: deps, maxLimit: maxLimit}
}

// HandleListPending handles GET /submissions/pending?limit=N requests.
func (h *PendingHandler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_pending"

	n := defaultPendingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > h.maxLimit {
			writeError(w, model.WrapKind(op, model.ErrInvalidInput, ErrBadRequest))
			return
		}
		n = v
	}

	subs, total, err := h.deps.ListPending(r.Context(), n)
	if err != nil {
		writeError(w, model.Wrap(op, err))
		return
	}
	resp := pendingResponse{Total: total, Items: make([]submissionResponse, 0, len(subs))}
	for _, s := range subs {
		resp.Items = append(resp.Items, submissionResponse{
			ID:          s.ID,
			MemberID:    s.MemberID,
			DisplayName: s.DisplayName,
			Score:       s.Score,
			Tier:        int(s.Tier),
			ProofURL:    s.ProofURL,
			CreatedAt:   s.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func urlParam(r *http.Request, key string) string {
	return strings.TrimSpace(chi.URLParam(r, key))
}
