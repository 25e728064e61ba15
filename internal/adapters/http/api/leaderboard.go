package api

import (
	"net/http"
	"time"

	"github.com/okian/tierboard/internal/domain/leaderboard"
	"github.com/okian/tierboard/internal/domain/model"
)

type entryResponse struct {
	Rank        int    `json:"rank"`
	MemberID    string `json:"member_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
}

type groupResponse struct {
	Tier    int             `json:"tier"`
	Label   string          `json:"label"`
	Total   int             `json:"total"`
	Empty   bool            `json:"empty"`
	Entries []entryResponse `json:"entries"`
}

type leaderboardResponse struct {
	Total  int             `json:"total"`
	Groups []groupResponse `json:"groups"`
}

func toLeaderboardResponse(b leaderboard.Board) leaderboardResponse {
	out := leaderboardResponse{Total: b.Total(), Groups: make([]groupResponse, 0, len(b.Groups))}
	for _, g := range b.Groups {
		gr := groupResponse{
			Tier:    int(g.Tier),
			Label:   g.Label,
			Total:   g.Total,
			Empty:   g.Empty,
			Entries: make([]entryResponse, 0, len(g.Entries)),
		}
		for _, e := range g.Entries {
			gr.Entries = append(gr.Entries, entryResponse{
				Rank:        e.Rank,
				MemberID:    e.MemberID,
				DisplayName: e.DisplayName,
				Score:       e.Score,
			})
		}
		out.Groups = append(out.Groups, gr)
	}
	return out
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

// HandleGetLeaderboard handles GET /leaderboard requests.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	board, err := h.deps.Leaderboard(r.Context())
	if err != nil {
		writeError(w, model.Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toLeaderboardResponse(board))
}

type ratingResponse struct {
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name"`
	Score       int       `json:"score"`
	Tier        int       `json:"tier"`
	ProofURL    string    `json:"proof_url"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RatingHandler handles single rating lookups.
type RatingHandler struct {
	deps RatingDependencies
}

// NewRatingHandler creates a new rating handler.
func NewRatingHandler(deps RatingDependencies) *RatingHandler {
	return &RatingHandler{deps: deps}
}

// HandleGetRating handles GET /ratings/{memberID} requests.
func (h *RatingHandler) HandleGetRating(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rating"
	memberID := urlParam(r, "memberID")
	if memberID == "" {
		writeError(w, model.WrapKind(op, model.ErrInvalidInput, ErrBadRequest))
		return
	}
	rating, err := h.deps.RatingOf(r.Context(), memberID)
	if err != nil {
		writeError(w, model.Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, ratingResponse{
		MemberID:    rating.MemberID,
		DisplayName: rating.DisplayName,
		Score:       rating.Score,
		Tier:        int(rating.Tier),
		ProofURL:    rating.ProofURL,
		UpdatedAt:   rating.UpdatedAt,
	})
}
