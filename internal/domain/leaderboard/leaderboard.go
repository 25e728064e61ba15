// Package leaderboard projects ratings into a grouped, sorted view.
package leaderboard

import (
	"sort"

	"github.com/okian/tierboard/internal/domain/model"
)

// MaxEntries caps the entries shown per tier.
const MaxEntries = 50

// EmptyMarker is shown for a tier without members.
const EmptyMarker = "—"

// Entry is one row of a tier group.
type Entry struct {
	Rank        int    `json:"rank"`
	MemberID    string `json:"member_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
}

// Group is one tier of the board.
type Group struct {
	Tier  model.Tier `json:"tier"`
	Label string     `json:"label"`
	// Total counts every member of the tier, including those past MaxEntries.
	Total   int     `json:"total"`
	Entries []Entry `json:"entries"`
	Empty   bool    `json:"empty"`
}

// Board has exactly one group per tier, highest tier first.
type Board struct {
	Groups []Group `json:"groups"`
}

// Total returns the number of rated members on the board.
func (b Board) Total() int {
	n := 0
	for _, g := range b.Groups {
		n += g.Total
	}
	return n
}

// Render builds the board from ratings in encounter order. Ties keep that
// order. Ratings without a valid tier are skipped. The result depends only
// on its inputs.
func Render(ratings []model.Rating, settings model.Settings) Board {
	byTier := make([][]model.Rating, model.TierCount+1)
	for _, r := range ratings {
		if !r.Tier.Valid() {
			continue
		}
		byTier[r.Tier] = append(byTier[r.Tier], r)
	}

	board := Board{Groups: make([]Group, 0, model.TierCount)}
	for t := model.Tier(model.TierCount); t >= 1; t-- {
		list := byTier[t]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Score > list[j].Score })

		g := Group{Tier: t, Label: settings.Label(t), Total: len(list), Empty: len(list) == 0}
		shown := min(len(list), MaxEntries)
		g.Entries = make([]Entry, shown)
		for i := 0; i < shown; i++ {
			g.Entries[i] = Entry{
				Rank:        i + 1,
				MemberID:    list[i].MemberID,
				DisplayName: list[i].DisplayName,
				Score:       list[i].Score,
			}
		}
		board.Groups = append(board.Groups, g)
	}
	return board
}
