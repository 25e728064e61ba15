// Package model contains domain models passed between layers.
package model

import (
	"strconv"
	"time"
)

// TierCount is the number of tier bands.
const TierCount = 5

// Tier is a score band in 1..TierCount. The zero value means "not eligible".
type Tier int

// TierNone marks a score below the lowest floor.
const TierNone Tier = 0

// Valid reports whether t is one of the five bands.
func (t Tier) Valid() bool { return t >= 1 && t <= TierCount }

func (t Tier) String() string {
	if !t.Valid() {
		return "none"
	}
	return strconv.Itoa(int(t))
}

// Status is the lifecycle state of a submission.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool { return s != StatusPending }

// SurfaceRef points at a rendered message on the chat platform.
type SurfaceRef struct {
	ChannelID string
	MessageID string
}

// IsZero reports whether the ref points nowhere.
func (r SurfaceRef) IsZero() bool { return r.ChannelID == "" || r.MessageID == "" }

// Submission is one outstanding or resolved score claim.
type Submission struct {
	ID           string
	MemberID     string
	DisplayName  string
	AvatarURL    string
	Score        int
	Tier         Tier
	ProofURL     string
	MessageURL   string
	CreatedAt    time.Time
	Status       Status
	ReviewedBy   string
	ReviewedAt   time.Time
	RejectReason string
	// Review is where the moderator review surface lives.
	Review SurfaceRef
}

// Rating is a member's current published score.
type Rating struct {
	MemberID    string
	DisplayName string
	AvatarURL   string
	Score       int
	Tier        Tier
	ProofURL    string
	UpdatedAt   time.Time
	// Card is the rendered leaderboard card, edited in place on re-render.
	Card SurfaceRef
}

// Settings holds moderator-editable presentation state.
type Settings struct {
	// TierLabels maps tier 1..5 to its display label; index 0 is tier 1.
	TierLabels [TierCount]string
	// Index is the pinned leaderboard index message.
	Index SurfaceRef
}

// DefaultSettings returns settings whose labels are the tier numbers.
func DefaultSettings() Settings {
	return Settings{TierLabels: [TierCount]string{"1", "2", "3", "4", "5"}}
}

// Label returns the display label of t, falling back to the tier number.
func (s Settings) Label(t Tier) string {
	if !t.Valid() {
		return ""
	}
	if l := s.TierLabels[t-1]; l != "" {
		return l
	}
	return t.String()
}

// Attachment describes a file attached to an inbound message.
type Attachment struct {
	URL         string
	Filename    string
	ContentType string
}

// Candidate is an inbound score claim before intake.
type Candidate struct {
	MemberID    string
	DisplayName string
	AvatarURL   string
	Text        string
	Attachment  *Attachment
	MessageID   string
	MessageURL  string
}

// Actor is whoever triggers an operation.
type Actor struct {
	ID        string
	Tag       string
	Moderator bool
	// System marks actions the service triggers itself, such as expiry.
	System bool
}

// SystemActor is the actor used for service-triggered transitions.
var SystemActor = Actor{ID: "system", Tag: "system", Moderator: true, System: true}
