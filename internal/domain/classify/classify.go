// Package classify maps raw score text to a numeric score and a tier band.
//
// The functions here are pure. Every place a score is (re)classified, at
// intake, on a moderator edit and on approval, goes through one Classifier
// so the bands can never disagree.
package classify

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/okian/tierboard/internal/domain/model"
)

// DefaultFloors are the lower bounds of tiers 1..5.
var DefaultFloors = [model.TierCount]int{15, 35, 60, 90, 120}

// First run of 1-4 digits, optionally followed by "+".
var scorePattern = regexp.MustCompile(`(\d{1,4})\+?`)

var imageExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".webp": {}, ".gif": {},
}

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithFloors sets the tier floors. Floors that are not positive and
// strictly increasing are ignored.
func WithFloors(floors [model.TierCount]int) Option {
	return func(c *Classifier) {
		prev := 0
		for _, f := range floors {
			if f <= prev {
				return
			}
			prev = f
		}
		c.floors = floors
	}
}

// Classifier holds the tier floors.
type Classifier struct {
	floors [model.TierCount]int
}

// New creates a Classifier with the default floors unless overridden.
func New(opts ...Option) *Classifier {
	c := &Classifier{floors: DefaultFloors}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Floors returns the configured floors.
func (c *Classifier) Floors() [model.TierCount]int { return c.floors }

// Floor returns the minimum eligible score.
func (c *Classifier) Floor() int { return c.floors[0] }

// ParseScore extracts the first integer token from text. It reports false
// when there is none or the value is not positive.
func ParseScore(text string) (int, bool) {
	m := scorePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// TierOf returns the band of score. Boundary values belong to the higher
// band. Scores below the first floor yield model.TierNone.
func (c *Classifier) TierOf(score int) model.Tier {
	for i := model.TierCount - 1; i >= 0; i-- {
		if score >= c.floors[i] {
			return model.Tier(i + 1)
		}
	}
	return model.TierNone
}

// Classify parses text and bands it. ok is false when the text holds no
// positive score or the score is below the floor.
func (c *Classifier) Classify(text string) (score int, tier model.Tier, ok bool) {
	score, ok = ParseScore(text)
	if !ok {
		return 0, model.TierNone, false
	}
	tier = c.TierOf(score)
	return score, tier, tier.Valid()
}

// IsImage reports whether the attachment declares an image content type or
// carries a known image file extension.
func IsImage(a *model.Attachment) bool {
	if a == nil {
		return false
	}
	if strings.HasPrefix(strings.ToLower(a.ContentType), "image/") {
		return true
	}
	for _, name := range []string{a.URL, a.Filename} {
		if name == "" {
			continue
		}
		if i := strings.IndexAny(name, "?#"); i >= 0 {
			name = name[:i]
		}
		if _, ok := imageExts[strings.ToLower(path.Ext(name))]; ok {
			return true
		}
	}
	return false
}
