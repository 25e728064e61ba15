package discord

import (
	"strings"

	"github.com/okian/tierboard/internal/domain/review"
)

// Component and modal identifiers, encoded as "action:submissionID".
const (
	actionApprove     = "approve"
	actionEdit        = "edit"
	actionReject      = "reject"
	modalEditScore    = "edit_score"
	modalRejectReason = "reject_reason"
	inputScore        = "score"
	inputReason       = "reason"

	// maxTextInputLength is the platform cap on a modal text input.
	maxTextInputLength = 4000
)

func customID(action, submissionID string) string {
	return action + ":" + submissionID
}

// parseCustomID splits "action:submissionID". Both parts must be non-empty.
func parseCustomID(id string) (action, submissionID string, ok bool) {
	action, submissionID, found := strings.Cut(id, ":")
	if !found || action == "" || submissionID == "" {
		return "", "", false
	}
	return action, submissionID, true
}

// modalRequest turns a submitted modal into a review request.
func modalRequest(modalID string, values map[string]string) (review.Request, bool) {
	action, id, ok := parseCustomID(modalID)
	if !ok {
		return nil, false
	}
	switch action {
	case modalEditScore:
		return review.EditScore{ID: id, Text: values[inputScore]}, true
	case modalRejectReason:
		return review.Reject{ID: id, Reason: values[inputReason]}, true
	default:
		return nil, false
	}
}
