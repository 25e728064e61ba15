package review

// Request is a moderator or system action on one submission. The set of
// implementations is closed: Approve, Reject, EditScore and Expire.
type Request interface {
	SubmissionID() string
	isRequest()
}

// Approve publishes the submission's score.
type Approve struct{ ID string }

// Reject refuses the submission with a reason.
type Reject struct {
	ID     string
	Reason string
}

// EditScore replaces the score while the submission is pending.
type EditScore struct {
	ID   string
	Text string
}

// Expire closes a submission that outlived the expiry window.
type Expire struct{ ID string }

func (r Approve) SubmissionID() string   { return r.ID }
func (r Reject) SubmissionID() string    { return r.ID }
func (r EditScore) SubmissionID() string { return r.ID }
func (r Expire) SubmissionID() string    { return r.ID }

func (Approve) isRequest()   {}
func (Reject) isRequest()    {}
func (EditScore) isRequest() {}
func (Expire) isRequest()    {}
