package domain

// Pull-request webhook actions the mailer reacts to.
const (
	ActionOpened         = "opened"
	ActionReopened       = "reopened"
	ActionSynchronize    = "synchronize"
	ActionReadyForReview = "ready_for_review"
)

// PullRequestEvent is the subset of a pull_request webhook delivery the
// mailer needs.
type PullRequestEvent struct {
	Action  string
	Sender  string
	Owner   string
	Repo    string
	Number  int
	Title   string
	BaseRef string
	HTMLURL string
	// PatchURL is informational; the patch itself is fetched through the API.
	PatchURL string
}

// Handled reports whether the event's action produces a notification.
func (e PullRequestEvent) Handled() bool {
	switch e.Action {
	case ActionOpened, ActionReopened, ActionSynchronize, ActionReadyForReview:
		return true
	}
	return false
}
