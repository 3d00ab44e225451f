package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/naka-gawa/llvm-gh/internal/domain"
	"github.com/naka-gawa/llvm-gh/internal/gateway"
	"github.com/naka-gawa/llvm-gh/internal/mailer"
	"github.com/naka-gawa/llvm-gh/internal/routing"
)

var patchAuthorRegex = regexp.MustCompile(`(?m)^From: (.+)$`)

// NotifierOptions tunes how notifications leave the process.
type NotifierOptions struct {
	// From is the envelope sender; empty means the SMTP username.
	From string
	// Override redirects every message to this address when set.
	Override string
	// DryRun logs messages instead of sending them.
	DryRun bool
}

// Notifier cross-posts pull-request updates to the mailing lists of the
// sub-projects they touch.
type Notifier struct {
	fetcher gateway.PullRequestFetcher
	sender  mailer.Sender
	table   *routing.Table
	opts    NotifierOptions
	logger  logrus.FieldLogger
}

// NotifyResult summarizes one delivery.
type NotifyResult struct {
	Ignored  bool
	Projects []string
	Sent     []string
	Failed   []string
}

// OK reports whether the delivery was handled: either ignored, or at least
// one message went out and none failed.
func (r NotifyResult) OK() bool {
	if r.Ignored {
		return true
	}
	return len(r.Sent) > 0 && len(r.Failed) == 0
}

// NewNotifier creates a Notifier.
func NewNotifier(fetcher gateway.PullRequestFetcher, sender mailer.Sender, table *routing.Table, opts NotifierOptions, logger logrus.FieldLogger) *Notifier {
	return &Notifier{
		fetcher: fetcher,
		sender:  sender,
		table:   table,
		opts:    opts,
		logger:  logger,
	}
}

// Notify sends one message per mailing list affected by event. Send failures
// are logged and reported in the result; only failures to gather the pull
// request's details are returned as errors.
func (n *Notifier) Notify(ctx context.Context, event domain.PullRequestEvent) (NotifyResult, error) {
	log := n.logger.WithFields(logrus.Fields{
		"repository": event.Owner + "/" + event.Repo,
		"pr":         event.Number,
		"action":     event.Action,
	})
	if !event.Handled() {
		log.Debug("Ignoring pull request action")
		return NotifyResult{Ignored: true}, nil
	}

	files, err := n.fetcher.ListChangedFiles(ctx, event.Owner, event.Repo, event.Number)
	if err != nil {
		return NotifyResult{}, err
	}
	result := NotifyResult{Projects: routing.ProjectsFromPaths(files)}
	for _, project := range result.Projects {
		if _, known := n.table.Lookup(project); !known {
			log.WithField("project", project).Warn("Unknown project, using the fallback mailing list")
		}
	}

	patch, err := n.fetcher.FetchPatch(ctx, event.Owner, event.Repo, event.Number)
	if err != nil {
		return NotifyResult{}, err
	}
	fromName, err := n.fetcher.FetchDisplayName(ctx, event.Sender)
	if err != nil {
		return NotifyResult{}, err
	}
	body := EmailBody(event, patch)
	replyTo := PatchAuthors(patch)

	for _, dest := range n.table.Destinations(result.Projects, event.BaseRef) {
		to := dest.Address
		if n.opts.Override != "" {
			to = n.opts.Override
		}
		msg := mailer.Message{
			FromName: fromName,
			From:     n.opts.From,
			To:       to,
			ReplyTo:  replyTo,
			Subject:  fmt.Sprintf("[%s] %s (PR #%d)", strings.Join(dest.Projects, ","), event.Title, event.Number),
			Body:     body,
		}
		mlog := log.WithFields(logrus.Fields{"mail_to": to, "subject": msg.Subject})
		if n.opts.DryRun {
			mlog.WithField("reply_to", strings.Join(replyTo, ", ")).Info("Dry run, not sending")
			result.Sent = append(result.Sent, to)
			continue
		}
		if err := n.sender.Send(ctx, msg); err != nil {
			mlog.WithError(err).Error("Failed to send notification")
			result.Failed = append(result.Failed, to)
			continue
		}
		mlog.Info("Notification sent")
		result.Sent = append(result.Sent, to)
	}
	return result, nil
}

// EmailBody renders the notification text for event followed by the patch.
func EmailBody(event domain.PullRequestEvent, patch string) string {
	verb := "updated"
	switch event.Action {
	case domain.ActionOpened:
		verb = "opened"
	case domain.ActionReopened:
		verb = "reopened"
	case domain.ActionReadyForReview:
		verb = "marked as ready for review"
	}
	return fmt.Sprintf("\n<a href='https://github.com/%[1]s'>%[1]s</a> %[2]s <a href='%[3]s'>PR#%[4]d</a>:\n\n%[5]s\n",
		event.Sender, verb, event.HTMLURL, event.Number, patch)
}

// PatchAuthors returns the value of every "From: " line in a format-patch.
func PatchAuthors(patch string) []string {
	var authors []string
	for _, m := range patchAuthorRegex.FindAllStringSubmatch(patch, -1) {
		authors = append(authors, strings.TrimSpace(m[1]))
	}
	return authors
}
