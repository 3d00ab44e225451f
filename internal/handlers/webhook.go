// Package handlers exposes the pull-request mailer over HTTP.
package handlers

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v62/github"
	"github.com/sirupsen/logrus"

	"github.com/naka-gawa/llvm-gh/internal/domain"
	"github.com/naka-gawa/llvm-gh/internal/usecase"
)

// Notifier is the use case behind the webhook.
type Notifier interface {
	Notify(ctx context.Context, event domain.PullRequestEvent) (usecase.NotifyResult, error)
}

// WebhookHandler receives GitHub webhook deliveries.
type WebhookHandler struct {
	notifier       Notifier
	allowedOrigins []string
	secret         []byte
	logger         logrus.FieldLogger
}

// NewWebhookHandler creates a handler. An empty allowedOrigins accepts any
// origin; an empty secret skips signature validation.
func NewWebhookHandler(notifier Notifier, allowedOrigins []string, secret string, logger logrus.FieldLogger) *WebhookHandler {
	return &WebhookHandler{
		notifier:       notifier,
		allowedOrigins: allowedOrigins,
		secret:         []byte(secret),
		logger:         logger,
	}
}

// Register mounts the webhook and health routes on router.
func (h *WebhookHandler) Register(router gin.IRouter) {
	router.POST("/", h.Handle)
	router.POST("/webhook", h.Handle)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": true})
	})
}

// Handle processes one delivery.
func (h *WebhookHandler) Handle(c *gin.Context) {
	cors, ok := h.allowOrigin(c.GetHeader("Origin"))
	c.Header("Access-Control-Allow-Origin", cors)
	if !ok {
		h.logger.WithField("origin", c.GetHeader("Origin")).Warn("Rejected delivery from disallowed origin")
		respond(c, http.StatusForbidden, false)
		return
	}

	payload, err := github.ValidatePayload(c.Request, h.secret)
	if err != nil {
		h.logger.WithError(err).Warn("Invalid webhook payload")
		respond(c, http.StatusBadRequest, false)
		return
	}
	hook, err := github.ParseWebHook(github.WebHookType(c.Request), payload)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to parse webhook")
		respond(c, http.StatusBadRequest, false)
		return
	}

	switch event := hook.(type) {
	case *github.PingEvent:
		respond(c, http.StatusOK, true)
	case *github.PullRequestEvent:
		result, err := h.notifier.Notify(c.Request.Context(), FromPullRequestEvent(event))
		if err != nil {
			h.logger.WithError(err).Error("Failed to process pull request event")
			respond(c, http.StatusBadRequest, false)
			return
		}
		if !result.OK() {
			respond(c, http.StatusBadRequest, false)
			return
		}
		respond(c, http.StatusOK, true)
	default:
		h.logger.WithField("event", github.WebHookType(c.Request)).Debug("Unsupported event")
		respond(c, http.StatusBadRequest, false)
	}
}

// allowOrigin returns the CORS header value for origin and whether the
// request may proceed.
func (h *WebhookHandler) allowOrigin(origin string) (string, bool) {
	if len(h.allowedOrigins) == 0 {
		return "*", true
	}
	if origin != "" && slices.Contains(h.allowedOrigins, origin) {
		return origin, true
	}
	return "", false
}

func respond(c *gin.Context, code int, status bool) {
	c.JSON(code, gin.H{"status": status})
}

// FromPullRequestEvent extracts the fields the mailer uses from a webhook event.
func FromPullRequestEvent(event *github.PullRequestEvent) domain.PullRequestEvent {
	pr := event.GetPullRequest()
	return domain.PullRequestEvent{
		Action:   event.GetAction(),
		Sender:   event.GetSender().GetLogin(),
		Owner:    event.GetRepo().GetOwner().GetLogin(),
		Repo:     event.GetRepo().GetName(),
		Number:   pr.GetNumber(),
		Title:    pr.GetTitle(),
		BaseRef:  pr.GetBase().GetRef(),
		HTMLURL:  pr.GetHTMLURL(),
		PatchURL: pr.GetPatchURL(),
	}
}
