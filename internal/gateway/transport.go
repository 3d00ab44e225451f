package gateway

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// Below this many remaining requests the quota guard waits for the reset.
	lowQuotaThreshold = 10
	quotaPollInterval = 60 * time.Second
)

// globalIDTransport opts every request into the next-generation node IDs.
type globalIDTransport struct {
	base http.RoundTripper
}

func (t *globalIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("X-Github-Next-Global-ID", "1")
	return t.base.RoundTrip(r)
}

// retryOnceTransport repeats a request a single time when the first attempt
// does not come back 200 OK. The second response is returned whatever its status.
type retryOnceTransport struct {
	base   http.RoundTripper
	logger logrus.FieldLogger
}

func (t *retryOnceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode == http.StatusOK {
		return resp, err
	}
	retry := req.Clone(req.Context())
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return resp, nil
		}
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}
	t.logger.Warnf("%s %s returned %d, retrying once", req.Method, req.URL.Path, resp.StatusCode)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return t.base.RoundTrip(retry)
}

// quotaGuard holds a response back while the primary rate limit is nearly
// exhausted, polling until the advertised reset time has passed.
type quotaGuard struct {
	base   http.RoundTripper
	logger logrus.FieldLogger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func newQuotaGuard(base http.RoundTripper, logger logrus.FieldLogger) *quotaGuard {
	return &quotaGuard{
		base:   base,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

func (g *quotaGuard) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := g.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := g.wait(req.Context(), resp.Header); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func (g *quotaGuard) wait(ctx context.Context, h http.Header) error {
	remaining, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil || remaining >= lowQuotaThreshold {
		return nil
	}
	reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return nil
	}
	resetAt := time.Unix(reset, 0)
	for g.now().Before(resetAt) {
		if err := g.sleep(ctx, quotaPollInterval); err != nil {
			return err
		}
		g.logger.Infof("Waiting until rate limit reset, %d seconds remaining", max(0, int(resetAt.Sub(g.now()).Seconds())))
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
