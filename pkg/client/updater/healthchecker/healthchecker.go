package healthchecker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"

	log "github.com/sirupsen/logrus"
)

var ErrUnhealthy = errors.New("health check failed")

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type shellHealthChecker struct {
	cmd []string
}

func (s *shellHealthChecker) HealthCheck(ctx context.Context) error {
	if len(s.cmd) == 0 {
		log.Debug("no command to execute, assuming healthy")
		return nil
	}
	out, err := exec.CommandContext(ctx, s.cmd[0], s.cmd[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %q: %w: %s", ErrUnhealthy, s.cmd, err, out)
	}
	return nil
}

// NewShellHealthChecker runs cmd and treats a non-zero exit as unhealthy.
func NewShellHealthChecker(cmd []string) HealthChecker {
	return &shellHealthChecker{
		cmd: cmd,
	}
}

type httpHealthChecker struct {
	url    string
	client *http.Client
}

// NewHTTPHealthChecker probes url with GET. Any status outside 2xx is a failure.
func NewHTTPHealthChecker(url string, timeout time.Duration) HealthChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpHealthChecker{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (h *httpHealthChecker) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %s", ErrUnhealthy, h.url, resp.Status)
	}
	log.Debugf("%s returned %s", h.url, resp.Status)
	return nil
}

// Multi runs checkers in order and stops at the first failure.
type Multi []HealthChecker

func (m Multi) HealthCheck(ctx context.Context) error {
	for i, c := range m {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("check %d: %w", i, err)
		}
	}
	return nil
}
