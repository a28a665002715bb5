// Package content looks up whether a promoted job posting is still active.
// The lookup is a collaborator boundary: when the content service is
// unreachable the selector degrades by keeping the ad rather than failing
// the whole request.
package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jobdeck/adengine/internal/observability"
)

// ErrUnavailable indicates the content service could not answer.
var ErrUnavailable = errors.New("content service unavailable")

// Checker answers whether a content item (job posting) may still be
// advertised.
type Checker interface {
	IsActive(ctx context.Context, contentID int) (bool, error)
}

// HTTPChecker queries the portal's content service with a short timeout and
// caches answers briefly so the serve path stays off the network for hot
// postings.
type HTTPChecker struct {
	baseURL    string
	httpClient *http.Client
	cacheTTL   time.Duration
	cacheMu    sync.RWMutex
	cache      map[int]cachedStatus
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
}

type cachedStatus struct {
	active  bool
	expires time.Time
}

// NewHTTPChecker creates a checker against the given base URL.
func NewHTTPChecker(baseURL string, timeout, cacheTTL time.Duration, logger *zap.Logger, metrics observability.MetricsRegistry) *HTTPChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &HTTPChecker{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		cacheTTL:   cacheTTL,
		cache:      make(map[int]cachedStatus),
		logger:     logger,
		metrics:    metrics,
	}
}

var _ Checker = (*HTTPChecker)(nil)

// IsActive reports whether the posting may still be advertised. On
// transport failure it returns ErrUnavailable; callers decide how to
// degrade.
func (c *HTTPChecker) IsActive(ctx context.Context, contentID int) (bool, error) {
	c.cacheMu.RLock()
	cached, ok := c.cache[contentID]
	c.cacheMu.RUnlock()
	if ok && time.Now().Before(cached.expires) {
		return cached.active, nil
	}

	active, err := c.fetch(ctx, contentID)
	if err != nil {
		c.metrics.IncrementContentCheck("unavailable")
		c.logger.Warn("content check failed", zap.Int("content_id", contentID), zap.Error(err))
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.cacheMu.Lock()
	c.cache[contentID] = cachedStatus{active: active, expires: time.Now().Add(c.cacheTTL)}
	c.cacheMu.Unlock()

	if active {
		c.metrics.IncrementContentCheck("active")
	} else {
		c.metrics.IncrementContentCheck("inactive")
	}
	return active, nil
}

func (c *HTTPChecker) fetch(ctx context.Context, contentID int) (bool, error) {
	url := fmt.Sprintf("%s/internal/jobs/%d/status", c.baseURL, contentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusGone, http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("http %d", resp.StatusCode)
	}
}

// StaticChecker is a fixed-answer Checker for tests and standalone runs.
type StaticChecker struct {
	// Inactive lists content IDs treated as deactivated.
	Inactive map[int]bool
	// Err, when set, is returned for every lookup.
	Err error
}

var _ Checker = (*StaticChecker)(nil)

func (s *StaticChecker) IsActive(ctx context.Context, contentID int) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	return !s.Inactive[contentID], nil
}
