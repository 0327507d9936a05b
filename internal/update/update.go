// Package update polls a release feed and reports whether a newer build of
// the meter has been published.
//
// The feed is a JSON document describing the latest release, in the shape of
// the GitHub "latest release" endpoint:
//
//	{"tag_name": "v1.4.0", "html_url": "https://...", "draft": false, "prerelease": false}
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"

	"github.com/oszuidwest/zwfm-loudmeter/internal/util"
)

// Polling defaults.
const (
	DefaultInterval = 24 * time.Hour
	firstCheckDelay = 30 * time.Second
	requestTimeout  = 30 * time.Second
	maxFeedSize     = 1 << 20
)

// Errors returned by Check.
var (
	ErrRateLimited      = errors.New("release feed rate limited")
	ErrUnexpectedStatus = errors.New("unexpected release feed status")
)

// Release is one entry of the release feed.
type Release struct {
	Tag        string `json:"tag_name"`
	URL        string `json:"html_url"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// Status is the outcome of the most recent successful check.
type Status struct {
	Latest          string    // Newest stable version, without "v" prefix
	URL             string    // Release page
	UpdateAvailable bool      // Latest is newer than the running build
	CheckedAt       time.Time // Zero until a check succeeded
}

// Checker polls a release feed. A nil *Checker reports an empty Status.
// It is safe for concurrent use.
type Checker struct {
	feedURL  string
	current  string
	client   *http.Client
	interval time.Duration

	mu        sync.RWMutex
	latest    Release
	etag      string
	checkedAt time.Time
}

// New returns a Checker comparing releases in feedURL to the running
// version current.
func New(feedURL, current string) *Checker {
	return &Checker{
		feedURL:  feedURL,
		current:  current,
		client:   &http.Client{Timeout: requestTimeout},
		interval: DefaultInterval,
	}
}

// Run checks the feed shortly after start and then every interval until
// ctx is cancelled. Failures are logged and retried on the next interval.
func (c *Checker) Run(ctx context.Context) {
	timer := time.NewTimer(firstCheckDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := c.Check(ctx); err != nil {
			slog.Warn("release check failed", "feed", c.feedURL, "error", err)
		}
		timer.Reset(c.interval)
	}
}

// Check fetches the feed once. Drafts, prereleases and tags that are not
// semantic versions are ignored. A 304 or 404 response keeps the previous
// result.
func (c *Checker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, http.NoBody)
	if err != nil {
		return util.WrapError("build release request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "loudmeter/"+c.current)

	c.mu.RLock()
	etag := c.etag
	c.mu.RUnlock()
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return util.WrapError("fetch release feed", err)
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck // Read-only body
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified, http.StatusNotFound:
		c.mu.Lock()
		c.checkedAt = time.Now()
		c.mu.Unlock()
		return nil
	case http.StatusForbidden, http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	var rel Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFeedSize)).Decode(&rel); err != nil {
		return util.WrapError("decode release feed", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkedAt = time.Now()
	if tag := resp.Header.Get("ETag"); tag != "" {
		c.etag = tag
	}
	if rel.Draft || rel.Prerelease || canonical(rel.Tag) == "" {
		return nil
	}
	c.latest = rel
	return nil
}

// Status returns the result of the last successful check.
func (c *Checker) Status() Status {
	if c == nil {
		return Status{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.latest.Tag == "" {
		return Status{CheckedAt: c.checkedAt}
	}
	return Status{
		Latest:          strings.TrimPrefix(canonical(c.latest.Tag), "v"),
		URL:             c.latest.URL,
		UpdateAvailable: Newer(c.latest.Tag, c.current),
		CheckedAt:       c.checkedAt,
	}
}

// Newer reports whether latest is a newer semantic version than current.
// Unparseable versions, such as development builds, are never older.
func Newer(latest, current string) bool {
	l, cur := canonical(latest), canonical(current)
	if l == "" || cur == "" {
		return false
	}
	return semver.Compare(l, cur) > 0
}

// canonical returns v as a canonical semver string with "v" prefix, or ""
// when v is not a semantic version.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}
