package update

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// feed serves body with an ETag and answers 304 to a matching If-None-Match.
func feed(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("If-None-Match") == `"r1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"r1"`)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts, &requests
}

func TestCheckReportsNewerRelease(t *testing.T) {
	ts, requests := feed(t, `{"tag_name":"v1.4.0","html_url":"https://example.com/r/1.4.0"}`)
	c := New(ts.URL, "1.3.2")

	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("conditional Check returned error: %v", err)
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("expected 2 requests, got %d", n)
	}

	st := c.Status()
	if st.Latest != "1.4.0" || st.URL != "https://example.com/r/1.4.0" {
		t.Errorf("unexpected status %+v", st)
	}
	if !st.UpdateAvailable {
		t.Error("expected update to be available")
	}
	if st.CheckedAt.IsZero() {
		t.Error("expected check time to be set")
	}
}

func TestCheckIgnoresUnstableReleases(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"draft", `{"tag_name":"v2.0.0","draft":true}`},
		{"prerelease", `{"tag_name":"v2.0.0-rc1","prerelease":true}`},
		{"not semver", `{"tag_name":"nightly"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := feed(t, tt.body)
			c := New(ts.URL, "1.0.0")
			if err := c.Check(context.Background()); err != nil {
				t.Fatalf("Check returned error: %v", err)
			}
			if st := c.Status(); st.Latest != "" || st.UpdateAvailable {
				t.Errorf("expected release to be ignored, got %+v", st)
			}
		})
	}
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusForbidden, ErrRateLimited},
		{http.StatusBadGateway, ErrUnexpectedStatus},
	}
	for _, tt := range tests {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))
		c := New(ts.URL, "1.0.0")
		if err := c.Check(context.Background()); !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
		ts.Close()
	}
}

func TestCheckMalformedFeed(t *testing.T) {
	ts, _ := feed(t, `{"tag_name":`)
	if err := New(ts.URL, "1.0.0").Check(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDevelopmentBuildNeverUpdates(t *testing.T) {
	ts, _ := feed(t, `{"tag_name":"v9.0.0"}`)
	c := New(ts.URL, "dev")
	if err := c.Check(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st := c.Status(); st.Latest != "9.0.0" || st.UpdateAvailable {
		t.Errorf("unexpected status for dev build %+v", st)
	}
}

func TestNilCheckerStatus(t *testing.T) {
	var c *Checker
	if st := c.Status(); st != (Status{}) {
		t.Errorf("expected empty status, got %+v", st)
	}
}

func TestNewer(t *testing.T) {
	tests := []struct {
		latest, current string
		want            bool
	}{
		{"1.2.0", "1.1.9", true},
		{"v2.0.0", "1.9.9", true},
		{"v1.2", "1.1.0", true},
		{"1.0.0", "1.0.0", false},
		{"1.0.0", "1.0.1", false},
		{"1.0.0", "dev", false},
		{"latest", "1.0.0", false},
	}
	for _, tt := range tests {
		if got := Newer(tt.latest, tt.current); got != tt.want {
			t.Errorf("Newer(%q, %q) = %v, want %v", tt.latest, tt.current, got, tt.want)
		}
	}
}
