// Package version carries build metadata and checks for newer releases.
package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	// ReleasesURL is the release endpoint for the satchel repository.
	ReleasesURL = "https://api.github.com/repos/mrz1836/satchel/releases/latest"

	// DefaultTimeout bounds a release check.
	DefaultTimeout = 10 * time.Second

	maxBodySize = 64 * 1024
)

// ErrReleaseCheck is returned when the release endpoint answers with a non-200 status.
var ErrReleaseCheck = errors.New("release check failed")

// Build is set from main via ldflags.
//
//nolint:gochecknoglobals // Build metadata is injected at link time
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Latest  string `json:"latest,omitempty"`
	Update  bool   `json:"update_available,omitempty"`
}

// Current returns the build metadata of the running binary.
func Current() Info {
	return Info{
		Version: Version,
		Commit:  Commit,
		Date:    Date,
		Go:      runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}
}

// String renders the info on one line.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, %s %s/%s)", i.Version, i.Commit, i.Date, i.Go, i.OS, i.Arch)
}

// Release is the subset of a release document satchel reads.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
}

// Checker fetches the latest published release.
type Checker struct {
	URL        string
	HTTPClient *http.Client
}

// NewChecker creates a checker against ReleasesURL.
func NewChecker(client *http.Client) *Checker {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Checker{URL: ReleasesURL, HTTPClient: client}
}

// Latest fetches the latest release.
func (c *Checker) Latest(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", fmt.Sprintf("satchel/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH))

	resp, err := c.HTTPClient.Do(req) //nolint:gosec // fixed release endpoint
	if err != nil {
		return nil, fmt.Errorf("fetching release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body := io.LimitReader(resp.Body, maxBodySize)
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrReleaseCheck, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var rel Release
	if err := json.NewDecoder(body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decoding release: %w", err)
	}
	return &rel, nil
}

// Check fills Latest and Update on info.
func (c *Checker) Check(ctx context.Context, info *Info) error {
	rel, err := c.Latest(ctx)
	if err != nil {
		return err
	}
	info.Latest = strings.TrimPrefix(rel.TagName, "v")
	info.Update = Compare(rel.TagName, info.Version) > 0
	return nil
}

// Compare orders two semantic versions, returning 1, 0 or -1. A leading
// "v" and any pre-release or build suffix are ignored. "dev" and empty
// versions sort before every release.
func Compare(a, b string) int {
	pa, okA := parse(a)
	pb, okB := parse(b)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return -1
	case !okB:
		return 1
	}
	for i := range pa {
		if pa[i] != pb[i] {
			if pa[i] > pb[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

func parse(v string) ([3]int, bool) {
	var out [3]int
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	if v == "" || v == "dev" {
		return out, false
	}
	parts := strings.Split(v, ".")
	if len(parts) > 3 {
		return out, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return out, false
		}
		out[i] = n
	}
	return out, true
}
