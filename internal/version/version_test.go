package version

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.0", "1.1.9", 1},
		{"v1.0.0", "1.0.0", 0},
		{"1.0", "1.0.0", 0},
		{"1.0.0-rc1", "1.0.0", 0},
		{"0.9.0", "0.10.0", -1},
		{"dev", "0.1.0", -1},
		{"0.1.0", "", 1},
		{"dev", "", 0},
		{"abc1234", "0.0.1", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

func TestCurrent(t *testing.T) {
	t.Parallel()
	info := Current()
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.Go)
	assert.True(t, strings.HasPrefix(info.String(), Version+" (commit: "))
}

func newMockChecker(t *testing.T) *Checker {
	t.Helper()
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(func() { httpmock.DeactivateAndReset() })
	return NewChecker(client)
}

func TestChecker_Check(t *testing.T) {
	c := newMockChecker(t)
	httpmock.RegisterResponder(http.MethodGet, ReleasesURL,
		httpmock.NewStringResponder(http.StatusOK, `{"tag_name":"v0.4.0","name":"satchel 0.4.0","html_url":"https://example.invalid/r"}`))

	info := Info{Version: "0.3.2"}
	require.NoError(t, c.Check(context.Background(), &info))
	assert.Equal(t, "0.4.0", info.Latest)
	assert.True(t, info.Update)

	info = Info{Version: "0.4.0"}
	require.NoError(t, c.Check(context.Background(), &info))
	assert.False(t, info.Update)
}

func TestChecker_Errors(t *testing.T) {
	c := newMockChecker(t)

	httpmock.RegisterResponder(http.MethodGet, ReleasesURL,
		httpmock.NewStringResponder(http.StatusForbidden, "rate limited"))
	_, err := c.Latest(context.Background())
	require.ErrorIs(t, err, ErrReleaseCheck)
	assert.Contains(t, err.Error(), "rate limited")

	httpmock.RegisterResponder(http.MethodGet, ReleasesURL,
		httpmock.NewStringResponder(http.StatusOK, "{not json"))
	_, err = c.Latest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding release")
}
