package compute

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/httpclient"
	"github.com/wardenhq/warden/internal/util"
)

func TestScanTokens(t *testing.T) {
	tokenA := "0123456789abcdef0123456789abcdef"
	tokenB := "fedcba9876543210fedcba9876543210"

	lines := []string{
		"submitted compute task " + tokenA + " to backend",
		"waiting on compute task " + tokenA, // duplicate
		"submitted compute task " + tokenB,
		"unrelated log line",
		"compute task deadbeef", // too short, not a token
	}

	tokens := ScanTokens(lines)
	assert.Equal(t, []string{tokenA, tokenB}, tokens, "first-seen order, deduplicated")
}

func TestScanTokensMultiplePerLine(t *testing.T) {
	tokenA := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	tokenB := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	tokens := ScanTokens([]string{
		"fanned out: compute task " + tokenA + ", compute task " + tokenB,
	})
	assert.Equal(t, []string{tokenA, tokenB}, tokens)
}

func TestScanTokensEmpty(t *testing.T) {
	assert.Empty(t, ScanTokens(nil))
	assert.Empty(t, ScanTokens([]string{"no tokens here"}))
}

// localTestClient allows requests to the httptest loopback server
func localTestClient(t *testing.T) *httpclient.SaferClient {
	t.Helper()
	return httpclient.NewSaferClientWithOptions(5*time.Second, httpclient.SaferClientOptions{
		BlockPrivateIP: util.Ptr(false),
	})
}

func TestHTTPCancellerCancelTask(t *testing.T) {
	token := "0123456789abcdef0123456789abcdef"

	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPCancellerWithClient(srv.URL, "secret", localTestClient(t))
	require.NoError(t, c.CancelTask(context.Background(), token))

	assert.Equal(t, "/tasks/"+token+"/cancel", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestHTTPCancellerNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "task not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPCancellerWithClient(srv.URL, "", localTestClient(t))
	err := c.CancelTask(context.Background(), "0123456789abcdef0123456789abcdef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestNopCancellerAlwaysFails(t *testing.T) {
	err := NopCanceller{}.CancelTask(context.Background(), "0123456789abcdef0123456789abcdef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no compute backend configured")
}
