package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/fallback"
)

func TestDefaultCatalog(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	var names []string
	for _, p := range catalog.LinkMetadata.Profiles {
		names = append(names, p.Name)
	}
	require.Equal(t, []string{"desktop", "mobile", "facebook", "twitter", "googlebot"}, names)
	require.Len(t, catalog.RouteMetadata.Profiles, 3)
	require.Equal(t, "${origin}", catalog.RouteMetadata.Profiles[0].Headers["Referer"])
}

func TestLoadCatalogOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
link_metadata:
  profiles:
    - name: only
      headers:
        User-Agent: test
`), 0o600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, catalog.LinkMetadata.Profiles, 1)
	require.Len(t, catalog.RouteMetadata.Profiles, 3)

	_, err = ParseCatalog([]byte("link_metadata:\n  profiles:\n    - name: a\n    - name: a\n"))
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	set := ProfileSet{BlockStatuses: []int{403}, BlockMarkers: []string{"captcha"}}
	desktop := fallback.Profile{Name: "desktop", Options: map[string]string{"min_bytes": "10", "block_statuses": "202,403"}}
	bot := fallback.Profile{Name: "bot"}
	page := []byte("<html>plenty of content</html>")

	require.NoError(t, set.Classify(desktop, &Response{Status: 200, Body: page}))
	require.Error(t, set.Classify(desktop, &Response{Status: 202, Body: page}))
	require.NoError(t, set.Classify(bot, &Response{Status: 202, Body: page}))
	require.Error(t, set.Classify(bot, &Response{Status: 403, Body: page}))
	require.Error(t, set.Classify(bot, &Response{Status: 404, Body: page}))
	require.Error(t, set.Classify(desktop, &Response{Status: 200, Body: []byte("tiny")}))
	require.Error(t, set.Classify(bot, &Response{Status: 200, Body: []byte("Solve the CAPTCHA")}))
}

func TestFetchSendsProfileHeaders(t *testing.T) {
	var gotUA, gotReferer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		_, _ = w.Write([]byte(strings.Repeat("a", 64)))
	}))
	defer server.Close()

	client := NewClient(config.WebConfig{MaxBodyBytes: 16, HostRPS: 100, HostBurst: 1, AllowPrivateNetworks: true}, nil)
	target, err := url.Parse(server.URL + "/tour/1")
	require.NoError(t, err)

	resp, err := client.Fetch(context.Background(), target, fallback.Profile{
		Name:    "desktop",
		Headers: map[string]string{"User-Agent": "waypoint-test", "Referer": "${origin}"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, resp.Body, 16)
	require.Equal(t, "waypoint-test", gotUA)
	require.Equal(t, server.URL+"/", gotReferer)
}

func TestFetchServerErrorIsTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(config.WebConfig{AllowPrivateNetworks: true}, nil)
	target, _ := url.Parse(server.URL)
	_, err := client.Fetch(context.Background(), target, fallback.Profile{Name: "desktop"})
	require.True(t, core.IsKind(err, core.KindUpstreamTransportFailure))
}

func TestParseTarget(t *testing.T) {
	u, err := ParseTarget(" https://example.com/a ")
	require.NoError(t, err)
	require.Equal(t, "example.com", u.Host)

	for _, raw := range []string{"", "ftp://example.com", "not a url", "https://"} {
		_, err := ParseTarget(raw)
		require.True(t, core.IsKind(err, core.KindInvalidInput), raw)
	}
}

func TestFetchRefusesPrivateAddresses(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	client := NewClient(config.WebConfig{}, nil)
	target, _ := url.Parse(server.URL + "/latest/meta-data")
	_, err := client.Fetch(context.Background(), target, fallback.Profile{Name: "desktop"})
	require.True(t, core.IsKind(err, core.KindInvalidInput), "got %v", err)
	require.True(t, errors.Is(err, ErrPrivateAddress))
	require.Zero(t, hits)
}

func TestFetchRefusesRedirectToPrivateAddress(t *testing.T) {
	hits := 0
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer internal.Close()

	client := NewClient(config.WebConfig{}, nil)
	// The first hop is served in-process so only the redirect target dials.
	client.HTTP.Transport = redirectOnce{to: internal.URL, next: client.HTTP.Transport}
	target, _ := url.Parse("https://stays.example.com/listing/1")
	_, err := client.Fetch(context.Background(), target, fallback.Profile{Name: "desktop"})
	require.True(t, errors.Is(err, ErrPrivateAddress), "got %v", err)
	require.Zero(t, hits)
}

type redirectOnce struct {
	to   string
	next http.RoundTripper
}

func (r redirectOnce) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host != "stays.example.com" {
		return r.next.RoundTrip(req)
	}
	rec := httptest.NewRecorder()
	http.Redirect(rec, req, r.to, http.StatusFound)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

func TestPublicAddress(t *testing.T) {
	for raw, want := range map[string]bool{
		"93.184.216.34":        true,
		"2001:4860:4860::8888": true,
		"127.0.0.1":            false,
		"::1":                  false,
		"10.1.2.3":             false,
		"172.16.0.1":           false,
		"192.168.1.1":          false,
		"169.254.169.254":      false,
		"fe80::1":              false,
		"fd00::1":              false,
		"100.64.0.1":           false,
		"0.0.0.0":              false,
		"::ffff:127.0.0.1":     false,
		"::ffff:93.184.216.34": true,
		"224.0.0.1":            false,
	} {
		require.Equal(t, want, publicAddress(netip.MustParseAddr(raw)), raw)
	}
}
