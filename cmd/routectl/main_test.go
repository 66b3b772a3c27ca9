package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(strings.NewReader(stdin), &out, &errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var ee *exitErr
	require.True(t, errors.As(err, &ee), "expected exit error, got %v", err)
	return ee.code
}

// fakeNominatim answers /search for a fixed set of places along one latitude.
func fakeNominatim(t *testing.T) {
	t.Helper()
	places := map[string]string{
		"Harbor":   "139.00",
		"Market":   "139.20",
		"Station":  "139.10",
		"Terminal": "139.30",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		lon, ok := places[q]
		if !ok {
			_, _ = w.Write([]byte("[]"))
			return
		}
		_, _ = fmt.Fprintf(w, `[{"lat":"35.00","lon":%q,"display_name":%q}]`, lon, q)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("ROUTE_GEOCODER_BASE_URL", srv.URL)
	t.Setenv("ROUTE_GEOCODER_INTERVAL", "0s")
	t.Setenv("ROUTE_GEOCODER_RETRY_DELAY", "1ms")
	t.Setenv("ROUTE_ORS_API_KEY", "")
	t.Setenv("ORS_API_KEY", "")
}

func TestPlanPrintsOrderedRoute(t *testing.T) {
	fakeNominatim(t)

	out, err := run(t, "", "--env-file", "", "plan", "Harbor", "Market", "Station", "Terminal")
	require.NoError(t, err)

	assert.Contains(t, out, "Optimized Route\n")
	assert.Contains(t, out, "Distance: ")
	assert.Contains(t, out, "Route Order:\n  1. Harbor\n  2. Station\n  3. Market\n  4. Terminal\n")
	assert.NotContains(t, out, "Plan: ", "in-process plans are not saved")
}

func TestPlanJSONAndMapOutput(t *testing.T) {
	fakeNominatim(t)
	mapPath := filepath.Join(t.TempDir(), "map.html")

	out, err := run(t, "", "--env-file", "", "plan", "--json", "--map-out", mapPath, "Harbor", "Terminal")
	require.NoError(t, err)

	var resp struct {
		Summary struct {
			Distance string   `json:"distance"`
			Order    []string `json:"order"`
		} `json:"summary"`
		MapHTML string `json:"map_html"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []string{"Harbor", "Terminal"}, resp.Summary.Order)
	assert.True(t, strings.HasSuffix(resp.Summary.Distance, " km"), resp.Summary.Distance)

	written, err := os.ReadFile(mapPath)
	require.NoError(t, err)
	assert.Equal(t, resp.MapHTML, string(written))
	assert.Contains(t, string(written), "<iframe")
}

func TestPlanNeedsTwoAddresses(t *testing.T) {
	fakeNominatim(t)

	_, err := run(t, "", "--env-file", "", "plan", "Harbor", "   ")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(t, err))
	assert.Equal(t, "Please enter at least two addresses.", err.Error())
}

func TestPlanReportsGeocodeFailure(t *testing.T) {
	fakeNominatim(t)

	_, err := run(t, "", "--env-file", "", "plan", "Harbor", "Atlantis")
	require.Error(t, err)
	assert.Equal(t, 3, exitCode(t, err))
	assert.Equal(t, "Could not geocode address: Atlantis", err.Error())
}

func TestUserAddReadsPasswordFromStdin(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ROUTE_DB_PATH="+filepath.Join(dir, "routes.db")+"\n"), 0o600))

	out, err := run(t, "s3cret\n", "--env-file", envFile, "user", "add", "alice")
	require.NoError(t, err)
	assert.Equal(t, "created user alice (id 1)\n", out)

	_, err = run(t, "", "--env-file", envFile, "user", "add", "--password", "other", "alice")
	require.Error(t, err)
	assert.Equal(t, 3, exitCode(t, err))
	assert.Contains(t, err.Error(), `"alice" already exists`)
}

func TestUserAddRejectsEmptyPassword(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ROUTE_DB_PATH", filepath.Join(dir, "routes.db"))

	_, err := run(t, "\n", "--env-file", "", "user", "add", "bob")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(t, err))
}

// fakeServer mimics the login form and the optimize endpoint of the web app.
func fakeServer(t *testing.T, gotAddresses *[]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "csrf_token", Value: "tok", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		if r.PostFormValue("csrf_token") != "tok" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if r.PostFormValue("username") != "alice" || r.PostFormValue("password") != "pw" {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
	mux.HandleFunc("POST /optimize", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.UserAgent() != "routectl" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unexpected user agent"}`))
			return
		}
		if c, err := r.Cookie("session"); err != nil || c.Value != "ok" || r.Header.Get("X-CSRF-Token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Login required."}`))
			return
		}
		var req struct {
			Addresses []string `json:"addresses"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		*gotAddresses = req.Addresses
		_, _ = w.Write([]byte(`{"plan_id":"01PLAN","summary":{"distance":"12.50 km","order":["B","A"]},"map_html":"<iframe></iframe>"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOptimizeAgainstServer(t *testing.T) {
	var got []string
	srv := fakeServer(t, &got)

	out, err := run(t, "", "optimize", "--server", srv.URL, "--user", "alice", "--password", "pw", "A", "B")
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, got)
	assert.Equal(t, "Optimized Route\nDistance: 12.50 km\nRoute Order:\n  1. B\n  2. A\nPlan: 01PLAN\n", out)
}

func TestOptimizeLoginRejected(t *testing.T) {
	var got []string
	srv := fakeServer(t, &got)

	_, err := run(t, "", "optimize", "--server", srv.URL, "--user", "alice", "--password", "wrong", "A", "B")
	require.Error(t, err)
	assert.Equal(t, 3, exitCode(t, err))
	assert.Nil(t, got)
}

func TestOptimizeRequiresCredentials(t *testing.T) {
	t.Setenv("ROUTECTL_PASSWORD", "")

	_, err := run(t, "", "optimize", "--server", "http://127.0.0.1:1", "--user", "alice", "A", "B")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(t, err))
}

func TestUserAddRejectsLongPassword(t *testing.T) {
	t.Setenv("ROUTE_DB_PATH", filepath.Join(t.TempDir(), "routes.db"))

	_, err := run(t, "", "--env-file", "", "user", "add", "--password", strings.Repeat("p", 80), "bob")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(t, err))
	assert.ErrorContains(t, err, "password too long")
}
