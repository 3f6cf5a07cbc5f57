package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/streamvault/streamvault/internal/recorder"
	"github.com/streamvault/streamvault/internal/registry"
)

type fakeSupervisor struct{ state recorder.State }

func (f *fakeSupervisor) Start()                      { f.state = recorder.StateRunning }
func (f *fakeSupervisor) Stop()                       { f.state = recorder.StateIdle }
func (f *fakeSupervisor) StopWait(time.Duration) bool { f.Stop(); return true }
func (f *fakeSupervisor) Reset()                      { f.state = recorder.StateIdle }
func (f *fakeSupervisor) State() recorder.State       { return f.state }
func (f *fakeSupervisor) OutputPath() string          { return "" }

func newTestServer(t *testing.T) (*Server, *registry.Registry, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := registry.NewStore(filepath.Join(t.TempDir(), "channels.json"))
	reg := registry.New(store, func(string) registry.Supervisor {
		return &fakeSupervisor{}
	}, time.Second, logger)
	recordingsDir := t.TempDir()
	return New(":0", reg, recordingsDir, logger), reg, recordingsDir
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp := doJSON(t, s, "GET", "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
}

func TestChannelLifecycle(t *testing.T) {
	s, reg, _ := newTestServer(t)

	resp := doJSON(t, s, "POST", "/api/channels", map[string]string{"name": "Alpha"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add status = %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["name"] != "alpha" {
		t.Errorf("add returned name %v", body["name"])
	}

	resp = doJSON(t, s, "POST", "/api/channels", map[string]string{"name": "alpha"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate add status = %d, want 409", resp.StatusCode)
	}

	resp = doJSON(t, s, "POST", "/api/channels", map[string]string{"name": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid add status = %d, want 400", resp.StatusCode)
	}

	resp = doJSON(t, s, "GET", "/api/channels", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	channels, ok := body["channels"].([]any)
	if !ok || len(channels) != 1 {
		t.Fatalf("channels = %v", body["channels"])
	}
	first := channels[0].(map[string]any)
	if first["name"] != "alpha" || first["is_recording"] != true {
		t.Errorf("channel entry = %v", first)
	}

	resp = doJSON(t, s, "POST", "/api/channels/alpha/pause", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("pause status = %d", resp.StatusCode)
	}
	if snap := reg.Snapshot(); snap[0].Active {
		t.Error("channel still active after pause")
	}

	resp = doJSON(t, s, "POST", "/api/channels/alpha/resume", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("resume status = %d", resp.StatusCode)
	}
	if snap := reg.Snapshot(); !snap[0].Active {
		t.Error("channel not active after resume")
	}

	resp = doJSON(t, s, "DELETE", "/api/channels/alpha", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("remove status = %d", resp.StatusCode)
	}
	if reg.Len() != 0 {
		t.Errorf("registry len = %d after remove", reg.Len())
	}

	resp = doJSON(t, s, "DELETE", "/api/channels/alpha", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("remove missing status = %d, want 404", resp.StatusCode)
	}
}

func TestListRecordings(t *testing.T) {
	s, _, dir := newTestServer(t)

	old := filepath.Join(dir, "alpha_2026-01-01_00-00-00.ts")
	if err := os.WriteFile(old, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	older := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old, older, older); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "beta_2026-01-02_00-00-00.ts"), []byte("newer"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp := doJSON(t, s, "GET", "/api/recordings", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list recordings status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	recs := body["recordings"].([]any)
	if len(recs) != 2 {
		t.Fatalf("recordings = %v", recs)
	}
	// Newest first.
	if recs[0].(map[string]any)["name"] != "beta_2026-01-02_00-00-00.ts" {
		t.Errorf("first recording = %v, want newest", recs[0])
	}
	if _, ok := body["free_bytes"]; !ok {
		t.Error("free_bytes missing from listing")
	}
}

func TestDownloadRecording(t *testing.T) {
	s, _, dir := newTestServer(t)
	content := []byte("video bytes")
	if err := os.WriteFile(filepath.Join(dir, "alpha.ts"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	resp := doJSON(t, s, "GET", "/recordings/alpha.ts", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", resp.StatusCode)
	}
	defer resp.Body.Close()
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("download body = %q", got)
	}

	resp = doJSON(t, s, "GET", "/recordings/missing.ts", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing download status = %d, want 404", resp.StatusCode)
	}
}

func TestDownload_TraversalBlocked(t *testing.T) {
	s, _, dir := newTestServer(t)

	secret := filepath.Join(filepath.Dir(dir), "secret.txt")
	if err := os.WriteFile(secret, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp := doJSON(t, s, "GET", "/recordings/..%2Fsecret.txt", nil)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		got, _ := io.ReadAll(resp.Body)
		if bytes.Contains(got, []byte("secret")) {
			t.Error("traversal escaped the recordings directory")
		}
	}
}

func TestDeleteRecording(t *testing.T) {
	s, _, dir := newTestServer(t)
	path := filepath.Join(dir, "alpha.ts")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp := doJSON(t, s, "DELETE", "/api/recordings/alpha.ts", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("recording still exists after delete")
	}

	resp = doJSON(t, s, "DELETE", "/api/recordings/alpha.ts", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("delete missing status = %d, want 404", resp.StatusCode)
	}
}
