package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"imagegen/internal/db"
	"imagegen/internal/ledger"
	"imagegen/internal/state"

	"github.com/spf13/cobra"
)

// fakeAPI serves submit, status and image endpoints. Every job reports
// RUNNING once, then COMPLETE with an image under /img/.
type fakeAPI struct {
	srv *httptest.Server

	mu      sync.Mutex
	next    int
	polls   map[string]int
	failed  map[string]bool
	submits []map[string]any
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{polls: map[string]int{}, failed: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /run", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		api.mu.Lock()
		api.next++
		id := fmt.Sprintf("T%d", api.next)
		api.submits = append(api.submits, body)
		api.mu.Unlock()
		fmt.Fprintf(w, `{"task_id":%q}`, id)
	})
	mux.HandleFunc("GET /v1/task/{id}/status/", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		api.mu.Lock()
		api.polls[id]++
		n := api.polls[id]
		failed := api.failed[id]
		api.mu.Unlock()
		switch {
		case failed:
			fmt.Fprintf(w, `{"task_id":%q,"status":"FAILED"}`, id)
		case n < 2:
			fmt.Fprintf(w, `{"task_id":%q,"status":"RUNNING"}`, id)
		default:
			fmt.Fprintf(w, `{"task_id":%q,"status":"COMPLETE","outputs":{"./output.png":{"url":%q}}}`, id, api.imageURL(id))
		}
	})
	mux.HandleFunc("GET /img/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = io.WriteString(w, "png:"+r.PathValue("name"))
	})
	api.srv = httptest.NewServer(mux)
	t.Cleanup(api.srv.Close)
	return api
}

func (a *fakeAPI) imageURL(jobID string) string {
	return a.srv.URL + "/img/" + jobID + ".png"
}

func (a *fakeAPI) fail(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed[jobID] = true
}

func (a *fakeAPI) pollCount(jobID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.polls[jobID]
}

// writeTestConfig writes a config pointing at api (which may be nil) and
// isolates the XDG directories so no real credentials are picked up.
func writeTestConfig(t *testing.T, api *fakeAPI) (cfgFile, dir string) {
	t.Helper()
	dir = t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg-config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "xdg-state"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "xdg-data"))
	for _, key := range []string{"IMAGEGEN_AUTH_TOKEN", "IMAGEGEN_SUBMIT_URL", "IMAGEGEN_STATUS_URL", "IMAGEGEN_POLL_INTERVAL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	var b strings.Builder
	b.WriteString("db_path = \"imagegen.db\"\n")
	b.WriteString("download_dir = \"images\"\n")
	b.WriteString("default_model = \"m1\"\n")
	if api != nil {
		fmt.Fprintf(&b, "\n[api]\nsubmit_url = %q\nstatus_url = %q\nauth_token = \"tok\"\n", api.srv.URL+"/run", api.srv.URL+"/v1/task")
	}
	b.WriteString("\n[poll]\ninterval = \"100ms\"\nretry_base_delay = \"10ms\"\n")
	b.WriteString("\n[[models]]\nid = \"m1\"\nlabel = \"Model One\"\n\n[[models]]\nid = \"m2\"\n")

	cfgFile = filepath.Join(dir, "imagegen.toml")
	if err := os.WriteFile(cfgFile, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgFile, dir
}

func useConfig(t *testing.T, path string, asJSON bool) {
	t.Helper()
	prevCfgPath := cfgPath
	prevJSON := jsonOut
	cfgPath = path
	jsonOut = asJSON
	t.Cleanup(func() {
		cfgPath = prevCfgPath
		jsonOut = prevJSON
	})
}

func seedHistory(t *testing.T, dir string, records ...ledger.PromptRecord) {
	t.Helper()
	store, err := db.Open(filepath.Join(dir, "imagegen.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer store.Close()
	if err := state.New(store, []string{"m1", "m2"}, "m1").SetLedger(context.Background(), ledger.New(records)); err != nil {
		t.Fatalf("seed history: %v", err)
	}
}

func reopenState(t *testing.T, dir string) state.Snapshot {
	t.Helper()
	store, err := db.Open(filepath.Join(dir, "imagegen.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer store.Close()
	snap, err := state.New(store, []string{"m1", "m2"}, "m1").Load(context.Background())
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	return snap
}

func loadHistory(t *testing.T, dir string) []ledger.PromptRecord {
	t.Helper()
	return reopenState(t, dir).Ledger.Records()
}

func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	prevStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("create pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan []byte)
	go func() {
		out, _ := io.ReadAll(r)
		done <- out
	}()

	runErr := fn()
	if err := w.Close(); err != nil {
		t.Fatalf("close write pipe: %v", err)
	}
	os.Stdout = prevStdout
	out := <-done
	if err := r.Close(); err != nil {
		t.Fatalf("close read pipe: %v", err)
	}
	return string(out), runErr
}

func mustCapture(t *testing.T, fn func() error) string {
	t.Helper()
	out, err := captureStdout(t, fn)
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	return out
}
