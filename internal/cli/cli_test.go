package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lazypower/cohortsim/internal/config"
)

// resetFlags restores every flag to its default; cobra keeps values between
// Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with args against a fresh config file.
func execute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := tryExecute(t, args...)
	if err != nil {
		t.Fatalf("cohortsim %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func tryExecute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	if err := config.WriteSample(cfgFile, false); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COHORTSIM_DB", filepath.Join(dir, "runs.db"))

	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", cfgFile}, args...))
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSimulateJSON(t *testing.T) {
	out := execute(t, "simulate", "--no-store", "--agents", "60", "--horizon", "6", "--seed", "3", "--format", "json")

	var resp struct {
		Run    *json.RawMessage `json:"run"`
		Report struct {
			AsOfDay int `json:"as_of_day"`
			Agents  int `json:"agents"`
		} `json:"report"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if resp.Report.Agents != 60 {
		t.Errorf("agents = %d, want 60", resp.Report.Agents)
	}
	if resp.Run != nil && string(*resp.Run) != "null" {
		t.Errorf("--no-store produced a run: %s", *resp.Run)
	}
}

func TestSimulateStoreAndReport(t *testing.T) {
	out := execute(t, "simulate", "--agents", "40", "--horizon", "8", "--name", "smoke", "--format", "text")
	for _, want := range []string{"smoke", "## Cohort", "## Funnel", "## Personas", "## Revenue", "## Churn risk"} {
		if !strings.Contains(out, want) {
			t.Errorf("simulate output missing %q", want)
		}
	}
}

func TestUnknownFormat(t *testing.T) {
	if err := checkFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
	if err := checkFormat("json"); err != nil {
		t.Errorf("json: %v", err)
	}
}

func TestSimulatePushChecksSinkFirst(t *testing.T) {
	var posts atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer backend.Close()
	t.Setenv("COHORTSIM_SINK_URL", backend.URL)

	_, err := tryExecute(t, "simulate", "--push", "--agents", "20", "--horizon", "5")
	if err == nil || !strings.Contains(err.Error(), "not reachable") {
		t.Fatalf("err = %v, want unreachable sink", err)
	}
	if posts.Load() != 0 {
		t.Errorf("sink received %d posts after a failed health check", posts.Load())
	}
}

func TestSimulatePush(t *testing.T) {
	var posts atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()
	t.Setenv("COHORTSIM_SINK_URL", backend.URL)

	out := execute(t, "simulate", "--push", "--agents", "20", "--horizon", "5", "--format", "json")
	var resp struct {
		Run struct {
			PushedAt *int64 `json:"pushed_at"`
		} `json:"run"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if resp.Run.PushedAt == nil {
		t.Error("run not marked pushed")
	}
	if posts.Load() < 3 {
		t.Errorf("sink posts = %d, want agents, events and snapshots", posts.Load())
	}
}
