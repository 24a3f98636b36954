package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/goleak"

	"github.com/geopol/geopol-go/internal/config"
	"github.com/geopol/geopol-go/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// executeCommand runs a cobra command with the given arguments and returns the output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)

	err = root.Execute()
	return buf.String(), err
}

// executeWithInput is executeCommand with stdin answers for confirmation prompts
func executeWithInput(root *cobra.Command, input string, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

type cliEnv struct {
	srv    *testutil.MockServer
	dir    string
	config string
}

// newCLIEnv writes a settings file pointing at a fresh mock backend
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	srv := testutil.StartMockServer(t)
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Connection.ServerURL = srv.BaseURL()
	cfg.Connection.FetchTimeoutSec = 5
	cfg.Storage.CachePath = filepath.Join(dir, "cache.db")
	cfg.Export.Directory = filepath.Join(dir, "exports")
	cfg.Log.File = filepath.Join(dir, "geopol.log")
	for id, ov := range cfg.Overlays {
		ov.RefreshSec = 0
		cfg.Overlays[id] = ov
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		t.Fatalf("marshal settings: %v", err)
	}
	path := testutil.TempConfigDir(t)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return &cliEnv{srv: srv, dir: dir, config: path}
}

func (e *cliEnv) run(args ...string) (string, error) {
	return executeCommand(newRootCmd(), append([]string{"--config", e.config}, args...)...)
}

func (e *cliEnv) runWithInput(input string, args ...string) (string, error) {
	return executeWithInput(newRootCmd(), input, append([]string{"--config", e.config}, args...)...)
}

func TestRootCmd_Help(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedStrings := []string{
		"geopol - Geopolitical Map Dashboard",
		"--server",
		"--profile",
		"--theme",
		"--no-status",
		"profiles",
		"status",
	}
	for _, expected := range expectedStrings {
		if !strings.Contains(output, expected) {
			t.Errorf("expected help output to contain %q", expected)
		}
	}
}

func TestRootCmd_ListThemes(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "--list-themes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, expected := range []string{"Available Themes:", "light", "dark", "satellite"} {
		if !strings.Contains(output, expected) {
			t.Errorf("expected theme list to contain %q", expected)
		}
	}
}

func TestRootCmd_UnknownTheme(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.run("--theme", "neon")
	if err == nil {
		t.Fatal("expected an error for an unknown theme")
	}
	if !strings.Contains(err.Error(), "neon") {
		t.Errorf("error should name the theme, got %v", err)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	e := newCLIEnv(t)
	opts := &options{
		configPath: e.config,
		server:     "http://geo.local:5000/",
		logLevel:   "debug",
		theme:      "light",
		exportDir:  e.dir,
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Connection.ServerURL != "http://geo.local:5000" {
		t.Errorf("server = %q", cfg.Connection.ServerURL)
	}
	if cfg.Log.Level != "debug" || cfg.Display.Theme != "light" {
		t.Errorf("overrides not applied: %+v %+v", cfg.Log, cfg.Display)
	}
	if cfg.Export.Directory != e.dir {
		t.Errorf("export dir = %q, want %q", cfg.Export.Directory, e.dir)
	}
}

func TestProfilesList(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.PutProfile("ops", json.RawMessage(`{"name":"ops","description":"Operations"}`))

	output, err := e.run("profiles", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, output)
	}
	for _, expected := range []string{"NAME", "default", "analyst", "meteo", "built-in", "ops", "custom"} {
		if !strings.Contains(output, expected) {
			t.Errorf("expected list to contain %q:\n%s", expected, output)
		}
	}
}

func TestProfilesList_BackendDown(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.Fail("/api/geopol/profiles", testutil.Failure{StatusCode: 503})

	output, err := e.run("profiles", "list")
	if err != nil {
		t.Fatalf("list should fall back to built-ins: %v", err)
	}
	if !strings.Contains(output, "analyst") {
		t.Errorf("built-ins should be listed:\n%s", output)
	}
}

func TestProfilesShow(t *testing.T) {
	e := newCLIEnv(t)

	output, err := e.run("profiles", "show", "meteo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	start := strings.Index(output, "{")
	if start < 0 {
		t.Fatalf("expected JSON output, got:\n%s", output)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(output[start:]), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, output)
	}
	if doc["name"] != "meteo" {
		t.Errorf("name = %v, want meteo", doc["name"])
	}
}

func TestProfilesShow_NotFound(t *testing.T) {
	e := newCLIEnv(t)

	output, err := e.run("profiles", "show", "nowhere")
	if err != errReported {
		t.Fatalf("expected errReported, got %v", err)
	}
	if !strings.Contains(output, "⚠") {
		t.Errorf("expected an alert line:\n%s", output)
	}
}

func TestProfilesSave(t *testing.T) {
	e := newCLIEnv(t)

	output, err := e.run("profiles", "save", "night", "--description", "Night shift")
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, output)
	}
	if !strings.Contains(output, `Profile "night" saved`) {
		t.Errorf("expected save notice:\n%s", output)
	}
	doc, ok := e.srv.Profile("night")
	if !ok {
		t.Fatal("profile should be stored on the backend")
	}
	if !strings.Contains(string(doc), "Night shift") {
		t.Errorf("description missing from %s", doc)
	}
}

func TestProfilesSave_BuiltInRefused(t *testing.T) {
	e := newCLIEnv(t)

	if _, err := e.run("profiles", "save", "analyst"); err != errReported {
		t.Fatalf("expected errReported, got %v", err)
	}
	if _, ok := e.srv.Profile("analyst"); ok {
		t.Error("built-in name must not reach the backend")
	}
}

func TestProfilesSave_OverwritePrompt(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.PutProfile("night", json.RawMessage(`{"name":"night","description":"old"}`))

	output, err := e.runWithInput("n\n", "profiles", "save", "night", "--description", "new")
	if err != errReported {
		t.Fatalf("declined overwrite should fail, got %v", err)
	}
	if !strings.Contains(output, "Overwrite? [y/N]") {
		t.Errorf("expected an overwrite prompt:\n%s", output)
	}
	doc, _ := e.srv.Profile("night")
	if !strings.Contains(string(doc), "old") {
		t.Error("declined overwrite must keep the stored profile")
	}

	if _, err := e.runWithInput("y\n", "profiles", "save", "night", "--description", "new"); err != nil {
		t.Fatalf("confirmed overwrite failed: %v", err)
	}
	doc, _ = e.srv.Profile("night")
	if !strings.Contains(string(doc), "new") {
		t.Error("confirmed overwrite should replace the profile")
	}
}

func TestProfilesSave_FromState(t *testing.T) {
	e := newCLIEnv(t)

	output, err := e.run("profiles", "save", "snap", "--from-state")
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, output)
	}
	if e.srv.RequestCount("POST", "/api/geopol/profiles/from-state") != 1 {
		t.Error("expected one from-state request")
	}
	if _, ok := e.srv.Profile("snap"); !ok {
		t.Error("backend should hold the generated profile")
	}
}

func TestProfilesDelete(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.PutProfile("ops", json.RawMessage(`{"name":"ops"}`))

	output, err := e.run("profiles", "delete", "ops", "--yes")
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, output)
	}
	if _, ok := e.srv.Profile("ops"); ok {
		t.Error("profile should be deleted")
	}
	if !strings.Contains(output, `Profile "ops" deleted`) {
		t.Errorf("expected delete notice:\n%s", output)
	}
}

func TestProfilesDelete_Declined(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.PutProfile("ops", json.RawMessage(`{"name":"ops"}`))

	if _, err := e.run("profiles", "delete", "ops"); err != errReported {
		t.Fatalf("expected errReported without an answer, got %v", err)
	}
	if _, ok := e.srv.Profile("ops"); !ok {
		t.Error("declined delete must keep the profile")
	}
}

func TestProfilesExportImport(t *testing.T) {
	e := newCLIEnv(t)
	outDir := filepath.Join(e.dir, "out")

	output, err := e.run("profiles", "export", "analyst", "--dir", outDir)
	if err != nil {
		t.Fatalf("export failed: %v\n%s", err, output)
	}
	path := strings.TrimSpace(lastLine(output))
	if !strings.HasPrefix(filepath.Base(path), "geopol_profile_analyst_") {
		t.Errorf("unexpected export file %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("export file missing: %v", err)
	}

	output, err = e.run("profiles", "import", path, "--name", "analyst-copy")
	if err != nil {
		t.Fatalf("import failed: %v\n%s", err, output)
	}
	if _, ok := e.srv.Profile("analyst-copy"); !ok {
		t.Error("imported profile should be saved under the new name")
	}
	if e.srv.RequestCount("POST", "/api/geopol/profiles/validate") != 1 {
		t.Error("import should validate with the backend")
	}
}

func TestProfilesImport_Rejected(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.RejectValidation("layers: unknown overlay")
	path := filepath.Join(e.dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{"name":"bad"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	output, err := e.run("profiles", "import", path)
	if err != errReported {
		t.Fatalf("expected errReported, got %v", err)
	}
	if !strings.Contains(output, "unknown overlay") {
		t.Errorf("expected the validation reason:\n%s", output)
	}
	if _, ok := e.srv.Profile("bad"); ok {
		t.Error("rejected profile must not be saved")
	}
}

func TestStatus_Online(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SetCacheSize(42)

	output, err := e.run("status")
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, output)
	}
	if !strings.Contains(output, "ONLINE") || !strings.Contains(output, "cache entries: 42") {
		t.Errorf("unexpected status output:\n%s", output)
	}
}

func TestStatus_Offline(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.Fail("/api/geopol/status", testutil.Failure{StatusCode: 503})

	output, err := e.run("status")
	if err != errReported {
		t.Fatalf("expected errReported, got %v", err)
	}
	if !strings.Contains(output, "OFFLINE") {
		t.Errorf("unexpected status output:\n%s", output)
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return lines[len(lines)-1]
}
