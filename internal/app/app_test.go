package app

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"hardwire/internal/config"
	"hardwire/internal/hardwire"
	"hardwire/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir())
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.Encryption = config.EncryptionConfig{Type: "test"}
	cfg.Vault = config.VaultConfig{Type: "memory", Name: "mem"}
	cfg.Tasks.ProgressIntervalMs = 10
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := newApp(context.Background(), cfg, hardwire.NewNopLogger())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Indexer.Root = ""
	if _, err := newApp(context.Background(), cfg, hardwire.NewNopLogger()); err == nil {
		t.Fatal("newApp() expected error for invalid config")
	}

	cfg = testConfig(t)
	cfg.Vault = config.VaultConfig{Type: "bogus"}
	if _, err := newApp(context.Background(), cfg, hardwire.NewNopLogger()); err == nil {
		t.Fatal("newApp() expected error for unknown vault")
	}
}

func TestNew_WritesLogFile(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a.logger.Info("probe")
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, "hardwire.log"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "probe") {
		t.Errorf("log file = %q, want probe line", data)
	}
}

func TestApp_PublishAndArchive(t *testing.T) {
	cfg := testConfig(t)
	testutil.WriteTree(t, cfg.Indexer.Root, map[string]string{"a.txt": "alpha", "b/c.txt": "charlie"})
	a := newTestApp(t, cfg)
	ctx := context.Background()

	url, files, err := a.Publish(ctx, []string{"a.txt"}, 0)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if !strings.HasPrefix(url, config.DefaultPublicURL+"/s/") || len(files) != 1 {
		t.Errorf("Publish() = %q, %v", url, files)
	}

	var seen int
	task, err := a.Archive(ctx, hardwire.ArchiveJobInput{
		Directory:  filepath.Join(cfg.Indexer.Root, "b"),
		OutputPath: "b-archive",
		Password:   "pw",
	}, func(*hardwire.Task) { seen++ })
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if task.Status != hardwire.TaskCompleted {
		t.Fatalf("Status = %s, want completed (error %q)", task.Status, task.Error)
	}
	if seen == 0 {
		t.Error("onProgress was never called")
	}
	if want := filepath.Join(cfg.Tasks.ArchiveDir, "b-archive.zip.age"); task.Output.ArchivePath != want {
		t.Errorf("ArchivePath = %q, want %q", task.Output.ArchivePath, want)
	}
	if !strings.HasPrefix(task.Output.VaultLocation, "memory://mem/") {
		t.Errorf("VaultLocation = %q", task.Output.VaultLocation)
	}

	got, err := a.TaskStatus(ctx, task.ID)
	if err != nil {
		t.Fatalf("TaskStatus() error = %v", err)
	}
	if got.Status != hardwire.TaskCompleted {
		t.Errorf("TaskStatus() = %s", got.Status)
	}
}

func TestApp_Run(t *testing.T) {
	cfg := testConfig(t)
	testutil.WriteTree(t, cfg.Indexer.Root, map[string]string{"movie.bin": "0123456789"})
	a := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()
	testutil.Eventually(t, 5*time.Second, func() bool { return a.Addr() != nil }, "server did not start")
	base := "http://" + a.Addr().String()

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz status = %d", resp.StatusCode)
	}

	shareURL, files, err := a.Publish(context.Background(), []string{"movie.bin"}, 0)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if !strings.HasPrefix(shareURL, config.DefaultPublicURL+"/s/") {
		t.Fatalf("Publish() url = %q", shareURL)
	}
	shareID := strings.TrimPrefix(shareURL, config.DefaultPublicURL+"/s/")

	resp, err = http.Get(base + "/s/" + shareID + "/" + strconv.FormatInt(files[0].ID, 10))
	if err != nil {
		t.Fatalf("download error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "0123456789" {
		t.Fatalf("download body = %q", body)
	}

	testutil.Eventually(t, 5*time.Second, func() bool {
		sessions, err := a.Downloads(context.Background(), 10)
		return err == nil && len(sessions) == 1 && sessions[0].Status == hardwire.DownloadComplete
	}, "download was not tracked as complete")

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
