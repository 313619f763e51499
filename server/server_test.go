package server

import (
	"context"
	"testing"
	"time"

	"github.com/EPecherkin/catty-bills/config"
	"github.com/EPecherkin/catty-bills/dbtest"
	"github.com/EPecherkin/catty-bills/deps"
	"github.com/EPecherkin/catty-bills/files"
	"github.com/EPecherkin/catty-bills/logger"
)

func testDeps(t *testing.T, dir string) deps.Deps {
	t.Helper()
	bucket, err := files.OpenBucket(dir)
	if err != nil {
		t.Fatalf("opening bucket: %v", err)
	}
	t.Cleanup(func() { _ = bucket.Close() })
	return deps.NewDeps(logger.NewDiscard(), dbtest.Open(t), bucket)
}

func TestParseMode(t *testing.T) {
	for _, raw := range []string{"api", "telegram"} {
		mode, err := ParseMode(raw)
		if err != nil || string(mode) != raw {
			t.Errorf("ParseMode(%q) = %q, %v", raw, mode, err)
		}
	}
	if _, err := ParseMode("worker"); err == nil {
		t.Error("unknown mode was accepted")
	}
}

func TestTelegramModeRequiresToken(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{UploadDir: dir}
	if _, err := NewServer(context.Background(), cfg, ModeTelegram, testDeps(t, dir)); err == nil {
		t.Fatal("telegram mode started without a token")
	}
}

func TestApiModeStopsWithContext(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{UploadDir: dir, ApiPort: 0}
	ctx, cancel := context.WithCancel(context.Background())

	srv, err := NewServer(ctx, cfg, ModeApi, testDeps(t, dir))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, ModeApi) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
