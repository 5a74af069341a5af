package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client/transport"
)

func TestFileTokenStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "linear")
	store := NewFileTokenStore(dir)
	ctx := context.Background()

	if _, err := store.GetToken(ctx); !errors.Is(err, transport.ErrNoToken) {
		t.Fatalf("expected ErrNoToken for empty cache, got %v", err)
	}

	token := &transport.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
	}
	if err := store.SaveToken(ctx, token); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	got, err := store.GetToken(ctx)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if got.AccessToken != "access" || got.RefreshToken != "refresh" {
		t.Errorf("unexpected token: %+v", got)
	}

	info, err := os.Stat(filepath.Join(dir, tokenFileName))
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file permissions = %o, want 600", perm)
	}
	dirInfo, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat dir: %v", err)
	}
	if perm := dirInfo.Mode().Perm(); perm != 0o700 {
		t.Errorf("dir permissions = %o, want 700", perm)
	}
}

func TestFileTokenStoreCancelledContext(t *testing.T) {
	store := NewFileTokenStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.SaveToken(ctx, &transport.Token{AccessToken: "x"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestClientIDRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadClientID(dir); err == nil {
		t.Fatal("expected error when no client id is stored")
	}
	if err := SaveClientID(dir, "abc"); err != nil {
		t.Fatalf("SaveClientID: %v", err)
	}
	id, err := LoadClientID(dir)
	if err != nil || id != "abc" {
		t.Errorf("LoadClientID = %q, %v", id, err)
	}
}
