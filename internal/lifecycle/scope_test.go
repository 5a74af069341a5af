package lifecycle

import (
	"bytes"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/mcporter/internal/logging"
)

func TestForceExitEnabled(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{value: "", want: true},
		{value: "0", want: true},
		{value: "1", want: false},
		{value: "true", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(EnvNoForceExit, tt.value)
			if got := ForceExitEnabled(); got != tt.want {
				t.Errorf("ForceExitEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScopeCloseKillsChildren(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sleep(1)")
	}
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}

	scope := NewScope(logging.Discard())
	scope.Track(cmd)
	if scope.Len() != 1 {
		t.Fatalf("expected 1 tracked child, got %d", scope.Len())
	}

	if err := scope.Close(true); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("child was not terminated")
	}

	// Second close is a no-op.
	if err := scope.Close(true); err != nil {
		t.Errorf("second Close returned error: %v", err)
	}
}

func TestScopeCloseWithoutForceLeavesChildren(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sleep(1)")
	}
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	buf := &bytes.Buffer{}
	scope := NewScope(logging.NewLoggerWithWriter(logging.LevelInfo, false, false, buf))
	scope.Track(cmd)
	if err := scope.Close(false); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if cmd.ProcessState != nil {
		t.Error("child should still be running")
	}
	if !strings.Contains(buf.String(), "1 child process(es) still running") {
		t.Errorf("expected a count of running children, got %q", buf.String())
	}
}

func TestNilScope(t *testing.T) {
	var scope *Scope
	scope.Track(exec.Command("true"))
	if err := scope.Close(true); err != nil {
		t.Errorf("nil scope Close returned %v", err)
	}
}
