// Package lifecycle tracks resources that must be released when a single
// mcporter invocation ends.
package lifecycle

import (
	"errors"
	"os"
	"os/exec"
	"sync"

	"github.com/giantswarm/mcporter/internal/logging"
)

// EnvNoForceExit disables terminating lingering children at shutdown.
const EnvNoForceExit = "MCPORTER_NO_FORCE_EXIT"

// Scope owns the child processes spawned during one invocation.
type Scope struct {
	mu       sync.Mutex
	children []*exec.Cmd
	closed   bool
	logger   *logging.Logger
}

// NewScope creates an empty scope.
func NewScope(logger *logging.Logger) *Scope {
	return &Scope{logger: logger}
}

// Track registers a started or about-to-start child.
func (s *Scope) Track(cmd *exec.Cmd) {
	if s == nil || cmd == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children = append(s.children, cmd)
}

// Len returns how many children are tracked.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.children)
}

// ForceExitEnabled reports whether the environment allows terminating
// children and exiting immediately after cleanup.
func ForceExitEnabled() bool {
	switch os.Getenv(EnvNoForceExit) {
	case "1", "true", "TRUE", "yes":
		return false
	}
	return true
}

// Close releases every tracked child. With force set, children that are still
// running are killed; otherwise they are left to exit on their own. Close is
// idempotent.
func (s *Scope) Close(force bool) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	children := s.children
	s.children = nil
	s.mu.Unlock()

	var (
		errs  []error
		alive int
	)
	for _, cmd := range children {
		if cmd.Process == nil || cmd.ProcessState != nil {
			continue
		}
		if !force {
			alive++
			s.logger.Debug("Leaving child process %d running", cmd.Process.Pid)
			continue
		}
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Debug("Failed to terminate child process %d: %v", cmd.Process.Pid, err)
			errs = append(errs, err)
		}
	}
	if alive > 0 {
		s.logger.Info("%s is set, %d child process(es) still running", EnvNoForceExit, alive)
	}
	return errors.Join(errs...)
}
