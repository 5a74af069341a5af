package artifact

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/giantswarm/mcporter/internal/logging"
)

// Toolchain resolves dependencies for and compiles a generated module.
type Toolchain interface {
	Tidy(ctx context.Context, dir string) error
	Build(ctx context.Context, dir, output string, minify bool) error
}

// ExecToolchain shells out to go or tinygo.
type ExecToolchain struct {
	Runtime Runtime
	Logger  *logging.Logger
}

// NewToolchain returns the toolchain for r.
func NewToolchain(r Runtime, logger *logging.Logger) Toolchain {
	return &ExecToolchain{Runtime: r, Logger: logger}
}

// Tidy always uses the go command; tinygo builds on go modules as well.
func (t *ExecToolchain) Tidy(ctx context.Context, dir string) error {
	return t.run(ctx, dir, "go", "mod", "tidy")
}

func (t *ExecToolchain) Build(ctx context.Context, dir, output string, minify bool) error {
	switch t.Runtime {
	case RuntimeTinyGo:
		args := []string{"build", "-o", output}
		if minify {
			args = append(args, "-no-debug")
		}
		return t.run(ctx, dir, "tinygo", append(args, ".")...)
	default:
		args := []string{"build", "-trimpath", "-o", output}
		if minify {
			args = append(args, "-ldflags", "-s -w")
		}
		return t.run(ctx, dir, "go", append(args, ".")...)
	}
}

func (t *ExecToolchain) run(ctx context.Context, dir, name string, args ...string) error {
	t.Logger.Debug("Running %s %s in %s", name, strings.Join(args, " "), dir)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s %s: %w", name, args[0], err)
		}
		return fmt.Errorf("%s %s: %w\n%s", name, args[0], err, msg)
	}
	return nil
}
