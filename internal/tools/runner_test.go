package tools

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/config"
)

func TestRunnerInputBounds(t *testing.T) {
	r := safeRunner()
	ctx := context.Background()

	if _, err := r.RunPython(ctx, ""); !errors.Is(err, ErrSandbox) {
		t.Fatalf("empty code err = %v, want ErrSandbox", err)
	}
	big := strings.Repeat("x", 13000)
	if _, err := r.RunPython(ctx, "print('"+big+"')"); !errors.Is(err, ErrSandbox) {
		t.Fatalf("oversized code err = %v, want ErrSandbox", err)
	}
}

func TestRunnerUnknownLanguage(t *testing.T) {
	r := safeRunner()
	if _, err := r.Run(context.Background(), "cobol", "DISPLAY 'HI'"); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("err = %v, want ErrToolNotFound", err)
	}
}

func TestRunnerMissingRuntime(t *testing.T) {
	cfg := config.Default().Tools
	cfg.NodeBin = ""
	cfg.DenoBin = ""
	r := NewRunner(cfg, nil)
	if _, err := r.RunJS(context.Background(), "console.log(1)"); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("js err = %v, want ErrToolNotFound", err)
	}
	if _, err := r.RunTS(context.Background(), "console.log(1)"); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("ts err = %v, want ErrToolNotFound", err)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	for raw, want := range map[string]string{
		"":           "python",
		"py":         "python",
		"Python3":    "python",
		"js":         "javascript",
		"node":       "javascript",
		"TypeScript": "typescript",
		"deno":       "typescript",
	} {
		if got := normalizeLanguage(raw); got != want {
			t.Fatalf("normalizeLanguage(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestTruncateOutput(t *testing.T) {
	if got := truncateOutput("short", 100); got != "short" {
		t.Fatalf("got %q", got)
	}
	long := strings.Repeat("a", 200)
	got := truncateOutput(long, 50)
	if !strings.HasSuffix(got, "(output truncated)") {
		t.Fatalf("missing truncation marker: %q", got)
	}
	if len(got) >= len(long) {
		t.Fatal("output not shortened")
	}
}

// Tests below spawn real interpreters and skip when none is installed.

func pythonOrSkip(t *testing.T) *Runner {
	t.Helper()
	cfg := config.Default().Tools
	if _, err := exec.LookPath(cfg.PythonBin); err != nil {
		t.Skipf("%s not installed", cfg.PythonBin)
	}
	return NewRunner(cfg, nil)
}

func TestRunPython(t *testing.T) {
	r := pythonOrSkip(t)
	out, err := r.RunPython(context.Background(), "print(6 * 7)")
	if err != nil {
		t.Fatalf("RunPython: %v", err)
	}
	if out != "42" {
		t.Fatalf("out = %q, want 42", out)
	}
}

func TestRunPythonExitError(t *testing.T) {
	r := pythonOrSkip(t)
	_, err := r.RunPython(context.Background(), "raise ValueError('boom')")
	if !errors.Is(err, ErrSandbox) {
		t.Fatalf("err = %v, want ErrSandbox", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error should carry stderr detail: %v", err)
	}
}

func TestRunPythonTimeout(t *testing.T) {
	cfg := config.Default().Tools
	if _, err := exec.LookPath(cfg.PythonBin); err != nil {
		t.Skipf("%s not installed", cfg.PythonBin)
	}
	cfg.ScriptTimeoutSec = 1
	r := NewRunner(cfg, nil)

	start := time.Now()
	_, err := r.RunPython(context.Background(), "while True:\n    pass")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("kill took too long: %s", elapsed)
	}
}

func TestRunPythonCancelled(t *testing.T) {
	r := pythonOrSkip(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := r.RunPython(ctx, "import time\ntime.sleep(10)")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
