package tools

import (
	"errors"
	"testing"

	"github.com/BA-SupportII/BA-AI/internal/config"
)

func safeRunner() *Runner {
	cfg := config.Default().Tools
	return NewRunner(cfg, nil)
}

func TestCheckPythonDenylist(t *testing.T) {
	r := safeRunner()
	tests := []struct {
		name string
		code string
		safe bool
	}{
		{"plain print", "print(2 + 2)", true},
		{"math import", "import math\nprint(math.sqrt(2))", true},
		{"sympy import", "import sympy as sp\nprint(sp.pi)", true},
		{"os import", "import os\nprint(os.getcwd())", false},
		{"from os", "from os import path", false},
		{"subprocess", "import subprocess", false},
		{"open builtin", "open('/etc/passwd')", false},
		{"eval builtin", "eval('1+1')", false},
		{"dunder import", "__import__('os')", false},
		{"case folded", "IMPORT OS", false},
		{"requests", "import requests", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.CheckPython(tt.code)
			if tt.safe && err != nil {
				t.Fatalf("CheckPython(%q) = %v, want nil", tt.code, err)
			}
			if !tt.safe {
				if !errors.Is(err, ErrUnsafeCode) {
					t.Fatalf("CheckPython(%q) = %v, want ErrUnsafeCode", tt.code, err)
				}
				if Kind(err) != "unsafe_code" {
					t.Fatalf("Kind = %q, want unsafe_code", Kind(err))
				}
			}
		})
	}
}

func TestCheckJSDenylist(t *testing.T) {
	r := safeRunner()
	tests := []struct {
		name string
		code string
		safe bool
	}{
		{"arithmetic", "console.log(1 + 1)", true},
		{"string ops", "console.log('abc'.toUpperCase())", true},
		{"require", "const fs = require('fs')", false},
		{"process env", "console.log(process.env)", false},
		{"child process", "child_process.execSync('ls')", false},
		{"dynamic import", "import('fs')", false},
		{"fetch", "fetch('http://example.com')", false},
		{"deno api", "Deno.readTextFile('x')", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.CheckJS(tt.code)
			if tt.safe && err != nil {
				t.Fatalf("CheckJS(%q) = %v, want nil", tt.code, err)
			}
			if !tt.safe && !errors.Is(err, ErrUnsafeCode) {
				t.Fatalf("CheckJS(%q) = %v, want ErrUnsafeCode", tt.code, err)
			}
		})
	}
}

func TestSafeModeOffSkipsChecks(t *testing.T) {
	cfg := config.Default().Tools
	cfg.SafeMode = false
	r := NewRunner(cfg, nil)
	if err := r.CheckPython("import os"); err != nil {
		t.Fatalf("safe mode off should not reject, got %v", err)
	}
	if err := r.CheckJS("require('fs')"); err != nil {
		t.Fatalf("safe mode off should not reject, got %v", err)
	}
}

func TestSympyScriptPassesSafeMode(t *testing.T) {
	r := safeRunner()
	if err := r.CheckPython(sympyScript("x**2 - 4 = 0")); err != nil {
		t.Fatalf("sympy wrapper tripped the denylist: %v", err)
	}
}

func TestSympyScriptEmbedsHostileExpression(t *testing.T) {
	r := safeRunner()
	script := sympyScript("__import__('os').system('id')")
	if err := r.CheckPython(script); !errors.Is(err, ErrUnsafeCode) {
		t.Fatalf("hostile expression should be caught by the scan, got %v", err)
	}
}
