package tools

import (
	"fmt"
	"strings"
)

// Safe-mode denylists. Matching is lowercase substring, same for every
// language: overmatching rejects harmless code, undermatching runs
// dangerous code, so the lists err toward the former.

var pythonDenylist = []string{
	"import os",
	"from os",
	"import sys",
	"from sys",
	"import subprocess",
	"from subprocess",
	"import shutil",
	"from shutil",
	"import socket",
	"from socket",
	"import ctypes",
	"from ctypes",
	"import importlib",
	"from importlib",
	"import multiprocessing",
	"from multiprocessing",
	"import signal",
	"import pty",
	"import urllib",
	"from urllib",
	"import requests",
	"from requests",
	"import http",
	"from http",
	"open(",
	"eval(",
	"exec(",
	"compile(",
	"input(",
	"__import__",
	"breakpoint(",
}

var jsDenylist = []string{
	"require(",
	"child_process",
	"worker_threads",
	"process.",
	"import(",
	"importscripts",
	"eval(",
	"new function",
	"fetch(",
	"xmlhttprequest",
	"websocket",
	"fs.",
	"net.",
	"dns.",
	"deno.",
}

// CheckPython rejects python source containing denylisted imports or
// builtins. Disabled safe mode skips the check entirely.
func (r *Runner) CheckPython(code string) error {
	if !r.cfg.SafeMode {
		return nil
	}
	return scanDenylist(code, pythonDenylist)
}

// CheckJS rejects JavaScript or TypeScript source containing
// denylisted globals. Disabled safe mode skips the check entirely.
func (r *Runner) CheckJS(code string) error {
	if !r.cfg.SafeMode {
		return nil
	}
	return scanDenylist(code, jsDenylist)
}

func scanDenylist(code string, denylist []string) error {
	lower := strings.ToLower(code)
	for _, needle := range denylist {
		if strings.Contains(lower, needle) {
			return fmt.Errorf("%w: %q is not allowed in safe mode", ErrUnsafeCode, strings.TrimSpace(needle))
		}
	}
	return nil
}
