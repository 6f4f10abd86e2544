package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigCmd_FlagsOverrideDefaults(t *testing.T) {
	out, err := runCLI(t, "config", "--beats-per-breath", "4", "--display", "log")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	for _, want := range []string{"beats_per_breath: 4", "mode: log", "device: /dev/ttyACM0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestConfigCmd_UnsetFlagsKeepFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacer.yaml")
	body := "engine:\n  beats_per_breath: 4\n  default_bpm: 72\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := runCLI(t, "config", "--config", path, "--refresh-hz", "60")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	for _, want := range []string{"beats_per_breath: 4", "default_bpm: 72", "refresh_rate_hz: 60"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestConfigCmd_RejectsInvalidValues(t *testing.T) {
	if _, err := runCLI(t, "config", "--beats-per-breath", "0"); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != "breathpacer v"+version {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestSimulateCmd_WritesBeatLines(t *testing.T) {
	out, err := runCLI(t, "simulate", "--count", "3", "--bpm", "300", "--noise", "0", "--double-fire", "0", "--jitter", "0", "--rsa", "0")
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if out != "BEAT\nBEAT\nBEAT\n" {
		t.Fatalf("unexpected simulator output %q", out)
	}
}
