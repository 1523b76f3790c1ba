//go:build integration
// +build integration

package runfiles

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

type binaries struct {
	server, runner, probe string
}

// buildBinaries compiles the command-line tools into a temp dir.
func buildBinaries(t *testing.T) binaries {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	projectDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	out := t.TempDir()
	b := binaries{
		server: filepath.Join(out, "runfiles-server"),
		runner: filepath.Join(out, "integration-test-runner"),
		probe:  filepath.Join(out, "runfiles-probe"),
	}
	for pkg, bin := range map[string]string{
		"./cmd/runfiles-server":         b.server,
		"./cmd/integration-test-runner": b.runner,
		"./cmd/runfiles-probe":          b.probe,
	} {
		cmd := exec.Command("go", "build", "-o", bin, pkg)
		cmd.Dir = projectDir
		if output, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("Failed to build %s: %v\nOutput: %s", pkg, err, output)
		}
	}
	return b
}

// runRunner runs integration-test-runner and returns its exit status.
func runRunner(t *testing.T, env []string, args ...string) int {
	t.Helper()
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(os.Environ(), env...)
	output, err := cmd.CombinedOutput()
	t.Logf("runner output:\n%s", output)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		return exitErr.ExitCode()
	default:
		t.Fatalf("Failed to run %s: %v", args[0], err)
		return -1
	}
}

func TestIntegration_RunnerServerProbe(t *testing.T) {
	b := buildBinaries(t)
	root := writeTree(t, map[string]string{
		"index.html": "<html><body>end to end</body></html>",
		"app.js":     "console.log('e2e')",
	})
	env := []string{LiveReloadEnv + "=http://localhost:35729/livereload.js"}

	tests := []struct {
		name     string
		sutArgs  []string
		testArgs []string
		wantCode int
	}{
		{
			name:     "page with live reload",
			sutArgs:  []string{"--root=" + root, "--nobrowser"},
			testArgs: []string{"--path=/index.html", `--expect=<script src="http://localhost:35729/livereload.js"></script>`},
			wantCode: 0,
		},
		{
			name:     "javascript served",
			sutArgs:  []string{"--root=" + root},
			testArgs: []string{"--path=/app.js", "--expect=console.log('e2e')"},
			wantCode: 0,
		},
		{
			name:     "missing file is 404",
			sutArgs:  []string{"--root=" + root},
			testArgs: []string{"--path=/missing.html", "--status=404"},
			wantCode: 0,
		},
		{
			name:     "expectation mismatch fails the run",
			sutArgs:  []string{"--root=" + root},
			testArgs: []string{"--path=/index.html", "--expect=not in the page"},
			wantCode: 1,
		},
		{
			name:     "server that cannot start",
			sutArgs:  []string{"--root=" + filepath.Join(root, "missing")},
			testArgs: []string{"--path=/index.html"},
			wantCode: 125,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{b.runner, "--sut_binary", b.server, "--test_binary", b.probe}
			for _, a := range tt.sutArgs {
				args = append(args, "--sut_args="+a)
			}
			for _, a := range tt.testArgs {
				args = append(args, "--test_args="+a)
			}
			if got := runRunner(t, env, args...); got != tt.wantCode {
				t.Errorf("runner exited %d, want %d", got, tt.wantCode)
			}
		})
	}
}

func TestIntegration_RunnerUsageError(t *testing.T) {
	b := buildBinaries(t)
	if got := runRunner(t, nil, b.runner, "--test_binary", b.probe); got != 2 {
		t.Errorf("runner exited %d without --sut_binary, want 2", got)
	}
}

func TestIntegration_ErrorsReportedOnce(t *testing.T) {
	b := buildBinaries(t)
	missing := filepath.Join(t.TempDir(), "missing")

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantMsg  string
	}{
		{
			name:     "server with missing root",
			args:     []string{b.server, "--root", missing},
			wantCode: 1,
			wantMsg:  "runfiles root",
		},
		{
			name:     "probe without port",
			args:     []string{b.probe, "--path", "/index.html"},
			wantCode: 2,
			wantMsg:  "backend_port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := exec.Command(tt.args[0], tt.args[1:]...).CombinedOutput()
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) || exitErr.ExitCode() != tt.wantCode {
				t.Fatalf("expected exit code %d, got %v\nOutput: %s", tt.wantCode, err, output)
			}
			if n := strings.Count(string(output), tt.wantMsg); n != 1 {
				t.Errorf("error mentioned %d times, want once\nOutput: %s", n, output)
			}
			if strings.Contains(string(output), "Error:") {
				t.Errorf("cobra printed the error as well\nOutput: %s", output)
			}
		})
	}
}
