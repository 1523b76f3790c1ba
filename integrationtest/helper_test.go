package integrationtest

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"
)

// helperEnv makes the test binary act as a child process instead of running
// tests. Children are started as <exe> <mode> [args...] <port flag> <port>.
const helperEnv = "RUNFILES_INTEGRATIONTEST_HELPER"

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		os.Exit(helperMain(os.Args[1:]))
	}
	os.Exit(m.Run())
}

func helperMain(args []string) int {
	if len(args) < 3 {
		fmt.Fprintln(os.Stderr, "helper: not enough arguments:", args)
		return 2
	}
	mode, rest, port := args[0], args[1:len(args)-2], args[len(args)-1]
	arg := func(i int) string {
		if i < len(rest) {
			return rest[i]
		}
		return ""
	}

	switch mode {
	case "serve":
		// serve [delay] [port file]
		if d, err := time.ParseDuration(arg(0)); err == nil {
			time.Sleep(d)
		}
		ln, err := net.Listen("tcp", net.JoinHostPort("localhost", port))
		if err != nil {
			fmt.Fprintln(os.Stderr, "helper:", err)
			return 1
		}
		if f := arg(1); f != "" {
			_ = os.WriteFile(f, []byte(port), 0o644)
		}
		fmt.Printf("listening on %s\n", port)
		fmt.Println("serving requests")
		_ = http.Serve(ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "ok")
		}))
		return 0
	case "die":
		fmt.Fprintln(os.Stderr, "helper: dying before readiness")
		return 3
	case "silent-exit":
		return 0
	case "hang":
		time.Sleep(time.Hour)
		return 0
	case "probe":
		// probe: exits 0 only if the backend answers.
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/", port))
		if err != nil {
			fmt.Fprintln(os.Stderr, "helper:", err)
			return 4
		}
		resp.Body.Close()
		fmt.Println("probe ok")
		return 0
	case "exit":
		// exit <code> [marker file]
		if f := arg(1); f != "" {
			_ = os.WriteFile(f, []byte("ran"), 0o644)
		}
		var code int
		fmt.Sscanf(arg(0), "%d", &code)
		return code
	case "record":
		// record <file>
		if err := os.WriteFile(arg(0), []byte(port), 0o644); err != nil {
			return 1
		}
		return 0
	case "kill-self":
		p, _ := os.FindProcess(os.Getpid())
		_ = p.Kill()
		time.Sleep(time.Hour)
		return 0
	case "sleep":
		time.Sleep(time.Hour)
		return 0
	}
	fmt.Fprintln(os.Stderr, "helper: unknown mode", mode)
	return 2
}

// helperCommand returns the argv that runs the test binary in mode.
func helperCommand(t *testing.T, mode string, args ...string) []string {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	return append([]string{exe, mode}, args...)
}

// lockedBuffer collects output written by several children at once.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
