// Command runfiles-probe fetches one page from a backend and checks the
// response. It is meant to be the test binary of integration-test-runner:
// it takes the port through --backend_port and exits 0 on success, 1 on a
// mismatch.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type options struct {
	backendPort uint16
	path        string
	expect      string
	status      int
	timeout     time.Duration
}

func addFlags(fs *pflag.FlagSet, o *options) {
	fs.Uint16Var(&o.backendPort, "backend_port", 0, "port of the server to probe")
	fs.StringVar(&o.path, "path", "/", "path to request")
	fs.StringVar(&o.expect, "expect", "", "substring the response body must contain")
	fs.IntVar(&o.status, "status", http.StatusOK, "expected HTTP status")
	fs.DurationVar(&o.timeout, "timeout", 10*time.Second, "request timeout")
}

func probe(client *http.Client, o options) error {
	path := o.path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := fmt.Sprintf("http://localhost:%d%s", o.backendPort, path)

	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading body of %s: %w", url, err)
	}
	if resp.StatusCode != o.status {
		return fmt.Errorf("%s: expected status %d, got %d", url, o.status, resp.StatusCode)
	}
	if o.expect != "" && !strings.Contains(string(body), o.expect) {
		return fmt.Errorf("%s: body does not contain %q", url, o.expect)
	}
	return nil
}

func main() {
	var o options
	failed := false
	cmd := &cobra.Command{
		Use:           "runfiles-probe --backend_port N [--path /index.html] [--expect text]",
		Short:         "Check that a page is served as expected",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := probe(&http.Client{Timeout: o.timeout}, o); err != nil {
				logger.Error("probe failed", zap.Error(err))
				failed = true
				return nil
			}
			logger.Info("probe passed",
				zap.Uint16("port", o.backendPort),
				zap.String("path", o.path))
			return nil
		},
	}
	addFlags(cmd.Flags(), &o)
	_ = cmd.MarkFlagRequired("backend_port")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "runfiles-probe:", err)
		os.Exit(2)
	}
	if failed {
		os.Exit(1)
	}
}
