// Command runfiles-server serves the runfiles tree it is started in.
//
// Once listening it prints one line to stdout, which lets it act as the
// system under test for integration-test-runner. Logs go to stderr.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tarasglek/runfiles"
)

type options struct {
	port          uint16
	index         string
	noBrowser     bool
	root          string
	mimeTypes     string
	liveReloadURL string
	verbose       bool
}

func addFlags(fs *pflag.FlagSet, o *options) {
	fs.Uint16Var(&o.port, "port", 0, "port to listen on. If not given, an ephemeral port will be chosen")
	fs.StringVar(&o.index, "index", "", "page to visit in the system's default browser when the server is up. If not given, the browser will not be launched")
	fs.BoolVar(&o.noBrowser, "nobrowser", false, "disables opening the browser, even when --index is given")
	fs.StringVar(&o.root, "root", ".", "runfiles directory to serve")
	fs.StringVar(&o.mimeTypes, "mime_types", "", "Apache-style mime.types file overriding the built-in table")
	fs.StringVar(&o.liveReloadURL, "live_reload_url", os.Getenv(runfiles.LiveReloadEnv), "livereload script URL injected into HTML pages")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")
}

func newCommand() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:           "runfiles-server [--port N] [--index page.html] [--nobrowser]",
		Short:         "Serve runfiles over HTTP for local development",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(o.verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			mimeTable := runfiles.NewMimeTable()
			if o.mimeTypes != "" {
				if mimeTable, err = runfiles.LoadMimeTable(o.mimeTypes); err != nil {
					return err
				}
			}

			srv, err := runfiles.NewServer(runfiles.ServerConfig{
				Port:      runfiles.Port(o.port),
				Index:     o.index,
				NoBrowser: o.noBrowser,
				Runfiles: runfiles.Config{
					Root:    o.root,
					Mime:    mimeTable,
					Snippet: runfiles.NewLiveReloadSnippet(o.liveReloadURL),
					Logger:  logger,
				},
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
	addFlags(cmd.Flags(), &o)
	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "runfiles-server:", err)
		os.Exit(1)
	}
}
