// Command integration-test-runner starts a system under test on an ephemeral
// port, waits for it to print a line to stdout, then runs a test binary
// against it and exits with the test binary's status.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tarasglek/runfiles/integrationtest"
)

type options struct {
	sutBinary        string
	testBinary       string
	sutArgs          []string
	testArgs         []string
	sutPortFlag      string
	testPortFlag     string
	readinessTimeout time.Duration
	testTimeout      time.Duration
	verbose          bool
}

func addFlags(fs *pflag.FlagSet, o *options) {
	fs.StringVar(&o.sutBinary, "sut_binary", "", "binary of system under test")
	fs.StringVar(&o.testBinary, "test_binary", "", "test binary to run against system under test")
	fs.StringArrayVar(&o.sutArgs, "sut_args", nil, "extra argument for the system under test (repeatable)")
	fs.StringArrayVar(&o.testArgs, "test_args", nil, "extra argument for the test binary (repeatable)")
	fs.StringVar(&o.sutPortFlag, "sut_port_flag", integrationtest.DefaultSUTPortFlag, "flag used to pass the port to the system under test")
	fs.StringVar(&o.testPortFlag, "test_port_flag", integrationtest.DefaultTestPortFlag, "flag used to pass the port to the test binary")
	fs.DurationVar(&o.readinessTimeout, "readiness_timeout", time.Minute, "how long to wait for the system under test to print its readiness line (0 waits forever)")
	fs.DurationVar(&o.testTimeout, "test_timeout", 0, "how long the test binary may run (0 waits forever)")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")
}

func newCommand(exitCode *int) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:           "integration-test-runner --sut_binary <binary> --test_binary <binary>",
		Short:         "Run a test binary against a freshly started system under test",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(o.verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			*exitCode = run(ctx, logger, o)
			return nil
		},
	}
	addFlags(cmd.Flags(), &o)
	_ = cmd.MarkFlagRequired("sut_binary")
	_ = cmd.MarkFlagRequired("test_binary")
	return cmd
}

func run(ctx context.Context, logger *zap.Logger, o options) int {
	runner := &integrationtest.Runner{
		SUT:              append([]string{o.sutBinary}, o.sutArgs...),
		Test:             append([]string{o.testBinary}, o.testArgs...),
		SUTPortFlag:      o.sutPortFlag,
		TestPortFlag:     o.testPortFlag,
		ReadinessTimeout: o.readinessTimeout,
		TestTimeout:      o.testTimeout,
		Logger:           logger,
	}
	code, err := runner.Run(ctx)
	if err != nil {
		switch {
		case errors.Is(err, integrationtest.ErrPrematureExit):
			logger.Error("system under test died before initialization", zap.String("sut", o.sutBinary), zap.Error(err))
		case errors.Is(err, integrationtest.ErrReadinessTimeout):
			logger.Error("system under test never became ready", zap.String("sut", o.sutBinary), zap.Error(err))
		default:
			logger.Error("integration test run failed", zap.Stringer("state", runner.State()), zap.Error(err))
		}
		return integrationtest.ExitOrchestrationFailure
	}
	return code
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
	code := 0
	if err := newCommand(&code).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "integration-test-runner:", err)
		os.Exit(2)
	}
	os.Exit(code)
}
