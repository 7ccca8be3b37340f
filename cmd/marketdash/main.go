// Command marketdash is a terminal client for the EGX market dashboard.
package main

import (
	"context"
	"os"

	"github.com/fatih/color"

	"marketdash/internal/cli"
	apperrors "marketdash/internal/errors"
	"marketdash/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	logCfg := logging.DefaultLogConfig()
	logCfg.Level = "warn"
	if level := os.Getenv("MARKETDASH_LOG_LEVEL"); level != "" {
		logCfg.Level = level
	}
	logger := logging.NewLoggerWithConfig(logCfg)

	app := &cli.App{Logger: logger}
	defer app.Close()

	ctx := logging.WithLogger(context.Background(), logger)
	if err := cli.NewRootCmd(app).ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error: "+apperrors.UserMessage(err))
		logger.Debug().Err(err).Msg("Command failed")
		return 1
	}
	return 0
}
