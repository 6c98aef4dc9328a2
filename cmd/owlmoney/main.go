package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"owlmoney/internal/cli"
	"owlmoney/internal/core"
	applog "owlmoney/internal/log"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(nil, "Configuration validation failed", err)
	}

	// Logs go to stderr so reports can be piped.
	logger, err := cli.SetupLogger(cfg.LogLevel, os.Stderr, applog.ComponentCLI)
	if err != nil {
		cli.Fatal(nil, "Invalid log level", err)
	}

	env := &cli.Env{
		Config: cfg,
		Logger: logger,
		Out:    os.Stdout,
		Clock:  core.SystemClock{},
	}

	cdr := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	cdr.Register(cdr.HelpCommand(), "")
	cdr.Register(cdr.FlagsCommand(), "")
	cdr.Register(cdr.CommandsCommand(), "")
	cli.Register(cdr, env)

	flag.Parse()
	ctx, cancel := cli.ShutdownContext(context.Background(), logger.Slog())
	status := cdr.Execute(ctx)
	cancel()
	os.Exit(int(status))
}
