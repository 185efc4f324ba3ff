// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// parley-viewer is a terminal client for a Parley messaging server.
// It logs in with username and password, starts the synchronization
// engine, and renders the live read model: the conversation list with
// unread markers on the left, the open conversation's message feed
// with delivery states on the right, and a send box below.
//
// Background logging goes to a JSON file (--log-output or the
// viewer.log_file config key), never to stderr — the alt-screen
// display owns the terminal while the viewer runs.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/parley/api"
	"github.com/bureau-foundation/parley/auth"
	"github.com/bureau-foundation/parley/engine"
	"github.com/bureau-foundation/parley/lib/config"
	"github.com/bureau-foundation/parley/lib/secret"
	"github.com/bureau-foundation/parley/lib/version"
	"github.com/bureau-foundation/parley/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var username string
	var passwordFile string
	var logOutput string

	flagSet := pflag.NewFlagSet("parley-viewer", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $PARLEY_CONFIG)")
	flagSet.StringVar(&username, "username", "", "account username")
	flagSet.StringVar(&passwordFile, "password-file", "", "read the password from this file (\"-\" for stdin)")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match other Parley binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("parley-viewer")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	configuration, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if username == "" {
		return fmt.Errorf("--username is required")
	}
	if passwordFile == "" {
		return fmt.Errorf("--password-file is required")
	}

	logger, closeLog, err := openLogger(logOutput, configuration.Viewer.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Info("parley-viewer starting", "version", version.Short(), "commit", version.GitCommit)

	password, err := secret.ReadFromPath(passwordFile)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	defer password.Close()

	client, err := api.NewClient(api.ClientConfig{
		BaseURL: configuration.Server.BaseURL,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	session, err := client.Login(context.Background(), username, password)
	if err != nil {
		return err
	}

	store := auth.NewStore()
	store.SetSession(session)
	defer store.Clear()

	if configuration.Session.TokenFile != "" {
		if err := os.WriteFile(configuration.Session.TokenFile, []byte(session.Token()), 0o600); err != nil {
			logger.Warn("saving session token failed", "path", configuration.Session.TokenFile, "error", err)
		}
	}

	// The engine's change callbacks post messages to the bubbletea
	// program. The program is assigned before Start, and Start is what
	// creates the goroutines that invoke the callbacks, so they never
	// observe a nil or half-written pointer.
	var program *tea.Program

	syncEngine, err := engine.New(engine.Config{
		Fetcher:   session,
		LocalUser: session.UserID(),
		SocketURL: configuration.Server.SocketURL,
		PageSize:  configuration.Viewer.PageSize,
		Logger:    logger,
		OnChange: func() {
			program.Send(readModelChanged{})
		},
		OnStatus: func(status wire.Status) {
			program.Send(statusChanged{status: status})
		},
	})
	if err != nil {
		return err
	}

	model := newModel(syncEngine, session.User().Profile.DisplayName())
	program = tea.NewProgram(model, tea.WithAltScreen())

	if err := syncEngine.Start(session.Token()); err != nil {
		return err
	}
	defer syncEngine.Stop()

	_, err = program.Run()
	return err
}

// loadConfig resolves the configuration: an explicit --config path
// first, then $PARLEY_CONFIG, then built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("PARLEY_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// openLogger builds the background logger. The --log-output flag wins
// over the config key; with neither, records are discarded.
func openLogger(flagPath, configPath string) (*slog.Logger, func(), error) {
	path := flagPath
	if path == "" {
		path = configPath
	}
	if path == "" {
		handler := slog.NewJSONHandler(io.Discard, nil)
		return slog.New(handler), func() {}, nil
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), func() { file.Close() }, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Parley viewer — interactive terminal client for Parley messaging.

Logs in with the given username (password read from a file or stdin),
then renders the live conversation list and message feeds. Server
endpoints come from the config file ($PARLEY_CONFIG or --config).

Usage:
  parley-viewer --username <name> --password-file <path> [flags]

Examples:
  # Password from a file
  parley-viewer --username alice --password-file ~/.parley-pass

  # Password from stdin
  echo -n "secret" | parley-viewer --username alice --password-file -

  # Explicit config and a debug log
  parley-viewer --config dev.yaml --username alice --password-file - --log-output /tmp/parley.log

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
