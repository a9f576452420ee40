package main

import (
	"context"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	debughooks "github.com/walteh/semhl/pkg/debug"
)

func main() {
	if err := run(); err != nil {
		println(err.Error())
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Hook(debughooks.TimeHook{}).
		Hook(debughooks.CallerHook{WithColor: true})
	ctx := logger.WithContext(context.Background())

	rootCmd := &cobra.Command{
		Use:   "semhl",
		Short: "Inspect LSP semantic token payloads and rainbow color assignment",
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		rootCmd.Version = "unknown"
	} else {
		rootCmd.Version = info.Main.Version
	}

	rootCmd.AddCommand(NewDecodeCommand())
	rootCmd.AddCommand(NewRainbowCommand())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return errors.Errorf("failed to execute command: %w", err)
	}

	return nil
}
