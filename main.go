package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/kapitanov/chip8emu/internal/config"
	"github.com/kapitanov/chip8emu/internal/hal"
	"github.com/kapitanov/chip8emu/internal/hal/beeper"
	"github.com/kapitanov/chip8emu/internal/snapshot"
	"github.com/kapitanov/chip8emu/internal/vm"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:           filepath.Base(os.Args[0]),
		Short:         "CHIP-8 emulator",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg.ApplyEnv(cmd.Flags(), os.LookupEnv)
			if err := cfg.Validate(); err != nil {
				return err
			}

			setupLogger(cfg.Verbose)
			return nil
		},
	}
	cfg.BindFlags(cmd.PersistentFlags())

	runCmd := &cobra.Command{
		Use:   "run PATH_TO_ROM_FILE",
		Short: "Run emulator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context(), cfg, args[0])
		},
	}

	execCmd := &cobra.Command{
		Use:   "exec PATH_TO_ROM_FILE",
		Short: "Run emulator without a display and report the final state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeadless(cmd.Context(), cfg, args[0])
		},
	}
	cfg.BindExecFlags(execCmd.Flags())

	cmd.AddCommand(runCmd, execCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd.SetArgs(os.Args[1:])
	if err := cmd.ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func setupLogger(verbose bool) {
	loggerOpts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if verbose {
		loggerOpts.Level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, loggerOpts)))
}

func newMachine(cfg config.Config, path string) (*vm.VM, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load file %q: %w", path, err)
	}

	var opts []vm.Option
	if cfg.Seed != 0 {
		opts = append(opts, vm.WithRand(rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))))
	}

	machine := vm.New(opts...)
	if err := machine.Load(bs); err != nil {
		return nil, fmt.Errorf("unable to load program %q: %w", path, err)
	}

	return machine, nil
}

func runInteractive(ctx context.Context, cfg config.Config, path string) error {
	machine, err := newMachine(cfg, path)
	if err != nil {
		return err
	}

	var speaker hal.Speaker
	if !cfg.Mute {
		b, err := beeper.New()
		if err != nil {
			slog.Warn("sound disabled", "err", err)
		} else {
			defer b.Close()
			speaker = b
		}
	}

	h, err := hal.New(cfg, speaker)
	if err != nil {
		return fmt.Errorf("unable to initialize hal: %w", err)
	}
	defer h.Shutdown()

	for {
		err = machine.Run(ctx, h, vm.RunOptions{})

		if errors.Is(err, hal.ErrQuit) || errors.Is(err, context.Canceled) {
			return nil
		}

		if errors.Is(err, hal.ErrReboot) {
			slog.Info("reboot")
			continue
		}

		machine.LogState(slog.LevelError)
		return err
	}
}

func runHeadless(ctx context.Context, cfg config.Config, path string) error {
	machine, err := newMachine(cfg, path)
	if err != nil {
		return err
	}

	h := hal.NewHeadless()
	err = machine.Run(ctx, h, vm.RunOptions{
		MaxCycles:  cfg.Cycles,
		StopOnHalt: true,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		machine.LogState(slog.LevelError)
		return err
	}

	machine.LogState(slog.LevelInfo)
	slog.Info("exec finished", "frames", h.Frames, "beeps", h.Beeps, "halted", machine.Halted())

	if cfg.Screenshot != "" {
		gfx := machine.Framebuffer()
		err := snapshot.WriteFile(cfg.Screenshot, &gfx, cfg.Scale, snapshot.RGB(cfg.Foreground), snapshot.RGB(cfg.Background))
		if err != nil {
			return err
		}
		slog.Info("screenshot written", "path", cfg.Screenshot)
	}

	return nil
}
