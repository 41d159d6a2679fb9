package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-overlay/internal/config"
	"github.com/chaz8081/gostt-overlay/internal/hotkey"
	"github.com/chaz8081/gostt-overlay/internal/inject"
)

func listenCmd() *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Dictate with the global hotkey and type the transcript into the active app",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.startPipeline(); err != nil {
				return err
			}

			cfg := a.current()
			mode, err := hotkey.ParseMode(cfg.Hotkey.Mode)
			if err != nil {
				return err
			}

			var injector inject.TextInjector = inject.NewInjector(cfg.Inject.Method)
			if printOnly {
				injector = inject.NewWriterInjector(cmd.OutOrStdout())
			}

			printBanner(cfg)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go a.watchConfig(ctx)

			listener := hotkey.NewListener(cfg.Hotkey.Keys)
			go listener.Start()

			driver := &hotkey.Driver{
				Sessions:  a.ctrl,
				Mode:      mode,
				Selection: a.selection,
				Deliver:   injector.Inject,
			}
			go driver.Run(ctx, listener.Events())

			slog.Info("[main] ready", "hotkey", strings.Join(cfg.Hotkey.Keys, "+"), "mode", cfg.Hotkey.Mode)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			slog.Info("[main] shutting down", "signal", sig)

			if _, err := a.ctrl.Stop(context.Background()); err != nil {
				slog.Warn("[main] stopping active session", "error", err)
			}
			cancel()
			a.Close()
			// Exit directly to avoid gohook's C cleanup crash.
			// The OS reclaims the event hook on process exit.
			os.Exit(0)
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print transcripts to stdout instead of typing them")
	return cmd
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== gostt-overlay ===")
	fmt.Printf("  Capture:  %s\n", cfg.Capture.Mode)
	fmt.Printf("  Provider: %s (%s, %s)\n", cfg.Provider.Name, cfg.Provider.Model, cfg.Provider.Language)
	fmt.Printf("  Hotkey:   %s (%s mode)\n", strings.Join(cfg.Hotkey.Keys, "+"), cfg.Hotkey.Mode)
	fmt.Printf("  Audio:    %dHz, %dch\n", cfg.Audio.SampleRate, cfg.Audio.Channels)
	fmt.Printf("  Inject:   %s\n", cfg.Inject.Method)
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("=====================")
}
