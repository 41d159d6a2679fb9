package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-overlay/internal/artifact"
	"github.com/chaz8081/gostt-overlay/internal/provider"
	"github.com/chaz8081/gostt-overlay/internal/session"
)

func transcribeCmd() *cobra.Command {
	var providerName, language string
	cmd := &cobra.Command{
		Use:   "transcribe FILE",
		Short: "Transcribe a 16-bit PCM WAV file with the configured provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := *a.current()
			if providerName != "" {
				cfg.Provider.Name = providerName
			}
			sel, err := cfg.Selection()
			if err != nil {
				return err
			}
			if language != "" {
				sel.Language = language
			}

			ref := artifact.Ref{Path: args[0]}
			if _, err := ref.Format(); err != nil {
				return err
			}

			start := time.Now()
			var text string
			if sel.Provider == provider.CustomLocal {
				model, err := a.models.Active()
				if err != nil {
					return describe(err)
				}
				text, err = a.engine.Infer(cmd.Context(), ref, model, sel.Language)
				if err != nil {
					return describe(err)
				}
			} else {
				text, err = a.router.Transcribe(cmd.Context(), ref, sel)
				if err != nil {
					return describe(err)
				}
			}
			slog.Info("[main] transcribed", "provider", sel.Provider, "elapsed", time.Since(start).Round(time.Millisecond))

			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&providerName, "provider", "", "provider override: local, openai, google, openrouter")
	cmd.Flags().StringVar(&language, "language", "", "BCP-47 locale override, e.g. en-US")
	return cmd
}

// describe adds the failure kind and any settings hint to err.
func describe(err error) error {
	f := session.Classify(err)
	if f.Action == session.ActionOpenSettings {
		return fmt.Errorf("%s: %w (check the config and API keys)", f.Kind, err)
	}
	return fmt.Errorf("%s: %w", f.Kind, err)
}
