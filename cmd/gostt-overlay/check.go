package main

import (
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-overlay/internal/audio"
	"github.com/chaz8081/gostt-overlay/internal/hotkey"
	"github.com/chaz8081/gostt-overlay/internal/inject"
	"github.com/chaz8081/gostt-overlay/internal/silence"
)

// checkCmd holds manual checks for the OS permissions the pipeline needs:
// microphone, input monitoring and accessibility.
func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Manually check microphone, hotkey and text injection access",
	}
	cmd.AddCommand(checkMicCmd(), checkHotkeyCmd(), checkInjectCmd())
	return cmd
}

func checkMicCmd() *cobra.Command {
	var seconds float64
	cmd := &cobra.Command{
		Use:   "mic",
		Short: "Record briefly and report the input level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			rec, err := audio.NewRecorder(cfg.Audio.SampleRate, cfg.Audio.Channels, os.TempDir())
			if err != nil {
				return fmt.Errorf("opening capture device: %w", err)
			}
			defer rec.Close()

			fmt.Printf("Recording %.1fs, say something...\n", seconds)
			if err := rec.Start(); err != nil {
				return err
			}
			time.Sleep(time.Duration(seconds * float64(time.Second)))
			samples := rec.Stop()

			if len(samples) == 0 {
				fmt.Println("No audio captured. Check microphone permission in your system settings.")
				return nil
			}
			x := make([]float64, len(samples))
			for i, s := range samples {
				x[i] = float64(s)
			}
			level := silence.LevelDBFS(x)
			fmt.Printf("Captured %d samples, level %s\n", len(samples), formatDBFS(level))
			if level < cfg.Capture.Silence.ThresholdDBFS {
				fmt.Printf("Level is below the silence threshold (%.0f dBFS); auto-stop would trigger.\n", cfg.Capture.Silence.ThresholdDBFS)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&seconds, "seconds", 2, "how long to record")
	return cmd
}

func formatDBFS(v float64) string {
	if math.IsInf(v, -1) {
		return "-inf dBFS (digital silence)"
	}
	return fmt.Sprintf("%.1f dBFS", v)
}

func checkHotkeyCmd() *cobra.Command {
	var keys []string
	cmd := &cobra.Command{
		Use:   "hotkey",
		Short: "Print hotkey press and release events until Ctrl+C",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(keys) == 0 {
				cfg, _, err := loadConfig(configPath)
				if err != nil {
					return err
				}
				keys = cfg.Hotkey.Keys
			}
			fmt.Printf("Listening for %s. Press Ctrl+C to exit.\n", strings.Join(keys, "+"))

			listener := hotkey.NewListener(keys)
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sig
				listener.Stop()
			}()
			go func() {
				for ev := range listener.Events() {
					switch ev.Type {
					case hotkey.EventPress:
						fmt.Println(">>> press")
					case hotkey.EventRelease:
						fmt.Println("<<< release")
					}
				}
			}()

			listener.Start()
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "key combo to watch (default: hotkey.keys from config)")
	return cmd
}

func checkInjectCmd() *cobra.Command {
	var method string
	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Type or paste a test line into the focused app after a countdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text := "Hello from gostt-overlay!"
			fmt.Printf("Will inject %q using %q in 3 seconds. Focus a text editor now.\n", text, method)
			for i := 3; i > 0; i-- {
				fmt.Printf("%d...\n", i)
				time.Sleep(time.Second)
			}
			return inject.NewInjector(method).Inject(text)
		},
	}
	cmd.Flags().StringVar(&method, "method", "type", "inject method: type or paste")
	return cmd
}
