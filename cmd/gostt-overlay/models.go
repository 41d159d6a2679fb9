package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-overlay/internal/models"
)

func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List, download and select local whisper models",
		Long: `List, download and select local whisper models.

The active model is kept in the state database, which a running listen or
serve command holds open. Stop it before running these commands, or select
the model through the serve API (PUT /api/v1/models/active).`,
	}
	cmd.AddCommand(modelsListCmd(), modelsDownloadCmd(), modelsUseCmd())
	return cmd
}

func modelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog models and their install state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			active, err := a.models.Active()
			if err != nil && !errors.Is(err, models.ErrNoActiveModel) {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tRAM\tINSTALLED\tNOTE")
			for _, d := range a.models.List() {
				installed := "no"
				if d.Installed {
					installed = "yes"
				}
				var note string
				switch {
				case d.Name == active:
					note = "active"
				case !d.FitsInMemory:
					note = "exceeds system memory"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Name, d.SizeDescription, d.RAMDescription, installed, note)
			}
			return tw.Flush()
		},
	}
}

func modelsDownloadCmd() *cobra.Command {
	var use bool
	cmd := &cobra.Command{
		Use:   "download NAME",
		Short: "Download a model into the models directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			name := args[0]
			progress, err := a.models.Download(cmd.Context(), name)
			if err != nil {
				return err
			}

			last := -1
			for p := range progress {
				if p.Err != nil {
					fmt.Fprintln(os.Stderr)
					return p.Err
				}
				if p.Percent != last {
					fmt.Fprintf(os.Stderr, "\rdownloading %s: %3d%%", name, p.Percent)
					last = p.Percent
				}
				if p.Done {
					fmt.Fprintln(os.Stderr)
				}
			}

			if use {
				return a.models.SelectActive(name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&use, "use", false, "select the model as active after downloading")
	return cmd
}

func modelsUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use NAME",
		Short: "Select an installed model as the active local model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.models.SelectActive(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "active model: %s\n", args[0])
			return nil
		},
	}
}
