package main

import (
	"fmt"

	"github.com/quarterwave/parley/internal/probe"
	"github.com/spf13/cobra"
)

func newProbeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "probe <provider>",
		Short: "Probe cached model capabilities for a provider",
		Long:  "Runs the image, speech, transcription and multimodal-input probes against every curated model in the provider's cached catalog.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parley.yaml", "path to Parley config file")
	return cmd
}

func runProbe(cmd *cobra.Command, configPath, providerID string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	provider := a.cfg.Provider(providerID)
	if provider == nil {
		return fmt.Errorf("unknown provider %q", providerID)
	}

	client, err := a.registry.ClientFor(*provider, a.creds)
	if err != nil {
		return err
	}
	prober, err := probe.NewProber(probe.ProberOpts{
		DB:          a.db,
		Concurrency: a.cfg.Refresh.ProbeConcurrency,
	})
	if err != nil {
		return err
	}

	if err := prober.ProbeProvider(cmd.Context(), client, provider.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Probed %s\n", provider.ID)
	return nil
}
