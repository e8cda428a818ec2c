package main

import (
	"fmt"

	"github.com/quarterwave/parley/internal/models"
	"github.com/spf13/cobra"
)

func newRefreshCmd() *cobra.Command {
	var (
		configPath string
		providerID string
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the model catalog",
		Long:  "Runs the list, prefilter, curate, merge pipeline for every configured provider, or one with --provider.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(cmd, configPath, providerID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parley.yaml", "path to Parley config file")
	cmd.Flags().StringVarP(&providerID, "provider", "p", "", "refresh only this provider")
	return cmd
}

func runRefresh(cmd *cobra.Command, configPath, providerID string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	refresher, err := a.newRefresher()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	if providerID != "" {
		provider := a.cfg.Provider(providerID)
		if provider == nil {
			return fmt.Errorf("unknown provider %q", providerID)
		}
		count, err := refresher.RefreshProvider(ctx, *provider, models.RefreshManual)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d models cached\n", provider.ID, count)
		return nil
	}

	for _, res := range refresher.RefreshAll(ctx, models.RefreshManual) {
		if res.Err != nil {
			fmt.Fprintf(out, "%s: FAILED: %v\n", res.ProviderID, res.Err)
			continue
		}
		fmt.Fprintf(out, "%s: %d models cached\n", res.ProviderID, res.ModelCount)
	}
	return nil
}
