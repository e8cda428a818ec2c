package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/quarterwave/parley/internal/blob"
	"github.com/quarterwave/parley/internal/chat"
	"github.com/quarterwave/parley/internal/db"
	"github.com/quarterwave/parley/internal/identity"
	"github.com/quarterwave/parley/internal/probe"
	"github.com/quarterwave/parley/internal/push"
	"github.com/quarterwave/parley/internal/scheduler"
	"github.com/quarterwave/parley/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Parley server",
		Long:  "Serves the chat API and WebSocket push channel, and runs the scheduled catalog refresh.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parley.yaml", "path to Parley config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(a.db); err != nil {
		return err
	}

	blobs, err := blob.NewFSStore(a.cfg.Blob.Dir, a.cfg.Server.BaseURL+"/blobs")
	if err != nil {
		return err
	}

	hub, err := push.NewHub(push.HubOpts{DB: a.db})
	if err != nil {
		return err
	}

	orchestrator, err := chat.NewOrchestrator(chat.OrchestratorOpts{
		DB:       a.db,
		Registry: a.registry,
		Creds:    a.creds,
		Push:     hub,
		Blobs:    blobs,
		Config:   a.cfg,
	})
	if err != nil {
		return err
	}

	refresher, err := a.newRefresher()
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

	sched, err := scheduler.New(scheduler.Opts{
		Refresher: refresher,
		Prober:    prober,
		Registry:  a.registry,
		Creds:     a.creds,
		Hub:       hub,
		Providers: a.cfg.Providers,
		Cron:      a.cfg.Refresh.Cron,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Opts{
		DB:           a.db,
		Config:       a.cfg,
		Orchestrator: orchestrator,
		Hub:          hub,
		Refresher:    refresher,
		Prober:       prober,
		Registry:     a.registry,
		Creds:        a.creds,
		Blobs:        blobs,
		Identity:     identity.TrustedResolver{},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Parley listening on %s:%d\n", a.cfg.Server.Host, a.cfg.Server.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})
	return g.Wait()
}
