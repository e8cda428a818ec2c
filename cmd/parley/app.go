package main

import (
	"fmt"

	"github.com/quarterwave/parley/internal/catalog"
	"github.com/quarterwave/parley/internal/config"
	"github.com/quarterwave/parley/internal/db"
	"github.com/quarterwave/parley/internal/llm"
	"github.com/quarterwave/parley/internal/notify"
	"gorm.io/gorm"
)

// app bundles the collaborators every command needs.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	registry *llm.Registry
	creds    llm.CredentialSource
	notifier notify.Notifier
}

// buildApp loads config and wires the shared collaborators.
func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}

	vars := make(map[string]string, len(cfg.Providers))
	for _, p := range cfg.Providers {
		vars[p.ID] = p.APIKeyEnv
	}

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		db:       gormDB,
		registry: llm.NewRegistry(),
		creds:    llm.NewEnvCredentialSource(vars),
		notifier: notifier,
	}, nil
}

// buildNotifier assembles the configured alerting sinks. With none
// configured the Noop sink keeps callers unconditional.
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	var sinks []notify.Notifier
	if cfg.Notify.Slack.BotToken != "" {
		slack, err := notify.NewSlack(notify.SlackOpts{
			BotToken: cfg.Notify.Slack.BotToken,
			Channel:  cfg.Notify.Slack.Channel,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, slack)
	}
	if cfg.Notify.Discord.BotToken != "" {
		discord, err := notify.NewDiscord(notify.DiscordOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, discord)
	}
	switch len(sinks) {
	case 0:
		return notify.Noop{}, nil
	case 1:
		return sinks[0], nil
	default:
		return notify.Multi(sinks), nil
	}
}

// newRefresher builds the catalog refresher from the app collaborators.
func (a *app) newRefresher() (*catalog.Refresher, error) {
	return catalog.NewRefresher(catalog.RefresherOpts{
		DB:          a.db,
		Registry:    a.registry,
		Creds:       a.creds,
		Notifier:    a.notifier,
		Providers:   a.cfg.Providers,
		Concurrency: a.cfg.Refresh.Concurrency,
	})
}
