package main

import (
	"context"
	"flag"
	"net/http"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ghcalsync/ghcalsync/config"
	"github.com/ghcalsync/ghcalsync/internal/calendar"
	"github.com/ghcalsync/ghcalsync/internal/db"
	"github.com/ghcalsync/ghcalsync/internal/github"
	"github.com/ghcalsync/ghcalsync/internal/server"
	syncpkg "github.com/ghcalsync/ghcalsync/internal/sync"
	"github.com/ghcalsync/ghcalsync/internal/webhook"
)

func main() {
	// Define command-line flags
	configPath := flag.String("config", "config.json", "Path to configuration file")
	createConfig := flag.Bool("init", false, "Create a default configuration file if it doesn't exist")
	syncOnce := flag.Bool("sync-once", false, "Run a full sync and exit instead of serving")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.WithField("component", "main")

	// Create default configuration if requested
	if *createConfig {
		if err := config.CreateDefaultConfig(*configPath); err != nil {
			log.WithError(err).Fatal("failed to create default configuration")
		}
		log.WithField("path", *configPath).Info("created default configuration")
		return
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	// Initialize database
	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer database.Close()

	if err := database.Initialize(); err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}

	// Initialize GitHub client
	client, err := github.NewClient(cfg.GitHubToken, cfg.Organizations, cfg.Repositories, cfg.Labels, cfg.Assignees)
	if err != nil {
		log.WithError(err).Fatal("failed to create github client")
	}

	// Initialize Google Calendar service
	calSvc, err := calendar.NewService(calendar.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURI:  cfg.GoogleRedirectURI,
		CalendarID:   cfg.CalendarID,
		TokensDir:    cfg.TokensDir,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to create calendar service")
	}

	syncer := syncpkg.New(client, client, calSvc, database)
	gateway := webhook.NewGateway(cfg.WebhookSecret)
	srv := server.New(syncer, gateway, calSvc, client, database)

	if *syncOnce {
		issues, projects := syncer.SyncAll(context.Background())
		log.WithFields(logrus.Fields{
			"issues":   issues.Status,
			"projects": projects.Status,
		}).Info("sync completed")
		return
	}

	// Scheduled background sync
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SyncSchedule, func() {
		log.Info("running scheduled sync")
		issues, projects := syncer.SyncAll(context.Background())
		log.WithFields(logrus.Fields{
			"issues":   issues.Status,
			"projects": projects.Status,
		}).Info("scheduled sync completed")
	}); err != nil {
		log.WithError(err).Fatal("invalid sync schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.WithFields(logrus.Fields{
		"addr":     cfg.ListenAddr,
		"schedule": cfg.SyncSchedule,
	}).Info("starting server")
	if err := http.ListenAndServe(cfg.ListenAddr, srv); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
