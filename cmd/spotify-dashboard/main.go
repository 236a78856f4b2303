// Command spotify-dashboard runs the Spotify now-playing dashboard backend.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/justestif/go-spotify-dashboard/internal/auth"
	"github.com/justestif/go-spotify-dashboard/internal/config"
	"github.com/justestif/go-spotify-dashboard/internal/db"
	"github.com/justestif/go-spotify-dashboard/internal/logging"
	"github.com/justestif/go-spotify-dashboard/internal/lyrics"
	"github.com/justestif/go-spotify-dashboard/internal/playback"
	"github.com/justestif/go-spotify-dashboard/internal/spotify"
	"github.com/justestif/go-spotify-dashboard/internal/web"
)

func main() {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "Path to a .env file loaded before reading the environment",
			Value: ".env",
		},
		&cli.StringFlag{
			Name:  "addr",
			Usage: "Listen address (overrides PORT)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error (overrides LOG_LEVEL)",
		},
	}

	app := &cli.Command{
		Name:   "spotify-dashboard",
		Usage:  "Serve the Spotify now-playing dashboard backend",
		Flags:  flags,
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP and websocket server",
				Flags:  flags,
				Action: serve,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	if err := config.LoadEnvFile(cmd.String("env-file")); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	addr := cfg.Addr()
	if a := cmd.String("addr"); a != "" {
		addr = a
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	authenticator, err := auth.New(auth.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
	})
	if err != nil {
		return err
	}

	tokens := auth.NewTokenManager(store, authenticator,
		auth.WithLogger(logger.With("component", "tokens")))
	defer tokens.Close()

	restored, err := tokens.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restoring sessions: %w", err)
	}

	syncServer := playback.NewSyncServer(tokens,
		func(token string) playback.Fetcher { return spotify.NewForToken(token) },
		playback.WithPollInterval(cfg.PollInterval),
		playback.WithEmitInterval(cfg.EmitInterval),
		playback.WithLogger(logger.With("component", "playback")),
	)

	resolver := lyrics.NewService(
		lyrics.NewGeniusClient(cfg.GeniusToken),
		lyrics.NewHTTPFetcher(nil),
		lyrics.WithLogger(logger.With("component", "lyrics")),
	)

	server, err := web.NewServer(web.ServerConfig{
		Addr:        addr,
		FrontendURI: cfg.FrontendURI,
		Auth:        authenticator,
		Tokens:      tokens,
		Sync:        syncServer,
		Lyrics:      resolver,
		NewClient:   func(token string) web.DashboardFetcher { return spotify.NewForToken(token) },
		Logger:      logger.With("component", "web"),
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	logStartup(logger, cfg, addr, restored)
	return server.Run()
}

// openStore opens PostgreSQL when DATABASE_URL is set and the SQLite file
// otherwise.
func openStore(ctx context.Context, cfg *config.Config) (db.SessionStore, func(), error) {
	if cfg.DatabaseURL != "" {
		pg, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres: %w", err)
		}
		return pg.Sessions(), func() { pg.Close() }, nil
	}

	lite, err := db.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", cfg.DatabasePath, err)
	}
	return lite.Sessions(), func() { lite.Close() }, nil
}

func logStartup(logger *log.Logger, cfg *config.Config, addr string, restored int) {
	database := cfg.DatabasePath
	if cfg.DatabaseURL != "" {
		database = "postgres"
	}
	logger.Info("server starting", "addr", addr)
	logger.Info("spotify redirect", "uri", cfg.RedirectURI)
	logger.Info("frontend", "uri", cfg.FrontendURI)
	logger.Info("database", "store", database, "restored", restored)
}
