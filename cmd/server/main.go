// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/encore/internal/api/connect"
	"github.com/osa030/encore/internal/app/autoplay"
	"github.com/osa030/encore/internal/app/catalog"
	"github.com/osa030/encore/internal/app/filter"
	"github.com/osa030/encore/internal/app/matcher"
	"github.com/osa030/encore/internal/app/notification"
	"github.com/osa030/encore/internal/app/playback"
	"github.com/osa030/encore/internal/app/session"
	"github.com/osa030/encore/internal/domain/track"
	"github.com/osa030/encore/internal/infra/config"
	"github.com/osa030/encore/internal/infra/logger"
	"github.com/osa030/encore/internal/infra/metadata"
	"github.com/osa030/encore/internal/infra/spotify"
	"github.com/osa030/encore/internal/infra/voice"
	"github.com/osa030/encore/internal/infra/youtube"
	"github.com/osa030/encore/internal/infra/ytdlp"
	"github.com/osa030/encore/internal/infra/ytmusic"
)

var (
	app        = kingpin.New("encore-server", "encore playback server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		// The config is optional here; without it no filter is shown as enabled.
		cfg, _ := config.Load(*configPath)
		printFilters(cfg)
		return
	}

	loggerConfig := logger.Config{Level: "info", File: *logfile}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		logCloser.Close()
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	svc, err := newService(ctx, cfg)
	if err != nil {
		return err
	}

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(newHandler(cfg, svc), &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		svc.Close()
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Leave every guild first so Watch streams end before the listener closes.
	svc.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// newHandler mounts the playback RPC service behind the admin token check.
func newHandler(cfg *config.Config, svc *session.Service) http.Handler {
	mux := http.NewServeMux()
	path, handler := apiconnect.NewPlaybackServiceHandler(
		apiconnect.NewPlaybackService(svc),
		connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg.Admin.Token)),
	)
	mux.Handle(path, handler)
	return mux
}

// newService wires the catalog, matcher, filters and voice layer into a
// playback service.
func newService(ctx context.Context, cfg *config.Config) (*session.Service, error) {
	extractor := ytdlp.New(ytdlp.Config{
		Mode:            ytdlp.Mode(cfg.Extractor.Mode),
		TempDir:         cfg.Extractor.TempDir,
		Format:          cfg.Extractor.Format,
		Proxy:           cfg.Extractor.Proxy,
		MetadataTimeout: time.Duration(cfg.Extractor.MetadataTimeoutSec) * time.Second,
		StreamTimeout:   time.Duration(cfg.Extractor.StreamTimeoutSec) * time.Second,
	})

	clients := catalog.Clients{
		Extractor:    extractor,
		YouTube:      youtube.New(),
		YouTubeMusic: ytmusic.New(),
	}
	var playlists autoplay.PlaylistClient
	if cfg.HasSpotifyCredentials() {
		spotifyClient, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Spotify client")
		}
		clients.Spotify = spotifyClient
		playlists = spotifyClient
	} else {
		zlog.Info().Msg("Spotify credentials not configured, Spotify search is disabled")
	}

	agg, err := catalog.NewAggregatorFromConfig(cfg, clients)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create catalog")
	}

	providers := agg.Providers()
	searchers := make([]matcher.Searcher, 0, len(providers))
	for _, p := range providers {
		searchers = append(searchers, p)
	}
	priority := make([]track.Source, 0, len(cfg.Matcher.Priority))
	for _, s := range cfg.Matcher.Priority {
		priority = append(priority, track.ParseSource(s))
	}
	m := matcher.New(matcher.Config{
		CandidateLimit: cfg.Matcher.CandidateLimit,
		MinScore:       cfg.Matcher.MinScore,
		Priority:       priority,
		Timeout:        time.Duration(cfg.Matcher.TimeoutSec) * time.Second,
	}, []matcher.TitleExtractor{
		metadata.NewDeezer(),
		metadata.NewITunes(),
		metadata.NewOpenGraph(),
	}, searchers)

	chain, err := filter.NewChainFromConfig(cfg.Filters)
	if err != nil {
		return nil, errors.Wrap(err, "invalid filter config")
	}
	for _, f := range chain.Filters() {
		zlog.Info().Msgf("Filter enabled: %s", f.Name())
	}

	providerChain, err := autoplay.NewProviderChainFromConfig(cfg.Autoplay, agg, playlists)
	if err != nil {
		return nil, errors.Wrap(err, "invalid autoplay config")
	}
	autoplayer := autoplay.New(autoplay.Config{
		SeedCount:      cfg.Autoplay.SeedCount,
		CandidateCount: cfg.Autoplay.CandidateCount,
	}, providerChain, agg)

	simulator := voice.NewSimulator(voice.Config{
		TrackLength: time.Duration(cfg.Playback.SimulatedTrackSec) * time.Second,
	})

	return session.NewService(session.Config{
		Playback: playback.Config{
			IdleTimeout:   cfg.IdleTimeout(),
			DefaultVolume: cfg.Playback.DefaultVolume,
			EventBuffer:   cfg.Playback.EventBuffer,
			Autoplay:      cfg.Autoplay.Enabled,
		},
		SearchLimit:     cfg.Catalog.SearchLimit,
		AutoplayTimeout: cfg.AutoplayTimeout(),
	}, session.Deps{
		Catalog:   agg,
		Matcher:   m,
		Connector: simulator,
		Filters:   chain,
		Notifier:  notification.NewManager(),
		Autoplay:  autoplayer,
		Scope:     ytdlp.WithScope,
		Cleanup:   extractor.CleanupScope,
	}), nil
}

// printFilters prints available filters.
func printFilters(cfg *config.Config) {
	fmt.Println("Available Filters:")
	registered := filter.GetRegistered()
	for _, name := range slices.Sorted(maps.Keys(registered)) {
		f := registered[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		status := ""
		if cfg != nil && cfg.IsFilterEnabled(name) {
			status = " (enabled)"
		}
		fmt.Printf("  %-30s - %s [codes: %s]%s\n", f.Name(), f.Description(), codes, status)
	}
}
