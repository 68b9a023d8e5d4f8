// arenaq - matchmaking ticket service
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ernie/arena-queue/internal/api"
	"github.com/ernie/arena-queue/internal/auth"
	"github.com/ernie/arena-queue/internal/config"
	"github.com/ernie/arena-queue/internal/enforcement"
	"github.com/ernie/arena-queue/internal/matchmaking"
	"github.com/ernie/arena-queue/internal/notify"
	"github.com/ernie/arena-queue/internal/reaper"
	"github.com/ernie/arena-queue/internal/storage"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

var version = "dev"

const defaultConfigPath = "/etc/arenaq/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "token":
		cmdToken(os.Args[2:])
	case "queue":
		cmdQueue(os.Args[2:])
	case "sweep":
		cmdSweep(os.Args[2:])
	case "version":
		fmt.Printf("arenaq %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: arenaq <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                               Start the matchmaking server")
	fmt.Println("  token [--admin] <player-id>         Issue a player token")
	fmt.Println("  queue status <player-id>            Show a player's ticket")
	fmt.Println("  queue join [--mode M] [--tier N] <player-id>")
	fmt.Println("                                      Queue a player")
	fmt.Println("  queue leave <player-id>             Cancel a player's ticket")
	fmt.Println("  sweep                               Expire stale tickets now")
	fmt.Println("  version                             Show version")
	fmt.Println("  help                                Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/arenaq/config.yml)")
	fmt.Println("  --url <url>        Base URL of the arenaq server (default: derived from config)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  arenaq serve --config /etc/arenaq/config.yml")
	fmt.Println("  arenaq queue join --mode ctf --tier 3 player-42")
	fmt.Println("  arenaq token --admin ops")
}

// newLogger builds the process logger from the log section
func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
		logger.Warnf("Unknown log level %q, using info", cfg.Level)
	}
	logger.SetLevel(level)
	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func engineSettings(cfg *config.Config) matchmaking.Settings {
	return matchmaking.Settings{
		TicketTTL:     cfg.Matchmaking.TicketTTL,
		DefaultMode:   cfg.Matchmaking.DefaultMode,
		MatchAttempts: cfg.Matchmaking.MatchAttempts,
		PartyMaxSize:  cfg.Matchmaking.PartyMaxSize,
	}
}

// newGate picks the moderation source. Without a redis address the static
// lists from the config file apply.
func newGate(cfg config.EnforcementConfig, log *logrus.Entry) (matchmaking.EnforcementGate, func()) {
	if cfg.RedisAddr == "" {
		log.Info("Using static enforcement lists")
		return enforcement.NewStaticGate(enforcement.StaticLists{
			Banned:     cfg.Banned,
			TierLocked: cfg.TierLocked,
			Practice:   cfg.Practice,
			Shadow:     cfg.Shadow,
		}), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Entry is denied until redis answers
		log.WithError(err).Warnf("Moderation store at %s unreachable", cfg.RedisAddr)
	} else {
		log.Infof("Reading moderation records from redis at %s", cfg.RedisAddr)
	}
	return enforcement.NewRedisGate(rdb, cfg.KeyPrefix), func() { rdb.Close() }
}

// cmdServe starts the matchmaking server
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := newLogger(cfg.Log)
	log := logrus.NewEntry(logger)

	log.Infof("arenaq %s starting...", version)

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()
	log.Infof("Database initialized at %s", cfg.Database.Path)

	gate, closeGate := newGate(cfg.Enforcement, log)
	defer closeGate()

	// Notifier fan-out: websocket hub first, then the event bus and stream
	hub := api.NewWebSocketHub(log)
	notifiers := matchmaking.Multi{hub}

	var embedded *server.Server
	natsURL := cfg.Notify.NATSURL
	if cfg.Notify.EmbeddedNATS {
		embedded, err = notify.StartEmbeddedNATS(cfg.Notify.EmbeddedHost, cfg.Notify.EmbeddedPort)
		if err != nil {
			log.WithError(err).Fatal("Failed to start embedded NATS")
		}
		natsURL = embedded.ClientURL()
		log.Infof("Embedded NATS listening on %s", natsURL)
	}
	var natsConn *nats.Conn
	if natsURL != "" {
		natsConn, err = notify.Connect(natsURL, "arenaq")
		if err != nil {
			log.WithError(err).Fatalf("Failed to connect to NATS at %s", natsURL)
		}
		notifiers = append(notifiers, notify.NewNATSNotifier(natsConn, cfg.Notify.SubjectPrefix, log))
	}
	var kafkaNotifier *notify.KafkaNotifier
	if len(cfg.Notify.KafkaBrokers) > 0 {
		kafkaNotifier = notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic), log)
		notifiers = append(notifiers, kafkaNotifier)
		log.Infof("Publishing match events to kafka topic %s", cfg.Notify.KafkaTopic)
	}
	async := matchmaking.NewAsync(notifiers, cfg.Matchmaking.NotifyBuffer, log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := matchmaking.NewMetrics(registry)

	opts := []matchmaking.Option{
		matchmaking.WithSettings(engineSettings(cfg)),
		matchmaking.WithMetrics(metrics),
		matchmaking.WithLogger(log),
	}
	engine := matchmaking.NewEngine(store, gate, async, opts...)
	parties := matchmaking.NewPartyEngine(store, gate, async, opts...)

	sweeper, err := reaper.New(cfg.Matchmaking.SweepInterval, map[string]reaper.Sweeper{
		"tickets":       engine,
		"party_tickets": parties,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to schedule ticket sweep")
	}
	sweeper.Start()
	log.Infof("Sweeping expired tickets every %v", cfg.Matchmaking.SweepInterval)

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)

	router := api.NewRouter(api.Services{
		Engine:  engine,
		Parties: parties,
		Store:   store,
		Auth:    authService,
		Hub:     hub,
		Metrics: registry,
	}, cfg.Server.AllowedOrigins, log)
	router.StartWebSocketHub()

	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Infof("Received signal %v, shutting down...", sig)
	case err := <-serverErr:
		log.WithError(err).Fatal("HTTP server error")
	}

	// Sequential shutdown: stop taking requests, then drain events
	log.Info("Shutting down HTTP server...")
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown error")
	}

	log.Info("Stopping ticket sweep...")
	if err := sweeper.Stop(); err != nil {
		log.WithError(err).Warn("Sweep shutdown error")
	}

	log.Info("Draining notifications...")
	async.Close()
	hub.Stop()
	if kafkaNotifier != nil {
		if err := kafkaNotifier.Close(); err != nil {
			log.WithError(err).Warn("Kafka writer close error")
		}
	}
	if natsConn != nil {
		natsConn.Drain()
	}
	if embedded != nil {
		embedded.Shutdown()
	}

	log.Info("Shutdown complete")
}

// cmdSweep expires stale tickets once, directly against the database
func cmdSweep(args []string) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	log := logrus.NewEntry(newLogger(cfg.Log))

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	opts := []matchmaking.Option{matchmaking.WithSettings(engineSettings(cfg)), matchmaking.WithLogger(log)}
	r, err := reaper.New(cfg.Matchmaking.SweepInterval, map[string]reaper.Sweeper{
		"tickets":       matchmaking.NewEngine(store, nil, nil, opts...),
		"party_tickets": matchmaking.NewPartyEngine(store, nil, nil, opts...),
	}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer r.Stop()
	n := r.Sweep(context.Background())
	fmt.Printf("Expired %d tickets\n", n)
}
