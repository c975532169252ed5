// FleetDesk client
//
// This is the main entry point for the FleetDesk client. It restores the
// signed-in session, keeps a local device cache in sync with the fleet
// server's realtime channel, and optionally serves the local console and
// relays updates to MQTT and InfluxDB.
//
// Usage:
//
//	fleetdesk [--config configs/fleetdesk.yaml] [--username alice]
//
// The password for --username is read from FLEETDESK_PASSWORD.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/fleetdesk/fleetdesk-client/internal/console"
	"github.com/fleetdesk/fleetdesk-client/internal/device"
	"github.com/fleetdesk/fleetdesk-client/internal/fleetapi"
	"github.com/fleetdesk/fleetdesk-client/internal/infrastructure/config"
	"github.com/fleetdesk/fleetdesk-client/internal/infrastructure/database"
	"github.com/fleetdesk/fleetdesk-client/internal/infrastructure/influxdb"
	"github.com/fleetdesk/fleetdesk-client/internal/infrastructure/logging"
	"github.com/fleetdesk/fleetdesk-client/internal/infrastructure/mqtt"
	"github.com/fleetdesk/fleetdesk-client/internal/kvstore"
	"github.com/fleetdesk/fleetdesk-client/internal/listener"
	"github.com/fleetdesk/fleetdesk-client/internal/realtime"
	"github.com/fleetdesk/fleetdesk-client/internal/relay"
	"github.com/fleetdesk/fleetdesk-client/internal/session"
	"github.com/fleetdesk/fleetdesk-client/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/fleetdesk.yaml"

// passwordEnv holds the password for --username.
const passwordEnv = "FLEETDESK_PASSWORD"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the parsed command-line flags.
type options struct {
	configPath     string
	configExplicit bool
	username       string
	showVersion    bool
}

// parseFlags parses args (without the program name).
func parseFlags(args []string) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("fleetdesk", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to the YAML configuration file")
	flagSet.StringVarP(&opts.username, "username", "u", "", "sign in as this user at startup (password from "+passwordEnv+")")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	opts.configExplicit = flagSet.Changed("config")
	return opts, nil
}

// loadConfig loads the configured file. The default path is optional:
// when it does not exist the built-in defaults and env overrides are used.
func loadConfig(opts options) (*config.Config, string, error) {
	path := opts.configPath
	if !opts.configExplicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - stdout: Destination for --version output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error { //nolint:gocognit,gocyclo // Composition root: linear wiring of optional components
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parsing flags: %w", err)
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "fleetdesk %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting FleetDesk client",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, configPath, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	// Durable client state
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Storage.Path,
		WALMode:     cfg.Storage.WALMode,
		BusyTimeout: cfg.Storage.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	// Session
	sess := session.New(kvstore.NewSQLite(db.DB))
	sess.SetLogger(log.With("component", "session"))
	sess.Restore(ctx)

	// Device cache and event fan-out
	cache := device.NewCache()
	cache.SetLogger(log.With("component", "device"))

	registry := listener.NewRegistry()
	registry.SetLogger(log.With("component", "listener"))

	// The channel and the console hub are created after the API client,
	// whose 401 hook closes them.
	var (
		channel *realtime.Manager
		hub     *console.Hub
	)

	api, err := fleetapi.New(fleetapi.Options{
		BaseURL:   cfg.APIBaseURL(),
		APIPrefix: cfg.API.Prefix,
		Timeout:   cfg.GetAPITimeout(),
		Session:   sess,
		OnUnauthorized: func() {
			log.Warn("session rejected by server, signed out")
			if channel != nil {
				channel.Disconnect()
			}
			if hub != nil {
				hub.DropClients()
			}
		},
		Logger: log.With("component", "fleetapi"),
	})
	if err != nil {
		return fmt.Errorf("creating API client: %w", err)
	}

	syncer := device.NewSyncer(cache, api)
	syncer.SetLogger(log.With("component", "sync"))
	registry.Subscribe(syncer)

	// MQTT relay (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log.With("component", "mqtt"))
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()

		mqttRelay := relay.NewMQTTPublisher(mqttClient, mqttClient.Topics())
		mqttRelay.SetLogger(log.With("component", "relay"))
		registry.Subscribe(mqttRelay)
		log.Info("MQTT relay enabled",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"topic", mqttClient.Topics().AllDeviceUpdates(),
		)
	} else {
		log.Info("MQTT relay disabled")
	}

	// InfluxDB stats export (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		exporter := relay.NewStatsExporter(influxClient, cfg.APIBaseURL())
		cache.OnStatsReplaced(exporter.Export)
		log.Info("InfluxDB stats export enabled",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB stats export disabled")
	}

	// Realtime channel
	channel, err = realtime.New(realtime.Options{
		BaseURL:        cfg.RealtimeBaseURL(),
		Path:           cfg.Realtime.Path,
		ReconnectDelay: cfg.GetReconnectDelay(),
		DialTimeout:    cfg.GetDialTimeout(),
		Session:        sess,
		Notifier:       registry,
		Logger:         log.With("component", "realtime"),
	})
	if err != nil {
		return fmt.Errorf("creating realtime channel: %w", err)
	}
	defer func() {
		log.Info("closing realtime channel")
		channel.Close() //nolint:errcheck // Close always returns nil
	}()

	// Console (optional)
	if cfg.Console.Enabled {
		hub = console.NewHub(cfg.WebSocket, log.With("component", "console"))
		go hub.Run(ctx)
		registry.Subscribe(hub)
		cache.OnStatsReplaced(hub.BroadcastStats)

		srv, srvErr := console.New(console.Deps{
			Config:       cfg.Console,
			WS:           cfg.WebSocket,
			Logger:       log.With("component", "console"),
			Session:      sess,
			Cache:        cache,
			API:          api,
			Syncer:       syncer,
			Channel:      channel,
			Hub:          hub,
			TerminalBase: cfg.RealtimeBaseURL(),
			Version:      version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating console: %w", srvErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting console: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing console", "error", closeErr)
			}
		}()
	}

	// Sign in from the command line when asked to
	if opts.username != "" {
		if loginErr := signIn(ctx, api, sess, opts.username, os.Getenv(passwordEnv)); loginErr != nil {
			return loginErr
		}
		log.Info("signed in", "username", opts.username)
	}

	if sess.IsAuthenticated() {
		startSession(ctx, log, sess, syncer, channel)
	} else {
		log.Info("no stored session; sign in through the console or with --username")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: realtime channel,
	// console, InfluxDB, MQTT, database. The session stays stored.

	log.Info("FleetDesk client stopped")
	return nil
}

// signIn performs the login sequence: token, then profile, then store.
func signIn(ctx context.Context, api *fleetapi.Client, sess *session.Store, username, password string) error {
	if password == "" {
		return fmt.Errorf("--username requires %s to be set", passwordEnv)
	}

	tok, err := api.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("signing in: %w", err)
	}
	user, err := api.Me(ctx, tok.AccessToken)
	if err != nil {
		return fmt.Errorf("fetching profile: %w", err)
	}
	if err := sess.SetSession(ctx, tok.AccessToken, user); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// startSession loads the device cache and opens the realtime channel.
// Neither failure is fatal: a rejected token signs the user out, and a
// failed dial is retried by the channel.
func startSession(ctx context.Context, log *logging.Logger, sess *session.Store, syncer *device.Syncer, channel *realtime.Manager) {
	if exp := sess.TokenExpiry(); exp.Known {
		log.Info("session restored", "token", logging.Redact(sess.Token()), "expires_at", exp.At)
	}

	if err := syncer.Refresh(ctx); err != nil {
		log.Warn("initial device refresh failed", "error", err)
	}
	if !sess.IsAuthenticated() {
		return
	}
	if err := channel.Connect(ctx); err != nil {
		log.Warn("realtime channel not connected", "error", err)
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
