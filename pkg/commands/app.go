package commands

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/generation"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/datasets"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/generator"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/loader"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/rawstore"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/writer"
)

// app holds the process components built from a Config.
type app struct {
	cfg       *config.Config
	logger    ectologger.Logger
	registry  *datasets.Registry
	raw       *rawstore.Store
	generator *generator.Generator
	catalog   *generation.Repository
	db        *database.DatabaseInstance
	redis     *redis.Client
	producer  *kafka.Producer
	health    *health.Checker
	startup   *startup.Startup
	tracing   func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.New(logging.Config{
		AppName:    cfg.AppName,
		Level:      cfg.LogLevel,
		PrettyLogs: cfg.PrettyLogs,
	})
	if err != nil {
		return nil, err
	}

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: cfg.AppName,
		Endpoint:    cfg.TracingEndpoint,
		Protocol:    cfg.TracingProtocol,
		Insecure:    cfg.TracingInsecure,
		Timeout:     cfg.TracingTimeout,
	})
	if err != nil {
		return nil, err
	}

	registry := datasets.NewRegistry()
	if err := datasets.LoadBuiltin(registry); err != nil {
		return nil, err
	}
	if cfg.DatasetsFolder != "" {
		if err := datasets.LoadDir(registry, cfg.DatasetsFolder); err != nil {
			return nil, err
		}
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		raw: rawstore.NewStore(cfg.RawFolder, rawstore.NewImporter(rawstore.ImporterConfig{
			SourceFolder: cfg.RawSourceFolder,
		}, logger), logger),
		health:  health.NewChecker(cfg.MicrodataFolder, cfg.AppName),
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		tracing: shutdownTracing,
	}
	a.addDependencies()

	if err := a.startup.Start(ctx); err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	a.generator = generator.NewGenerator(a.generatorDependencies())
	return a, nil
}

func (a *app) addDependencies() {
	cfg := a.cfg

	if cfg.CatalogEnabled {
		a.startup.AddDependency(startup.Dependency{
			Name: "catalog",
			StartFunc: func(ctx context.Context) error {
				if cfg.CatalogDriver == database.DriverSQLite {
					if err := os.MkdirAll(filepath.Dir(cfg.CatalogPath), 0o755); err != nil {
						return err
					}
				}
				db, err := database.Open(ctx, database.Config{
					Driver:          cfg.CatalogDriver,
					Path:            cfg.CatalogPath,
					Host:            cfg.DatabaseHost,
					Port:            cfg.DatabasePort,
					UserName:        cfg.DatabaseUserName,
					Password:        cfg.DatabasePassword,
					Name:            cfg.DatabaseName,
					SSLMode:         cfg.DatabaseSSLMode,
					MaxOpenConns:    cfg.DatabaseMaxOpenConns,
					MaxIdleConns:    cfg.DatabaseMaxIdleConns,
					ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
				}, a.logger)
				if err != nil {
					return err
				}

				migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
					Version:      uint(cfg.DatabaseMigrationVersion),
					Force:        cfg.DatabaseMigrationForce,
					AutoRollback: cfg.DatabaseMigrationAutoRollback,
				})
				if err := migrations.Migrate(db.DB); err != nil {
					_ = db.Close()
					return err
				}

				a.db = db
				a.catalog = generation.NewRepository(db, a.logger)
				a.health.AddCheck("catalog", db)
				return nil
			},
			StopFunc: func(context.Context) error {
				return a.db.Close()
			},
		})
	}

	if cfg.RedisEnabled {
		a.startup.AddDependency(startup.Dependency{
			Name: "redis",
			StartFunc: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, a.logger)
				if err != nil {
					return err
				}
				a.redis = client
				a.health.AddCheck("redis", health.PingFunc(client.Ping))
				return nil
			},
			StopFunc: func(context.Context) error {
				return a.redis.Close()
			},
		})
	}

	if cfg.KafkaEnabled {
		a.startup.AddDependency(startup.Dependency{
			Name: "kafka",
			StartFunc: func(context.Context) error {
				a.producer = kafka.NewProducer(kafka.Config{
					Brokers:      kafka.ParseBrokers(cfg.KafkaBrokers),
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, a.logger)
				return nil
			},
			StopFunc: func(context.Context) error {
				return a.producer.Close()
			},
		})
	}
}

func (a *app) generatorDependencies() generator.Dependencies {
	deps := generator.Dependencies{
		Registry:   a.registry,
		Loader:     loader.NewLoader(loader.FromStore(a.raw), a.logger),
		Reconciler: reconcile.NewReconciler(a.logger),
		Writer:     writer.NewWriter(writer.NewStorage(a.cfg.MicrodataFolder), a.logger),
		Logger:     a.logger,
	}
	if a.catalog != nil {
		deps.Catalog = a.catalog
	}
	if a.redis != nil {
		deps.Locker = generator.NewRedisLocker(redis.NewLocker(a.redis, ""), a.cfg.LockTTL, a.cfg.LockWait, a.logger)
	}
	if a.producer != nil {
		deps.Emitter = events.NewEmitter(a.producer, a.logger)
	}
	return deps
}

func (a *app) close(ctx context.Context) error {
	err := a.startup.Stop(ctx)
	if a.tracing != nil {
		if tracingErr := a.tracing(ctx); tracingErr != nil && err == nil {
			err = tracingErr
		}
	}
	return err
}
