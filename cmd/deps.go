package cmd

import (
	"example.com/backstage/services/procurement/config"
	"example.com/backstage/services/procurement/internal/cache"
	"example.com/backstage/services/procurement/internal/messaging"
	"example.com/backstage/services/procurement/internal/metrics"
	"example.com/backstage/services/procurement/internal/repositories"
	"example.com/backstage/services/procurement/internal/search"
	"example.com/backstage/services/procurement/internal/services"
	"example.com/backstage/services/procurement/internal/tracing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// components are the collaborators shared by the api and worker commands
type components struct {
	service   *services.ProcurementService
	cache     *cache.RedisCache
	tracer    tracing.Tracer
	publisher messaging.Publisher
	metrics   *metrics.Metrics

	orders      *repositories.OrderRepository
	expenses    *repositories.ExpenseRepository
	companies   *repositories.CompanyRepository
	transitions *repositories.TransitionRepository
}

// close releases the outbound connections
func (c *components) close() {
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close event publisher")
		}
	}
	if err := c.cache.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close Redis cache")
	}
	c.tracer.Close()
}

// buildComponents connects every backing service the config enables. Only the
// database is mandatory; the rest degrade to disabled implementations.
func buildComponents(cfg config.Config, opts ...services.Option) (*components, error) {
	m := metrics.NewMetrics()

	db, readOnlyDB, err := initDatabases(cfg.DB, m)
	if err != nil {
		return nil, err
	}

	c := &components{
		metrics:     m,
		orders:      repositories.NewOrderRepository(db, readOnlyDB),
		expenses:    repositories.NewExpenseRepository(db, readOnlyDB),
		companies:   repositories.NewCompanyRepository(db, readOnlyDB),
		transitions: repositories.NewTransitionRepository(db, readOnlyDB),
	}

	c.cache, err = cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		c.cache = cache.Disabled()
	}
	m.SetHealth("redis", err == nil)

	c.tracer, err = tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		c.tracer = tracing.Disabled()
	}

	options := []services.Option{
		services.WithCache(c.cache),
		services.WithMetrics(m),
		services.WithTracer(c.tracer),
	}

	if cfg.Azure.QueueConnStr != "" {
		publisher, err := messaging.NewServiceBusPublisher(cfg.Azure, "procurement-service")
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize event publisher, transitions will not be published")
		} else {
			c.publisher = publisher
			options = append(options, services.WithPublisher(publisher))
		}
	}

	if cfg.Elastic.Enabled {
		elasticClient, err := search.NewElasticClient(cfg.Elastic)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without snapshot indexing")
		} else {
			options = append(options, services.WithIndexer(elasticClient))
		}
		m.SetHealth("elasticsearch", err == nil)
	}

	c.service = services.NewProcurementService(c.orders, c.expenses, c.companies, c.transitions, append(options, opts...)...)
	return c, nil
}

// initDatabases opens the primary and, when configured, the read replica
func initDatabases(cfg config.DatabaseConfig, m *metrics.Metrics) (*gorm.DB, *gorm.DB, error) {
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	db, err := gorm.Open(postgres.Open(cfg.DSN), gormConfig)
	if err != nil {
		m.SetHealth("database", false)
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying write DB connection")
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	m.SetHealth("database", true)

	if cfg.ReadOnlyDSN == "" {
		return db, nil, nil
	}

	readOnlyDB, err := gorm.Open(postgres.Open(cfg.ReadOnlyDSN), gormConfig)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}

	// Reads outnumber writes, so the replica gets the larger pool
	readSqlDB, err := readOnlyDB.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying read-only DB connection")
	}
	readSqlDB.SetMaxIdleConns(cfg.MaxIdleConns * 2)
	readSqlDB.SetMaxOpenConns(cfg.MaxOpenConns * 2)
	readSqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, readOnlyDB, nil
}
