package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"hemolink/internal/matching/coordinator"
	"hemolink/internal/matching/eligibility"
	"hemolink/internal/matching/engine"
	"hemolink/internal/matching/events"
	"hemolink/internal/matching/geo"
	"hemolink/internal/matching/ingest"
	matchingmetrics "hemolink/internal/matching/metrics"
	"hemolink/internal/matching/models"
	"hemolink/internal/matching/notify"
	"hemolink/internal/matching/ports"
	"hemolink/internal/matching/scoring"
	donorstore "hemolink/internal/matching/store/donor"
	locationstore "hemolink/internal/matching/store/location"
	requeststore "hemolink/internal/matching/store/request"
	"hemolink/internal/platform/config"
	"hemolink/internal/platform/httpserver"
	"hemolink/internal/platform/kafka"
	"hemolink/internal/platform/postgres"
	platformredis "hemolink/internal/platform/redis"
	audit "hemolink/pkg/platform/audit"
	"hemolink/pkg/platform/audit/publisher"
	auditmemory "hemolink/pkg/platform/audit/store/memory"
	auditpostgres "hemolink/pkg/platform/audit/store/postgres"
)

const (
	auditBuffer     = 1024
	bootstrapWindow = 30 * time.Second
)

// infra holds the optional backing services. Each is nil when not configured.
type infra struct {
	db    *sql.DB
	redis *platformredis.Client
	kafka *kgo.Client
	log   *slog.Logger
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{log: log}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	in.db = db

	rdb, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		in.Close()
		return nil, err
	}
	in.redis = rdb

	if cfg.Kafka.Enabled() {
		cl, err := kafka.NewClient(cfg.Kafka)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.kafka = cl
		if cfg.Kafka.BootstrapTopics {
			bctx, cancel := context.WithTimeout(ctx, bootstrapWindow)
			err := kafka.EnsureTopics(bctx, cl, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor, kafka.AllTopics()...)
			cancel()
			if err != nil {
				in.Close()
				return nil, err
			}
		}
	}

	log.Info("infrastructure ready",
		"postgres", in.db != nil,
		"redis", in.redis != nil,
		"kafka", in.kafka != nil,
	)
	return in, nil
}

func (in *infra) HealthChecks() map[string]httpserver.HealthCheck {
	checks := map[string]httpserver.HealthCheck{}
	if in.db != nil {
		checks["postgres"] = in.db.PingContext
	}
	if in.redis != nil {
		checks["redis"] = in.redis.Health
	}
	if in.kafka != nil {
		checks["kafka"] = in.kafka.Ping
	}
	return checks
}

func (in *infra) Close() {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			in.log.Warn("close redis", "error", err)
		}
	}
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			in.log.Warn("close postgres", "error", err)
		}
	}
}

// app is the matching core plus the sinks that must drain on shutdown.
type app struct {
	coordinator   *coordinator.Coordinator
	ingestRouter  *ingest.Router
	storeReporter *events.StoreReporter
	kafkaReporter *events.KafkaReporter
	audit         *publisher.Publisher
}

func buildApp(ctx context.Context, cfg config.Config, in *infra, log *slog.Logger) (*app, error) {
	m := matchingmetrics.New()

	var (
		locations  ports.LocationStore = locationstore.NewInMemory()
		donors     ports.DonorStore    = donorstore.NewInMemory()
		requests   ports.RequestStore  = requeststore.NewInMemory()
		auditStore audit.Store         = auditmemory.NewInMemoryStore()
	)
	if in.redis != nil {
		locations = locationstore.NewRedis(in.redis.Client)
	}
	if in.db != nil {
		donors = donorstore.NewPostgres(in.db)
		requests = requeststore.NewPostgres(in.db)
		auditStore = auditpostgres.New(in.db)
	}

	indexOpts := []geo.Option{geo.WithLogger(log), geo.WithMetrics(m), geo.WithCellDegrees(cfg.Matching.CellDegrees)}
	if cfg.Matching.StalenessThreshold > 0 {
		indexOpts = append(indexOpts, geo.WithStaleness(cfg.Matching.StalenessThreshold))
	}
	index := geo.NewIndex(indexOpts...)
	projector := geo.NewProjector(locations, index, log)
	n, err := projector.Rebuild(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebuild geo index: %w", err)
	}
	log.Info("geo index rebuilt", "donors", n)

	var filterOpts []eligibility.Option
	if cfg.Matching.MinimumDonationInterval > 0 {
		filterOpts = append(filterOpts, eligibility.WithMinimumInterval(cfg.Matching.MinimumDonationInterval))
	}
	filter := eligibility.New(filterOpts...)

	scorer, err := scoring.New(scoringConfig(cfg.Matching))
	if err != nil {
		return nil, fmt.Errorf("scorer: %w", err)
	}
	policies, err := enginePolicies(cfg.Matching)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(index, donors, filter, scorer,
		engine.WithPolicies(policies),
		engine.WithMaxCandidates(cfg.Matching.MaxCandidates),
		engine.WithLogger(log),
		engine.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	dispatcher, err := newDispatcher(in, log, m)
	if err != nil {
		return nil, err
	}

	a := &app{
		storeReporter: events.NewStoreReporter(requests, events.WithStoreLogger(log)),
		audit:         publisher.NewPublisher(auditStore, publisher.WithAsyncBuffer(auditBuffer), publisher.WithLogger(log)),
	}
	reporters := events.Multi{a.storeReporter}
	if in.kafka != nil {
		a.kafkaReporter = events.NewKafkaReporter(in.kafka, events.WithKafkaLogger(log))
		reporters = append(reporters, a.kafkaReporter)
	}

	coordCfg, err := coordinatorConfig(cfg.Matching)
	if err != nil {
		a.Close()
		return nil, err
	}
	coord, err := coordinator.New(eng, dispatcher,
		coordinator.WithReporter(reporters),
		coordinator.WithAuditPublisher(a.audit),
		coordinator.WithLogger(log),
		coordinator.WithMetrics(m),
		coordinator.WithConfig(coordCfg),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	a.coordinator = coord

	handlers, err := ingest.NewHandlers(coord, projector, requests, donors, ingest.WithLogger(log))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ingestRouter = ingest.NewRouter(log, nil)
	handlers.Register(a.ingestRouter, ingest.Topics{
		Requests:      kafka.TopicRequests,
		Locations:     kafka.TopicLocations,
		Responses:     kafka.TopicResponses,
		Completions:   kafka.TopicCompletions,
		Cancellations: kafka.TopicCancellations,
		Donors:        kafka.TopicDonors,
	})
	return a, nil
}

// Close stops the actors first so every pending report is enqueued before
// the sinks drain.
func (a *app) Close() {
	if a.coordinator != nil {
		a.coordinator.Close()
	}
	a.storeReporter.Close()
	if a.kafkaReporter != nil {
		a.kafkaReporter.Wait()
	}
	a.audit.Close()
}

// newDispatcher publishes alerts to Kafka when a broker is configured and
// logs them otherwise.
func newDispatcher(in *infra, log *slog.Logger, m *matchingmetrics.Metrics) (*notify.Dispatcher, error) {
	channels := make([]notify.Channel, 0, len(notify.DefaultOrder))
	var updates notify.UpdatePublisher = notify.NewLogUpdatePublisher(log)
	for _, kind := range notify.DefaultOrder {
		if in.kafka == nil {
			channels = append(channels, notify.NewLogChannel(kind, log))
			continue
		}
		ch, err := notify.NewKafkaChannel(kind, in.kafka)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	if in.kafka != nil {
		pub, err := notify.NewKafkaUpdatePublisher(in.kafka, kafka.TopicRequesterUpdates)
		if err != nil {
			return nil, err
		}
		updates = pub
	}
	return notify.NewDispatcher(channels,
		notify.WithUpdatePublisher(updates),
		notify.WithLogger(log),
		notify.WithMetrics(m),
	)
}

func scoringConfig(m config.Matching) scoring.Config {
	cfg := scoring.DefaultConfig()
	if w := m.Weights; w != nil {
		cfg.Weights = scoring.Weights{
			Distance:      w.Distance,
			Availability:  w.Availability,
			History:       w.History,
			Compatibility: w.Compatibility,
			Urgency:       w.Urgency,
		}
	}
	return cfg
}

func enginePolicies(m config.Matching) (engine.Policies, error) {
	policies := engine.DefaultPolicies()
	for name, p := range m.Policies {
		u, err := models.ParseUrgency(name)
		if err != nil {
			return nil, fmt.Errorf("expansion policy %q: %w", name, err)
		}
		policies[u] = engine.Policy{
			InitialRadiusKm: p.InitialRadiusKm,
			MaxRadiusKm:     p.MaxRadiusKm,
			ExpansionFactor: p.ExpansionFactor,
			MaxSteps:        p.MaxSteps,
			MinPool:         p.MinPool,
		}
	}
	if err := policies.Validate(); err != nil {
		return nil, fmt.Errorf("expansion policies: %w", err)
	}
	return policies, nil
}

func coordinatorConfig(m config.Matching) (coordinator.Config, error) {
	cfg := coordinator.DefaultConfig()
	for name, d := range m.ResponseBudgets {
		u, err := models.ParseUrgency(name)
		if err != nil {
			return cfg, fmt.Errorf("response budget %q: %w", name, err)
		}
		if d > 0 {
			cfg.ResponseBudgets[u] = d
		}
	}
	if m.SearchRetries > 0 {
		cfg.SearchRetries = m.SearchRetries
	}
	if m.SearchBackoff > 0 {
		cfg.SearchBackoff = m.SearchBackoff
	}
	if m.Retention > 0 {
		cfg.Retention = m.Retention
	}
	return cfg, nil
}
