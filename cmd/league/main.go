// Package main is the entry point of the language league service.
//
// One process ingests chat activity over HTTP, keeps the round tallies in
// memory, checkpoints them to PostgreSQL and rolls rounds over on a schedule.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/hablemos/language-league/config"
	"github.com/hablemos/language-league/internal/application/command"
	"github.com/hablemos/language-league/internal/application/engine"
	"github.com/hablemos/language-league/internal/application/query"
	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/infrastructure/auth"
	"github.com/hablemos/language-league/internal/infrastructure/external/classifier"
	"github.com/hablemos/language-league/internal/infrastructure/external/webhook"
	"github.com/hablemos/language-league/internal/infrastructure/messaging"
	"github.com/hablemos/language-league/internal/infrastructure/metrics"
	"github.com/hablemos/language-league/internal/infrastructure/persistence/memory"
	"github.com/hablemos/language-league/internal/infrastructure/persistence/postgres"
	"github.com/hablemos/language-league/internal/infrastructure/persistence/redis"
	"github.com/hablemos/language-league/internal/infrastructure/scheduler"
	"github.com/hablemos/language-league/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/hablemos/language-league/internal/interface/http"
	"github.com/hablemos/language-league/internal/interface/http/handlers"
	"github.com/hablemos/language-league/pkg/circuitbreaker"
	"github.com/hablemos/language-league/pkg/logger"
	"github.com/hablemos/language-league/pkg/retry"
)

func main() {
	if len(os.Args) == 3 && os.Args[1] == "hash-token" {
		hash, err := auth.HashToken(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash-token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// stores groups the persistence ports chosen at startup.
type stores struct {
	participants league.ParticipantRepository
	rounds       league.RoundRepository
	tallies      league.TallyRepository
	results      league.ResultRepository
	exclusions   league.ExclusionRepository
	gate         league.GateStore
	audit        league.AuditLog

	// redis is set when the gate lives in Redis.
	redis *redis.Client

	health  map[string]handlers.Pinger
	closers []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.App.LogLevel),
		Format:    logger.ParseFormat(cfg.App.LogFormat),
		AddSource: cfg.App.Debug,
		Service:   cfg.App.Name,
	})
	slog.SetDefault(log)
	log.Info("starting language league",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"postgres", cfg.UsesPostgres(),
		"redis", cfg.Redis.Enabled(),
	)

	clock := clockwork.NewRealClock()

	// ─────────────────────────────────────────────────────────────────────────
	// 2. METRICS
	// ─────────────────────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	leagueMetrics := metrics.NewLeagueMetrics(registry)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS & ANNOUNCERS
	// ─────────────────────────────────────────────────────────────────────────
	var breakers []*circuitbreaker.CircuitBreaker
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		Logger:         log,
		Observer:       leagueMetrics,
	})
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn("event bus close failed", "error", err)
		}
	}()

	if err := messaging.NewLogSubscriber(log).Register(bus); err != nil {
		return fmt.Errorf("register log subscriber: %w", err)
	}
	if cfg.Announcer.WebhookURL != "" {
		wcfg := webhook.DefaultConfig(cfg.Announcer.WebhookURL)
		if cfg.Announcer.DeliveryTimeout > 0 {
			wcfg.DeliveryTimeout = cfg.Announcer.DeliveryTimeout
		}
		wcfg.Logger = log
		announcer := webhook.NewAnnouncer(wcfg)
		if err := announcer.Register(bus); err != nil {
			return fmt.Errorf("register webhook announcer: %w", err)
		}
		breakers = append(breakers, announcer.Breaker())
	}
	if cfg.Announcer.RedisPublish && st.redis != nil {
		if err := redis.NewAnnouncementPublisher(st.redis, log).Register(bus); err != nil {
			return fmt.Errorf("register redis publisher: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	queryTimeout := cfg.Database.QueryTimeout
	roster := engine.NewRoster(st.participants, clock, queryTimeout, log)
	exclusions := engine.NewExclusionRegistry(st.exclusions, clock, queryTimeout)
	gate := engine.NewGate(st.gate, engine.GateConfig{
		MinLength: cfg.League.MinLength,
		Cooldown:  cfg.League.Cooldown,
		DailyCap:  cfg.League.DailyCap,
		Timeout:   cfg.Gate.Timeout,
	}, clock)
	eng := engine.NewEngine(roster, league.ScoringRules{
		PointsPerMessage:    cfg.League.PointsPerMessage,
		ConsistencyBonusDay: cfg.League.ConsistencyBonus,
	}, clock, leagueMetrics)
	rounds := engine.NewRoundManager(engine.RoundManagerDeps{
		Engine:    eng,
		Rounds:    st.rounds,
		Tallies:   st.tallies,
		Results:   st.results,
		Publisher: bus,
		Clock:     clock,
		Logger:    log,
		Observer:  leagueMetrics,
	}, engine.RoundConfig{
		Length:        cfg.League.RoundLength,
		Anchor:        cfg.League.RoundAnchor,
		TopN:          cfg.League.TopN,
		CommitTimeout: cfg.League.CommitTimeout,
	})

	if err := roster.Load(ctx); err != nil {
		return err
	}
	if err := exclusions.Load(ctx); err != nil {
		return err
	}
	if err := rounds.Recover(ctx); err != nil {
		return fmt.Errorf("recover rounds: %w", err)
	}
	if halted, reason := rounds.Halted(); halted {
		log.Error("rollovers are halted, operator action required", "reason", reason)
	}

	var detector league.Classifier = classifier.Hinted{}
	if cfg.Classifier.URL != "" {
		ccfg := classifier.DefaultConfig(cfg.Classifier.URL)
		ccfg.APIKey = cfg.Classifier.APIKey
		ccfg.Timeout = cfg.Classifier.Timeout
		ccfg.MinConfidence = cfg.Classifier.MinConfidence
		ccfg.RequestsPerSecond = cfg.Classifier.RequestsPerSecond
		ccfg.Burst = cfg.Classifier.Burst
		ccfg.Logger = log
		client := classifier.NewClient(ccfg)
		breakers = append(breakers, client.Breaker())
		detector = classifier.Hinted{Next: client}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	recordActivity := command.NewRecordActivityHandler(command.RecordActivityDeps{
		Roster:          roster,
		Exclusions:      exclusions,
		Gate:            gate,
		Engine:          eng,
		Classifier:      detector,
		Audit:           st.audit,
		Clock:           clock,
		Logger:          log,
		Observer:        leagueMetrics,
		ClassifyTimeout: cfg.League.ClassifyTimeout,
	})
	membership := command.NewMembershipHandler(roster, eng, bus, clock, log)
	moderation := command.NewModerationHandler(roster, exclusions, rounds, bus, clock, log)

	adminAuth, err := auth.NewAdminAuthorizer(cfg.Admin.TokenHash, cfg.Admin.Actor)
	if err != nil {
		return err
	}
	if !adminAuth.Enabled() {
		log.Warn("ADMIN_TOKEN_HASH is not set, admin endpoints are disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:         log,
		Clock:          clock,
		TickInterval:   cfg.Scheduler.TickInterval,
		Observer:       leagueMetrics,
		MaxHistorySize: 200,
	})
	checkpoint := jobs.NewCheckpointTalliesJob(eng, st.tallies, cfg.League.CommitTimeout, log)
	for _, j := range []struct {
		job      scheduler.Job
		interval time.Duration
		aligned  bool
	}{
		{jobs.NewRolloverCheckJob(rounds, log), cfg.Scheduler.RolloverInterval, true},
		{checkpoint, cfg.Scheduler.CheckpointInterval, false},
		{jobs.NewPruneGateJob(gate, log), cfg.Scheduler.PruneInterval, false},
	} {
		var schedule scheduler.Schedule = scheduler.NewIntervalSchedule(j.interval)
		if j.aligned {
			schedule = scheduler.NewAlignedSchedule(j.interval)
		}
		if err := sched.Register(j.job, schedule); err != nil {
			return fmt.Errorf("register job %s: %w", j.job.Name(), err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version, clock)
	health.AddCheck("round", handlers.NewRoundCheck(eng))
	health.AddCheck("rollover", handlers.NewRolloverCheck(rounds))
	for name, p := range st.health {
		health.AddCheck(name, handlers.NewPingCheck(p))
	}
	for _, b := range breakers {
		health.AddOptionalCheck(b.Name(), handlers.NewBreakerCheck(b))
	}

	server := httpapi.NewServer(httpapi.Config{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		RateLimit:    cfg.HTTP.RateLimit,
		RateBurst:    cfg.HTTP.RateBurst,
	}, httpapi.Dependencies{
		RecordActivity: recordActivity,
		Membership:     membership,
		Moderation:     moderation,
		Leaderboard:    query.NewGetLeaderboardHandler(eng, rounds),
		Stats:          query.NewGetParticipantStatsHandler(roster, eng, rounds, st.results),
		AdminTools: query.NewAdminToolsHandler(query.AdminToolsDeps{
			Roster:     roster,
			Exclusions: exclusions,
			Gate:       gate,
			Engine:     eng,
			Rounds:     rounds,
			Classifier: detector,
			Audit:      st.audit,
			Clock:      clock,
		}),
		Authorizer:    adminAuth,
		Jobs:          sched,
		HealthChecker: health,
		Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Logger:        log,
		Clock:         clock,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 9. RUN & GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Scheduler.Enabled {
		if err := sched.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		log.Warn("scheduler disabled, rounds will not roll over automatically")
	}

	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if sched.IsRunning() {
			if err := sched.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
			}
		}
		// Final checkpoint so a restart loses nothing counted.
		if err := checkpoint.Run(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("final checkpoint: %w", err))
		}
		return errors.Join(errs...)
	})

	log.Info("language league is running", "http_address", cfg.HTTP.Addr)

	if err := g.Wait(); err != nil {
		log.Error("shutdown completed with errors", "error", err)
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE SELECTION
// ══════════════════════════════════════════════════════════════════════════════

// openStores picks PostgreSQL when DATABASE_URL is set and Redis for the gate
// and audit trail when GATE_BACKEND=redis; anything else lives in memory.
func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	st := &stores{health: make(map[string]handlers.Pinger)}
	startup := retry.StartupRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("dependency not ready, retrying", "attempt", attempt, "delay", delay.String(), "error", err)
	})

	if cfg.UsesPostgres() {
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = cfg.Database.URL
		pgCfg.MaxConns = int32(cfg.Database.MaxConns)
		pgCfg.MinConns = int32(cfg.Database.MinConns)
		pgCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
		pgCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime
		pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout

		var conn *postgres.Connection
		err := startup.Do(ctx, func(ctx context.Context) error {
			var err error
			conn, err = postgres.NewConnection(ctx, pgCfg)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		st.closers = append(st.closers, conn.Close)
		st.health["postgres"] = conn

		if cfg.Database.AutoMigrate {
			ran, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				st.close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("migrations completed", "applied", ran)
		}

		st.participants = postgres.NewParticipantRepository(conn)
		st.rounds = postgres.NewRoundRepository(conn)
		st.tallies = postgres.NewTallyRepository(conn)
		st.results = postgres.NewResultRepository(conn)
		st.exclusions = postgres.NewExclusionRepository(conn)
		log.Info("using PostgreSQL storage")
	} else {
		mem := memory.NewStore()
		st.participants = mem.Participants()
		st.rounds = mem.Rounds()
		st.tallies = mem.Tallies()
		st.results = mem.Results()
		st.exclusions = mem.Exclusions()
		log.Warn("DATABASE_URL is not set, league state lives in memory only")
	}

	useRedisGate := cfg.Gate.Backend == config.GateBackendRedis
	if cfg.Redis.Enabled() && (useRedisGate || cfg.Announcer.RedisPublish) {
		rcfg := redis.DefaultConfig()
		rcfg.URL = cfg.Redis.URL
		if cfg.Redis.Host != "" {
			rcfg.Host = cfg.Redis.Host
			rcfg.Port = cfg.Redis.Port
		}
		rcfg.Password = cfg.Redis.Password
		rcfg.DB = cfg.Redis.DB
		rcfg.PoolSize = cfg.Redis.PoolSize
		rcfg.MinIdleConns = cfg.Redis.MinIdleConns
		rcfg.DialTimeout = cfg.Redis.DialTimeout
		rcfg.ReadTimeout = cfg.Redis.ReadTimeout
		rcfg.WriteTimeout = cfg.Redis.WriteTimeout
		if cfg.Redis.KeyPrefix != "" {
			rcfg.KeyPrefix = cfg.Redis.KeyPrefix
		}

		var client *redis.Client
		err := startup.Do(ctx, func(ctx context.Context) error {
			var err error
			client, err = redis.NewClient(ctx, rcfg)
			return err
		})
		if err != nil {
			st.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		st.closers = append(st.closers, func() { _ = client.Close() })
		st.health["redis"] = client
		st.redis = client
	}

	if useRedisGate && st.redis != nil {
		st.gate = redis.NewGateStore(st.redis)
		st.audit = redis.NewAuditLog(st.redis, cfg.Gate.AuditDepth)
		log.Info("using Redis gate store")
	} else {
		st.gate = memory.NewGateStore()
		st.audit = memory.NewAuditLog(cfg.Gate.AuditDepth)
	}
	return st, nil
}
