package app

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"mortgage-rate-alerts/internal/alerting"
	"mortgage-rate-alerts/internal/config"
	"mortgage-rate-alerts/internal/crm"
	"mortgage-rate-alerts/internal/httpapi"
	"mortgage-rate-alerts/internal/monitor"
	"mortgage-rate-alerts/internal/ratealerts"
	"mortgage-rate-alerts/internal/ratefeed"
	"mortgage-rate-alerts/internal/ratelimit"
	"mortgage-rate-alerts/internal/scheduler"
	"mortgage-rate-alerts/internal/storage"
	"mortgage-rate-alerts/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// Backend is everything the service, monitor and probes need from storage.
type Backend interface {
	storage.AlertStore
	storage.MonitorStore
	storage.Pinger
}

var errNoDatabase = errors.New("database.dsn not configured")

// openStore connects to PostgreSQL. Without a DSN it returns the in-memory store
// when allowMemory is set, and errNoDatabase otherwise.
func (a *App) openStore(ctx context.Context, allowMemory bool) (Backend, func(), error) {
	if a.Config.Database.DSN == "" {
		if !allowMemory {
			return nil, func() {}, errNoDatabase
		}
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory store")
		return storage.NewMemoryStore(), func() {}, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, func() {}, err
	}

	store := storage.NewStore(pool)
	return store, store.Close, nil
}

func (a *App) newRates() (ratefeed.Provider, error) {
	if a.Config.Rates.Source == "feed" {
		cfg := a.Config.Rates.Feed
		return ratefeed.NewFeed(ratefeed.FeedOptions{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Timeout:    cfg.RequestTimeout,
			RetryCount: cfg.RetryCount,
			UserAgent:  "rate-alerts/" + version.Version,
		}, a.Logger), nil
	}
	return ratefeed.NewStatic(a.Config.Rates.Static)
}

func (a *App) newNotifier() alerting.Notifier {
	var channels alerting.Fanout

	if cfg := a.Config.Notifications.Email; cfg.Enabled {
		channels = append(channels, alerting.NewEmailNotifier(cfg.APIBase, cfg.APIKey, cfg.From, cfg.RequestTimeout, a.Logger))
	}
	if cfg := a.Config.Notifications.Telegram; cfg.Enabled {
		channels = append(channels, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}

	switch len(channels) {
	case 0:
		return alerting.NewLogNotifier(a.Logger)
	case 1:
		return channels[0]
	default:
		return channels
	}
}

func (a *App) newLeadSink() ratealerts.LeadSink {
	if cfg := a.Config.CRM; cfg.Enabled {
		return crm.NewClient(cfg.BaseURL, cfg.APIKey, cfg.RequestTimeout, a.Logger)
	}
	return crm.Noop{}
}

func (a *App) newService(store storage.AlertStore) *ratealerts.Service {
	return ratealerts.NewService(store, a.Logger,
		ratealerts.WithLimits(ratealerts.Limits{
			MaxActivePerEmail: a.Config.Limits.MaxActivePerEmail,
			MaxDailyPerEmail:  a.Config.Limits.MaxDailyPerEmail,
		}),
		ratealerts.WithLeadSink(a.newLeadSink()),
	)
}

func (a *App) newMonitor(store storage.MonitorStore, rates ratefeed.Provider, withScheduler bool) *monitor.Monitor {
	var sched *scheduler.Scheduler
	if withScheduler {
		sched = scheduler.New(scheduler.Options{
			Name:         "monitor_scheduler",
			Interval:     a.Config.Scheduler.Interval,
			AlignToStart: a.Config.Scheduler.AlignToInterval,
			StartupDelay: a.Config.Scheduler.StartupDelay,
			RunOnStart:   a.Config.Scheduler.RunOnStart,
		}, a.Logger)
	}
	return monitor.New(sched, rates, store, a.newNotifier(), a.Config.Scheduler.AdvisoryLockKey, a.Logger)
}

// newLimiter returns nil when rate limiting is disabled.
func (a *App) newLimiter() (ratelimit.Limiter, func()) {
	if !a.Config.RateLimit.Enabled {
		return nil, func() {}
	}
	if a.Config.Redis.Addr == "" {
		return ratelimit.NewMemory(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	return ratelimit.NewRedis(client, a.Config.Redis.KeyPrefix), func() { _ = client.Close() }
}

func (a *App) policies() httpapi.Policies {
	policy := func(name string, p config.WindowPolicy) ratelimit.Policy {
		return ratelimit.Policy{Name: name, Limit: p.Limit, Window: p.Window}
	}
	rl := a.Config.RateLimit
	return httpapi.Policies{
		Create: policy("create", rl.Create),
		Read:   policy("read", rl.Read),
		Mutate: policy("mutate", rl.Mutate),
		Admin:  policy("admin", rl.Admin),
	}
}

// ExportOptions hold parameters for exporting alerts.
type ExportOptions struct {
	PNGPath  string
	CSVPath  string
	PageSize int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Email string
	All   bool
}
