// Package app 组装进程级对象图：配置 → 日志/指标 → provider → 校验 → 获取 → 额度/计划 → 投递。
//
// 约束：所有组件都是显式构造并由 App 持有的对象，没有包级单例；能力开关（图片校验、reaction）只在这里解析一次。
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/John-Robertt/wallpipe/internal/app/acquire"
	"github.com/John-Robertt/wallpipe/internal/config"
	"github.com/John-Robertt/wallpipe/internal/delivery"
	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/infra/httpx"
	"github.com/John-Robertt/wallpipe/internal/infra/logx"
	"github.com/John-Robertt/wallpipe/internal/infra/pgstore"
	"github.com/John-Robertt/wallpipe/internal/infra/redisstore"
	"github.com/John-Robertt/wallpipe/internal/metrics"
	"github.com/John-Robertt/wallpipe/internal/provider"
	"github.com/John-Robertt/wallpipe/internal/provider/opengraph"
	"github.com/John-Robertt/wallpipe/internal/provider/pexels"
	"github.com/John-Robertt/wallpipe/internal/provider/pixabay"
	"github.com/John-Robertt/wallpipe/internal/provider/unsplash"
	"github.com/John-Robertt/wallpipe/internal/quota"
	"github.com/John-Robertt/wallpipe/internal/schedule"
	"github.com/John-Robertt/wallpipe/internal/store"
	"github.com/John-Robertt/wallpipe/internal/validate"
)

type App struct {
	Config config.EffectiveConfig
	Log    logx.Logger

	Prometheus *prometheus.Registry
	Metrics    *metrics.Metrics

	Providers   provider.Registry
	Validator   *validate.Validator
	Coordinator *acquire.Coordinator
	Quota       *quota.Tracker
	Schedules   *schedule.Registry
	Scheduler   *schedule.Scheduler
	Sender      delivery.Sender

	closers []func() error
}

// Stores 允许调用方（测试/CLI）注入现成的存储；字段为空时按配置构造。
type Stores struct {
	Quota    store.QuotaStore
	Schedule store.ScheduleStore
}

// New 按配置构造完整对象图。失败时已打开的资源会被关闭。
func New(ctx context.Context, cfg config.EffectiveConfig, log logx.Logger, stores Stores) (_ *App, err error) {
	if log == nil {
		log = logx.NewNop()
	}
	a := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Prometheus = prometheus.NewRegistry()
	a.Prometheus.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Prometheus)

	if err := a.openStores(ctx, &stores); err != nil {
		return nil, err
	}

	if a.Providers, err = buildProviders(cfg, log); err != nil {
		return nil, err
	}
	if a.Validator, err = buildValidator(cfg, log); err != nil {
		return nil, err
	}
	a.Coordinator, err = acquire.New(acquire.Options{
		Registry:  a.Providers,
		Validator: a.Validator,
		Log:       log.With(logx.String("component", "acquire")),
		Observer:  a.Metrics,
	})
	if err != nil {
		return nil, err
	}

	a.Quota, err = quota.New(quota.Options{
		Store:      stores.Quota,
		DailyLimit: cfg.DailyLimit,
		Log:        log.With(logx.String("component", "quota")),
	})
	if err != nil {
		return nil, err
	}

	if a.Sender, err = buildSender(cfg, log); err != nil {
		return nil, err
	}

	a.Schedules = schedule.NewRegistry(stores.Schedule, log.With(logx.String("component", "schedule")))
	a.Scheduler, err = schedule.NewScheduler(schedule.Options{
		Registry:           a.Schedules,
		Acquirer:           a.Coordinator,
		Sender:             a.Sender,
		Log:                log.With(logx.String("component", "scheduler")),
		Observer:           a.Metrics,
		MaxConcurrentTicks: int64(cfg.MaxConcurrentTicks),
		DeliveryTimeout:    cfg.DeliveryTimeout,
	})
	if err != nil {
		return nil, err
	}

	log.Info("应用已初始化",
		logx.Any("providers", a.Providers.Names()),
		logx.Bool("validator_enabled", a.Validator.Enabled()),
		logx.Bool("telegram", cfg.TelegramToken != ""),
	)
	return a, nil
}

// Close 依次释放资源（逆序）。
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Request 是按需获取的入口：额度检查 → 获取 → 成功才计费。
func (a *App) Request(ctx context.Context, consumerID, rawCategory string) (domain.ContentRecord, quota.Decision, error) {
	var rec domain.ContentRecord
	d, err := a.Quota.Guard(ctx, consumerID, func(ctx context.Context) error {
		var err error
		rec, err = a.Coordinator.Acquire(ctx, rawCategory)
		return err
	})
	// 读取额度失败时没有判定结果，不计入指标。
	if err == nil || d != (quota.Decision{}) {
		a.Metrics.ObserveQuota(d)
	}
	if err != nil {
		return domain.ContentRecord{}, d, err
	}
	return rec, d, nil
}

func (a *App) openStores(ctx context.Context, s *Stores) error {
	cfg := a.Config

	// redis 只承担额度（高频读写），优先于 PostgreSQL。
	if cfg.RedisAddr != "" && s.Quota == nil {
		rdb, err := redisstore.NewClient(ctx, redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rdb.Close)
		s.Quota = redisstore.NewQuotaStore(rdb)
		a.Log.Info("额度使用 Redis 存储")
	}

	if cfg.DatabaseURL != "" && (s.Quota == nil || s.Schedule == nil) {
		db, err := pgstore.Open(ctx, pgstore.Config{DSN: cfg.DatabaseURL})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		if err := pgstore.Migrate(ctx, db); err != nil {
			return err
		}
		if s.Quota == nil {
			s.Quota = pgstore.NewQuotaStore(db)
		}
		if s.Schedule == nil {
			s.Schedule = pgstore.NewScheduleStore(db)
		}
		a.Log.Info("使用 PostgreSQL 存储")
	}

	if s.Quota == nil {
		s.Quota = store.NewMemoryQuotaStore()
	}
	if s.Schedule == nil {
		s.Schedule = store.NewMemoryScheduleStore()
		a.Log.Warn("未配置 database_url，计划仅保存在内存中（重启即丢失）")
	}
	return nil
}

func buildProviders(cfg config.EffectiveConfig, log logx.Logger) (provider.Registry, error) {
	api, err := httpx.NewProviderClient(cfg.ProxyURL, cfg.ProviderTimeout)
	if err != nil {
		return provider.Registry{}, fmt.Errorf("构造 provider client 失败：%w", err)
	}
	page, err := httpx.NewPageClient(cfg.ProxyURL, cfg.ProviderTimeout)
	if err != nil {
		return provider.Registry{}, fmt.Errorf("构造 page client 失败：%w", err)
	}

	opts := func(key, endpoint string, client *http.Client) provider.Options {
		return provider.Options{
			Key:      key,
			Endpoint: endpoint,
			Client:   client,
			Guard:    provider.NewGuard(cfg.ProviderRPS, 1, cfg.RateLimitCooldown),
			Log:      log,
			Policy:   cfg.SizePolicy(),
		}
	}

	// 注册顺序即 fallback 优先级。
	return provider.NewRegistry(
		unsplash.New(opts(cfg.UnsplashKey, joinURL(cfg.UnsplashBaseURL, "/photos/random"), api)),
		pexels.New(opts(cfg.PexelsKey, joinURL(cfg.PexelsBaseURL, "/v1/search"), api)),
		pixabay.New(opts(cfg.PixabayKey, joinURL(cfg.PixabayBaseURL, "/api/"), api)),
		opengraph.New("OpenGraph", opts("", cfg.OpenGraphURL, page)),
	)
}

func buildValidator(cfg config.EffectiveConfig, log logx.Logger) (*validate.Validator, error) {
	client, err := httpx.NewImageClient(cfg.ProxyURL, cfg.ImageProxy, cfg.ValidatorTimeout)
	if err != nil {
		return nil, fmt.Errorf("构造 image client 失败：%w", err)
	}
	enabled, cerr := validate.DetectCapability(cfg.TempDir)
	if !enabled {
		log.Warn("图片校验不可用，所有候选将直接放行", logx.Err(cerr))
	}
	return validate.New(validate.Options{
		Enabled:  enabled,
		Client:   client,
		Policy:   cfg.SizePolicy(),
		MaxBytes: cfg.MaxBytes,
		TempDir:  cfg.TempDir,
		Log:      log.With(logx.String("component", "validate")),
	}), nil
}

func buildSender(cfg config.EffectiveConfig, log logx.Logger) (delivery.Sender, error) {
	if cfg.TelegramToken == "" {
		return delivery.LogSender{Log: log.With(logx.String("component", "delivery"))}, nil
	}
	client, err := httpx.NewProviderClient(cfg.ProxyURL, cfg.DeliveryTimeout)
	if err != nil {
		return nil, fmt.Errorf("构造 telegram client 失败：%w", err)
	}
	return delivery.NewTelegramSender(delivery.TelegramOptions{
		Token:     cfg.TelegramToken,
		BaseURL:   cfg.TelegramBaseURL,
		Client:    client,
		Reactions: cfg.TelegramReactions,
		Log:       log.With(logx.String("component", "delivery")),
	})
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
