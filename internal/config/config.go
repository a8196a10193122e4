// Package config 合并配置文件、环境变量（含 .env）与默认值，产出实现层直接消费的 EffectiveConfig。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/John-Robertt/wallpipe/internal/domain"
)

const (
	// ErrCodeNotFound 表示显式指定的配置文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

// 配置文件名（不含扩展名）；viper 会依次尝试 yaml/json/toml 等扩展名。
const FileName = "wallpipe"

const (
	DefaultMinWidth           = 1920
	DefaultMinHeight          = 1080
	DefaultMaxBytes           = 20 << 20
	DefaultDailyLimit         = 5
	DefaultProviderTimeout    = 30 * time.Second
	DefaultValidatorTimeout   = 60 * time.Second
	DefaultDeliveryTimeout    = 30 * time.Second
	DefaultRateLimitCooldown  = 60 * time.Second
	DefaultMaxConcurrentTicks = 4
	DefaultListenAddr         = ":8080"
	DefaultLogLevel           = "info"
)

// LoadOptions 描述配置的发现位置。
type LoadOptions struct {
	// File 非空时必须存在；为空时在 Dir 下查找 wallpipe.{yaml,json,...}（可选）。
	File string
	Dir  string
	// EnvFile 为空时加载 Dir 下的 .env（可选）；已存在的环境变量不会被覆盖。
	EnvFile string
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigFile 是实际读取的配置文件；未找到时为空。
	ConfigFile string

	LogLevel       string
	LogDevelopment bool

	UnsplashKey     string
	UnsplashBaseURL string
	PexelsKey       string
	PexelsBaseURL   string
	PixabayKey      string
	PixabayBaseURL  string
	// OpenGraphURL 是包含 {category} 占位符的页面模板；为空即禁用。
	OpenGraphURL string
	// ProviderRPS 是每个 provider 的本地限速（<=0 不限速）。
	ProviderRPS float64

	ProxyURL   string
	ImageProxy bool

	MinWidth   int
	MinHeight  int
	MaxBytes   int64
	DailyLimit int
	TempDir    string

	ProviderTimeout    time.Duration
	ValidatorTimeout   time.Duration
	DeliveryTimeout    time.Duration
	RateLimitCooldown  time.Duration
	MaxConcurrentTicks int

	TelegramToken     string
	TelegramBaseURL   string
	TelegramReactions bool

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ListenAddr string
}

// SizePolicy 返回最小分辨率约束。
func (c EffectiveConfig) SizePolicy() domain.SizePolicy {
	return domain.SizePolicy{MinWidth: c.MinWidth, MinHeight: c.MinHeight}
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Load 读取配置。
//
// 覆盖优先级（固定）：环境变量（含 .env）> 配置文件 > 默认值。
// 环境变量名是 key 的大写形式（如 unsplash_key → UNSPLASH_KEY），另有少量别名
// （FREE_FETCH_LIMIT → daily_limit，BOT_TOKEN → telegram_token）。
func Load(opt LoadOptions) (EffectiveConfig, error) {
	dir := opt.Dir
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}

	envFile := opt.EnvFile
	if envFile == "" {
		envFile = filepath.Join(dir, ".env")
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: envFile, Err: err}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := bindAliases(v); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: err}
	}

	cfgPath, err := readConfigFile(v, opt.File, dir)
	if err != nil {
		return EffectiveConfig{}, err
	}

	eff, err := build(v)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	eff.ConfigFile = cfgPath
	return eff, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_development", false)

	v.SetDefault("unsplash_key", "")
	v.SetDefault("unsplash_base_url", "https://api.unsplash.com")
	v.SetDefault("pexels_key", "")
	v.SetDefault("pexels_base_url", "https://api.pexels.com")
	v.SetDefault("pixabay_key", "")
	v.SetDefault("pixabay_base_url", "https://pixabay.com")
	v.SetDefault("opengraph_url", "")
	v.SetDefault("provider_rps", 0)

	v.SetDefault("proxy_url", "")
	v.SetDefault("image_proxy", false)

	v.SetDefault("min_width", DefaultMinWidth)
	v.SetDefault("min_height", DefaultMinHeight)
	v.SetDefault("max_bytes", DefaultMaxBytes)
	v.SetDefault("daily_limit", DefaultDailyLimit)
	v.SetDefault("temp_dir", "")

	v.SetDefault("provider_timeout", DefaultProviderTimeout)
	v.SetDefault("validator_timeout", DefaultValidatorTimeout)
	v.SetDefault("delivery_timeout", DefaultDeliveryTimeout)
	v.SetDefault("rate_limit_cooldown", DefaultRateLimitCooldown)
	v.SetDefault("max_concurrent_ticks", DefaultMaxConcurrentTicks)

	v.SetDefault("telegram_token", "")
	v.SetDefault("telegram_base_url", "https://api.telegram.org")
	v.SetDefault("telegram_reactions", false)

	v.SetDefault("database_url", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	// listen_addr 不设默认值：build 里先看 PORT，再回落到 DefaultListenAddr。
}

func bindAliases(v *viper.Viper) error {
	if err := v.BindEnv("daily_limit", "DAILY_LIMIT", "FREE_FETCH_LIMIT"); err != nil {
		return err
	}
	return v.BindEnv("telegram_token", "TELEGRAM_TOKEN", "BOT_TOKEN")
}

func readConfigFile(v *viper.Viper, file, dir string) (string, error) {
	if strings.TrimSpace(file) != "" {
		if _, err := os.Stat(file); err != nil {
			if os.IsNotExist(err) {
				return "", &Error{Code: ErrCodeNotFound, Path: file, Err: os.ErrNotExist}
			}
			return "", &Error{Code: ErrCodeInvalid, Path: file, Err: err}
		}
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return "", &Error{Code: ErrCodeInvalid, Path: file, Err: err}
		}
		return v.ConfigFileUsed(), nil
	}

	v.SetConfigName(FileName)
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if errors.As(err, &nf) {
			// 配置文件可选。
			return "", nil
		}
		return "", &Error{Code: ErrCodeInvalid, Path: filepath.Join(dir, FileName), Err: err}
	}
	return v.ConfigFileUsed(), nil
}

func build(v *viper.Viper) (EffectiveConfig, error) {
	c := EffectiveConfig{
		LogLevel:       strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		LogDevelopment: v.GetBool("log_development"),

		UnsplashKey:     strings.TrimSpace(v.GetString("unsplash_key")),
		UnsplashBaseURL: strings.TrimSpace(v.GetString("unsplash_base_url")),
		PexelsKey:       strings.TrimSpace(v.GetString("pexels_key")),
		PexelsBaseURL:   strings.TrimSpace(v.GetString("pexels_base_url")),
		PixabayKey:      strings.TrimSpace(v.GetString("pixabay_key")),
		PixabayBaseURL:  strings.TrimSpace(v.GetString("pixabay_base_url")),
		OpenGraphURL:    strings.TrimSpace(v.GetString("opengraph_url")),
		ProviderRPS:     v.GetFloat64("provider_rps"),

		ProxyURL:   strings.TrimSpace(v.GetString("proxy_url")),
		ImageProxy: v.GetBool("image_proxy"),

		MinWidth:   v.GetInt("min_width"),
		MinHeight:  v.GetInt("min_height"),
		MaxBytes:   v.GetInt64("max_bytes"),
		DailyLimit: v.GetInt("daily_limit"),
		TempDir:    strings.TrimSpace(v.GetString("temp_dir")),

		ProviderTimeout:    v.GetDuration("provider_timeout"),
		ValidatorTimeout:   v.GetDuration("validator_timeout"),
		DeliveryTimeout:    v.GetDuration("delivery_timeout"),
		RateLimitCooldown:  v.GetDuration("rate_limit_cooldown"),
		MaxConcurrentTicks: v.GetInt("max_concurrent_ticks"),

		TelegramToken:     strings.TrimSpace(v.GetString("telegram_token")),
		TelegramBaseURL:   strings.TrimSpace(v.GetString("telegram_base_url")),
		TelegramReactions: v.GetBool("telegram_reactions"),

		DatabaseURL:   strings.TrimSpace(v.GetString("database_url")),
		RedisAddr:     strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		ListenAddr: strings.TrimSpace(v.GetString("listen_addr")),
	}

	// 优先级：listen_addr（环境变量/配置文件）> 托管平台注入的 PORT > 默认值。
	if c.ListenAddr == "" {
		if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
			c.ListenAddr = ":" + port
		} else {
			c.ListenAddr = DefaultListenAddr
		}
	}

	return c, validate(c)
}

func validate(c EffectiveConfig) error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level 只能是 debug/info/warn/error，实际是 %q", c.LogLevel)
	}

	if c.MinWidth <= 0 || c.MinHeight <= 0 {
		return fmt.Errorf("min_width/min_height 必须为正数，实际是 %dx%d", c.MinWidth, c.MinHeight)
	}
	if c.MaxBytes <= 0 {
		return fmt.Errorf("max_bytes 必须为正数，实际是 %d", c.MaxBytes)
	}
	if c.DailyLimit <= 0 {
		return fmt.Errorf("daily_limit 必须为正数，实际是 %d", c.DailyLimit)
	}
	if c.MaxConcurrentTicks <= 0 {
		return fmt.Errorf("max_concurrent_ticks 必须为正数，实际是 %d", c.MaxConcurrentTicks)
	}
	for name, d := range map[string]time.Duration{
		"provider_timeout":    c.ProviderTimeout,
		"validator_timeout":   c.ValidatorTimeout,
		"delivery_timeout":    c.DeliveryTimeout,
		"rate_limit_cooldown": c.RateLimitCooldown,
	} {
		if d <= 0 {
			return fmt.Errorf("%s 必须为正数，实际是 %s", name, d)
		}
	}

	for name, raw := range map[string]string{
		"unsplash_base_url": c.UnsplashBaseURL,
		"pexels_base_url":   c.PexelsBaseURL,
		"pixabay_base_url":  c.PixabayBaseURL,
		"telegram_base_url": c.TelegramBaseURL,
	} {
		if !domain.IsAbsHTTPURL(raw) {
			return fmt.Errorf("%s 必须是 http/https 绝对地址：%q", name, raw)
		}
	}
	if c.OpenGraphURL != "" && !domain.IsAbsHTTPURL(strings.ReplaceAll(c.OpenGraphURL, "{category}", "x")) {
		return fmt.Errorf("opengraph_url 必须是 http/https 绝对地址：%q", c.OpenGraphURL)
	}

	if c.ProxyURL != "" {
		u, err := url.Parse(c.ProxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("proxy_url 无效：%q", c.ProxyURL)
		}
	}
	if c.ImageProxy && c.ProxyURL == "" {
		return errors.New("image_proxy=true 但 proxy_url 为空")
	}
	return nil
}
