package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	eff, err := Load(LoadOptions{Dir: dir})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ConfigFile != "" {
		t.Fatalf("期望未读取配置文件，实际=%q", eff.ConfigFile)
	}
	if eff.MinWidth != 1920 || eff.MinHeight != 1080 {
		t.Fatalf("期望 1920x1080，实际 %dx%d", eff.MinWidth, eff.MinHeight)
	}
	if eff.MaxBytes != 20<<20 {
		t.Fatalf("期望 max_bytes=20MiB，实际=%d", eff.MaxBytes)
	}
	if eff.DailyLimit != 5 {
		t.Fatalf("期望 daily_limit=5，实际=%d", eff.DailyLimit)
	}
	if eff.ProviderTimeout != 30*time.Second || eff.ValidatorTimeout != 60*time.Second {
		t.Fatalf("超时默认值不符合预期：%s / %s", eff.ProviderTimeout, eff.ValidatorTimeout)
	}
	if eff.RateLimitCooldown != time.Minute {
		t.Fatalf("期望 cooldown=60s，实际=%s", eff.RateLimitCooldown)
	}
	if eff.UnsplashBaseURL != "https://api.unsplash.com" {
		t.Fatalf("unsplash_base_url 默认值不符合预期：%q", eff.UnsplashBaseURL)
	}
	if p := eff.SizePolicy(); p.MinWidth != 1920 || p.MinHeight != 1080 {
		t.Fatalf("SizePolicy 不符合预期：%+v", p)
	}
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "wallpipe.yaml"), []byte(`
min_width: 2560
daily_limit: 3
provider_timeout: 10s
unsplash_key: from-file
`))
	t.Setenv("UNSPLASH_KEY", "from-env")

	eff, err := Load(LoadOptions{Dir: dir})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ConfigFile != filepath.Join(dir, "wallpipe.yaml") {
		t.Fatalf("ConfigFile 不符合预期：%q", eff.ConfigFile)
	}
	if eff.MinWidth != 2560 || eff.DailyLimit != 3 || eff.ProviderTimeout != 10*time.Second {
		t.Fatalf("配置文件值未生效：%+v", eff)
	}
	if eff.UnsplashKey != "from-env" {
		t.Fatalf("期望环境变量覆盖配置文件，实际=%q", eff.UnsplashKey)
	}
}

func TestLoad_DotEnvAndAliases(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), []byte("FREE_FETCH_LIMIT=7\nBOT_TOKEN=abc\nPEXELS_KEY=px\n"))
	// .env 不覆盖已有环境变量；这里先登记以便测试结束后清理。
	for _, k := range []string{"FREE_FETCH_LIMIT", "BOT_TOKEN", "PEXELS_KEY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	eff, err := Load(LoadOptions{Dir: dir})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.DailyLimit != 7 {
		t.Fatalf("期望 FREE_FETCH_LIMIT 生效，实际 daily_limit=%d", eff.DailyLimit)
	}
	if eff.TelegramToken != "abc" {
		t.Fatalf("期望 BOT_TOKEN 生效，实际=%q", eff.TelegramToken)
	}
	if eff.PexelsKey != "px" {
		t.Fatalf("期望 PEXELS_KEY=px，实际=%q", eff.PexelsKey)
	}
}

func TestLoad_ExplicitFileNotFound(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(LoadOptions{Dir: dir, File: filepath.Join(dir, "missing.yaml")})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoad_ExplicitJSONFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "custom.json")
	writeFile(t, p, []byte(`{"opengraph_url":"https://wallpapers.test/search?q={category}","listen_addr":":9090"}`))

	eff, err := Load(LoadOptions{Dir: dir, File: p})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.OpenGraphURL != "https://wallpapers.test/search?q={category}" {
		t.Fatalf("opengraph_url 不符合预期：%q", eff.OpenGraphURL)
	}
	if eff.ListenAddr != ":9090" {
		t.Fatalf("listen_addr 不符合预期：%q", eff.ListenAddr)
	}
}

func TestLoad_PortEnv(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("LISTEN_ADDR", "")

	eff, err := Load(LoadOptions{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ListenAddr != ":7000" {
		t.Fatalf("期望 :7000，实际=%q", eff.ListenAddr)
	}
}

func TestLoad_ListenAddrPrecedence(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LISTEN_ADDR", "")
	eff, err := Load(LoadOptions{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ListenAddr != DefaultListenAddr {
		t.Fatalf("期望默认 %s，实际=%q", DefaultListenAddr, eff.ListenAddr)
	}

	t.Setenv("PORT", "7000")
	t.Setenv("LISTEN_ADDR", "127.0.0.1:9000")
	eff, err = Load(LoadOptions{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("显式 listen_addr 应优先于 PORT，实际=%q", eff.ListenAddr)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"broken yaml", "min_width: [1\n"},
		{"non positive width", "min_width: 0\n"},
		{"bad log level", "log_level: verbose\n"},
		{"bad timeout", "validator_timeout: -1s\n"},
		{"bad proxy", "proxy_url: \"::bad\"\n"},
		{"image proxy without proxy", "image_proxy: true\n"},
		{"relative opengraph url", "opengraph_url: /search?q={category}\n"},
		{"bad base url", "pexels_base_url: ftp://pexels.test\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, "wallpipe.yaml"), []byte(tc.body))

			_, err := Load(LoadOptions{Dir: dir})
			if Code(err) != ErrCodeInvalid {
				t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
			}
		})
	}
}
