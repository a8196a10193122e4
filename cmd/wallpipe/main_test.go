package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/wallpipe/internal/app"
	"github.com/John-Robertt/wallpipe/internal/config"
	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/store"
)

// setupEnv 把 provider 指向本地假上游，并清掉可能来自外部环境的存储配置。
func setupEnv(t *testing.T) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1920, 1080))))
	img := buf.Bytes()

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/photos/random", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `[{"alt_description":"Quiet lake","width":1920,"height":1080,"user":{"name":"Ada"},"urls":{"full":"%s/img.png"}}]`, srv.URL)
	})
	mux.HandleFunc("/img.png", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write(img) })
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	t.Setenv("UNSPLASH_KEY", "k")
	t.Setenv("UNSPLASH_BASE_URL", srv.URL)
	t.Setenv("PEXELS_BASE_URL", "http://127.0.0.1:1")
	t.Setenv("PIXABAY_BASE_URL", "http://127.0.0.1:1")
	t.Setenv("TEMP_DIR", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("LOG_LEVEL", "error")
}

func execute(t *testing.T, stores app.Stores, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	c := newCLI(&stdout, &stderr)
	c.stores = stores
	cmd := c.root()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestCLI_FetchPrintsSingleJSON(t *testing.T) {
	setupEnv(t)
	out := filepath.Join(t.TempDir(), "last.json")

	stdout, err := execute(t, app.Stores{}, "fetch", "Lake!!", "--out", out)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	var res fetchResult
	dec := json.NewDecoder(bytes.NewReader([]byte(stdout)))
	require.NoError(t, dec.Decode(&res))
	assert.False(t, dec.More(), "stdout 只能有一个 JSON 对象")

	assert.Equal(t, "lake", res.Category)
	require.NotNil(t, res.Record)
	assert.Equal(t, "Unsplash", res.Record.SourceName)
	assert.Equal(t, "Quiet lake", res.Record.Title)
	require.Len(t, res.Attempts, 1)

	saved, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(saved), `"Quiet lake"`)
}

func TestCLI_ScheduleLifecycle(t *testing.T) {
	setupEnv(t)
	stores := app.Stores{Quota: store.NewMemoryQuotaStore(), Schedule: store.NewMemoryScheduleStore()}

	_, err := execute(t, stores, "schedule", "add", "chat-1", "daily", "Ocean Waves")
	require.NoError(t, err)
	_, err = execute(t, stores, "schedule", "add", "chat-1", "daily", "forest")
	require.NoError(t, err)

	stdout, err := execute(t, stores, "schedule", "list")
	require.NoError(t, err)
	var entries []domain.ScheduleEntry
	require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
	require.Len(t, entries, 1, "同一目的地与间隔只保留一条 active 计划")
	assert.Equal(t, "forest", entries[0].Category)

	_, err = execute(t, stores, "schedule", "remove", "chat-1", "daily")
	require.NoError(t, err)
	_, err = execute(t, stores, "schedule", "remove", "chat-1", "daily")
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)

	_, err = execute(t, stores, "schedule", "add", "chat-1", "weekly")
	assert.Error(t, err)
}

func TestCLI_QuotaSetTierAndShow(t *testing.T) {
	setupEnv(t)
	stores := app.Stores{Quota: store.NewMemoryQuotaStore(), Schedule: store.NewMemoryScheduleStore()}

	_, err := execute(t, stores, "quota", "set-tier", "u1", "premium")
	require.NoError(t, err)

	stdout, err := execute(t, stores, "quota", "show", "u1")
	require.NoError(t, err)
	var v quotaView
	require.NoError(t, json.Unmarshal([]byte(stdout), &v))
	assert.Equal(t, domain.TierUnlimited, v.State.Tier)
	assert.False(t, v.Decision.Limited)

	_, err = execute(t, stores, "quota", "set-tier", "u1", "unlimited", "--until", "yesterday")
	assert.Error(t, err)
}

func TestCLI_QuotaBanAndUnban(t *testing.T) {
	setupEnv(t)
	stores := app.Stores{Quota: store.NewMemoryQuotaStore(), Schedule: store.NewMemoryScheduleStore()}

	stdout, err := execute(t, stores, "quota", "ban", "u1")
	require.NoError(t, err)
	var st domain.QuotaState
	require.NoError(t, json.Unmarshal([]byte(stdout), &st))
	assert.True(t, st.Banned)

	stdout, err = execute(t, stores, "quota", "show", "u1")
	require.NoError(t, err)
	var v quotaView
	require.NoError(t, json.Unmarshal([]byte(stdout), &v))
	assert.True(t, v.Decision.Banned)
	assert.True(t, v.Decision.Limited)

	_, err = execute(t, stores, "quota", "unban", "u1")
	require.NoError(t, err)
	stdout, err = execute(t, stores, "quota", "show", "u1")
	require.NoError(t, err)
	v = quotaView{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &v))
	assert.False(t, v.Decision.Banned)
	assert.False(t, v.State.Banned)
}

func TestCLI_MissingConfigFile(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, app.Stores{}, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "schedule", "list")
	require.Error(t, err)
	assert.Equal(t, config.ErrCodeNotFound, config.Code(err))
}
