package unsplash

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/infra/logx"
	"github.com/John-Robertt/wallpipe/internal/provider"
)

var hd = domain.SizePolicy{MinWidth: 1920, MinHeight: 1080}

const photoJSON = `[{
  "alt_description": "green mountains under blue sky",
  "width": 5472, "height": 3648,
  "user": {"name": "Alex Smith"},
  "urls": {"raw": "https://images.unsplash.test/raw", "full": "https://images.unsplash.test/full", "regular": "https://images.unsplash.test/regular"}
}]`

func TestFetch_MapsFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Client-ID k1", r.Header.Get("Authorization"))
		assert.Equal(t, "v1", r.Header.Get("Accept-Version"))
		assert.Equal(t, "nature", r.URL.Query().Get("query"))
		assert.Equal(t, "landscape", r.URL.Query().Get("orientation"))
		_, _ = w.Write([]byte(photoJSON))
	}))
	defer srv.Close()

	p := New(provider.Options{Key: "k1", Endpoint: srv.URL, Client: srv.Client(), Policy: hd})
	res := p.Fetch(context.Background(), "nature")
	require.True(t, res.OK(), "期望 OK，实际 %v: %v", res.Status, res.Err)

	rec := res.Record
	assert.Equal(t, "green mountains under blue sky", rec.Title)
	assert.Equal(t, 5472, rec.Width)
	assert.Equal(t, 3648, rec.Height)
	assert.Equal(t, "Alex Smith", rec.Author)
	assert.Equal(t, "Unsplash", rec.SourceName)
	assert.Equal(t, "https://images.unsplash.test/full", rec.PreviewURL)
	assert.Equal(t, "https://images.unsplash.test/raw", rec.DownloadURL)
}

func TestFetch_SingleObjectAndDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"width": 1920, "height": 1080, "urls": {"full": "https://i.test/f"}}`))
	}))
	defer srv.Close()

	p := New(provider.Options{Key: "k", Endpoint: srv.URL, Client: srv.Client(), Policy: hd})
	res := p.Fetch(context.Background(), "city")
	require.True(t, res.OK())
	assert.Equal(t, domain.DefaultTitle, res.Record.Title)
	assert.Equal(t, domain.DefaultAuthor, res.Record.Author)
}

func TestFetch_NoCredentialSkipsNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	p := New(provider.Options{Endpoint: srv.URL, Client: srv.Client(), Policy: hd})
	res := p.Fetch(context.Background(), "nature")
	assert.Equal(t, provider.StatusUnavailable, res.Status)
	assert.ErrorIs(t, res.Err, provider.ErrNoCredential)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestFetch_RateLimitWarnsAndCoolsDown(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	log, logs := logx.NewObserved(zapcore.DebugLevel)
	p := New(provider.Options{
		Key: "k", Endpoint: srv.URL, Client: srv.Client(), Policy: hd,
		Log: log, Guard: provider.NewGuard(0, 1, time.Minute),
	})

	res := p.Fetch(context.Background(), "nature")
	assert.Equal(t, provider.StatusRateLimited, res.Status)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())

	// 冷却期内不再发请求。
	res = p.Fetch(context.Background(), "nature")
	assert.Equal(t, provider.StatusRateLimited, res.Status)
	assert.ErrorIs(t, res.Err, provider.ErrCoolingDown)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetch_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	log, logs := logx.NewObserved(zapcore.DebugLevel)
	p := New(provider.Options{Key: "k", Endpoint: srv.URL, Client: srv.Client(), Policy: hd, Log: log})
	res := p.Fetch(context.Background(), "nature")

	assert.Equal(t, provider.StatusUnavailable, res.Status)
	var he *provider.HTTPStatusError
	require.ErrorAs(t, res.Err, &he)
	assert.Equal(t, http.StatusInternalServerError, he.StatusCode)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestFetch_TimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := srv.Client()
	c.Timeout = 50 * time.Millisecond
	p := New(provider.Options{Key: "k", Endpoint: srv.URL, Client: c, Policy: hd})

	res := p.Fetch(context.Background(), "nature")
	assert.Equal(t, provider.StatusUnavailable, res.Status)
	assert.Error(t, res.Err)
}

func TestFetch_LowResolutionIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"width": 1280, "height": 720, "urls": {"full": "https://i.test/f"}}]`))
	}))
	defer srv.Close()

	p := New(provider.Options{Key: "k", Endpoint: srv.URL, Client: srv.Client(), Policy: hd})
	res := p.Fetch(context.Background(), "nature")
	assert.Equal(t, provider.StatusUnavailable, res.Status)
	assert.ErrorIs(t, res.Err, domain.ErrRecordInvalid)
}

func TestFetch_UnexpectedShapeLogsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"width": "wide", "height": 1080}]`))
	}))
	defer srv.Close()

	log, logs := logx.NewObserved(zapcore.DebugLevel)
	p := New(provider.Options{Key: "k", Endpoint: srv.URL, Client: srv.Client(), Policy: hd, Log: log})
	res := p.Fetch(context.Background(), "nature")

	assert.Equal(t, provider.StatusUnavailable, res.Status)
	assert.Error(t, res.Err)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestFetch_BadEndpointDoesNotLeakKey(t *testing.T) {
	log, logs := logx.NewObserved(zapcore.DebugLevel)
	p := New(provider.Options{Key: "secret-key", Endpoint: "http://[::1", Policy: hd, Log: log})
	res := p.Fetch(context.Background(), "nature")

	assert.Equal(t, provider.StatusUnavailable, res.Status)
	require.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	assert.NotContains(t, res.Err.Error(), "nature")
}
