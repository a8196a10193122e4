package pexels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/provider"
)

var hd = domain.SizePolicy{MinWidth: 1920, MinHeight: 1080}

func TestFetch_MapsFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pk", r.Header.Get("Authorization"))
		assert.Equal(t, "sunset", r.URL.Query().Get("query"))
		assert.Equal(t, "1", r.URL.Query().Get("per_page"))
		_, _ = w.Write([]byte(`{"photos":[{"alt":"Sunset over sea","width":6000,"height":4000,"photographer":"Kim",
			"src":{"original":"https://images.pexels.test/o.jpg","large2x":"https://images.pexels.test/l2.jpg","large":"https://images.pexels.test/l.jpg"}}]}`))
	}))
	defer srv.Close()

	p := New(provider.Options{Key: "pk", Endpoint: srv.URL, Client: srv.Client(), Policy: hd})
	res := p.Fetch(context.Background(), "sunset")
	require.True(t, res.OK(), "期望 OK，实际 %v: %v", res.Status, res.Err)

	assert.Equal(t, domain.ContentRecord{
		Title:       "Sunset over sea",
		Width:       6000,
		Height:      4000,
		Author:      "Kim",
		SourceName:  "Pexels",
		PreviewURL:  "https://images.pexels.test/o.jpg",
		DownloadURL: "https://images.pexels.test/o.jpg",
	}, res.Record)
}

func TestFetch_EmptyPhotos(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"photos":[]}`))
	}))
	defer srv.Close()

	p := New(provider.Options{Key: "pk", Endpoint: srv.URL, Client: srv.Client(), Policy: hd})
	res := p.Fetch(context.Background(), "nature")
	assert.Equal(t, provider.StatusUnavailable, res.Status)
	assert.ErrorIs(t, res.Err, provider.ErrNoResult)
}

func TestFetch_429IsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := New(provider.Options{Key: "pk", Endpoint: srv.URL, Client: srv.Client(), Policy: hd})
	res := p.Fetch(context.Background(), "nature")
	assert.Equal(t, provider.StatusRateLimited, res.Status)
}

func TestFetch_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	p := New(provider.Options{Key: "pk", Endpoint: srv.URL, Client: srv.Client(), Policy: hd})
	res := p.Fetch(context.Background(), "nature")
	assert.Equal(t, provider.StatusUnavailable, res.Status)
}
