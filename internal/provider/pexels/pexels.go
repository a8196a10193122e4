// Package pexels 实现 Pexels 搜索 API 的适配。
package pexels

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/provider"
)

const DefaultEndpoint = "https://api.pexels.com/v1/search"

// Provider 的字段映射：
//   - title: alt
//   - width/height: width/height
//   - author: photographer
//   - preview: src.original（large 只有 940 宽）
//   - download: src.original
type Provider struct {
	base provider.Base
}

func New(opt provider.Options) *Provider {
	if strings.TrimSpace(opt.Endpoint) == "" {
		opt.Endpoint = DefaultEndpoint
	}
	return &Provider{base: provider.NewBase("Pexels", http.StatusTooManyRequests, opt)}
}

func (p *Provider) Name() string { return p.base.Name() }

type searchResponse struct {
	Photos []struct {
		Alt          string `json:"alt"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		Photographer string `json:"photographer"`
		Src          struct {
			Original string `json:"original"`
			Large2x  string `json:"large2x"`
			Large    string `json:"large"`
		} `json:"src"`
	} `json:"photos"`
}

func (p *Provider) Fetch(ctx context.Context, category string) provider.Result {
	if r, ok := p.base.Precheck(); !ok {
		return r
	}

	q := url.Values{}
	q.Set("query", category)
	q.Set("orientation", "landscape")
	q.Set("per_page", "1")
	q.Set("page", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return p.base.Fail(err)
	}
	req.Header.Set("Authorization", p.base.Key)

	var sr searchResponse
	if r, ok := p.base.Exchange(ctx, req, &sr); !ok {
		return r
	}
	if len(sr.Photos) == 0 {
		return p.base.Empty(category)
	}

	ph := sr.Photos[0]
	return p.base.Build(domain.RawContent{
		Title:       ph.Alt,
		Width:       ph.Width,
		Height:      ph.Height,
		Author:      ph.Photographer,
		PreviewURL:  ph.Src.Original,
		DownloadURL: ph.Src.Original,
	})
}
