// Package pixabay 实现 Pixabay 图片搜索 API 的适配。
package pixabay

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/provider"
)

const DefaultEndpoint = "https://pixabay.com/api/"

// Provider 的字段映射：
//   - title: tags 的第一个标签
//   - width/height: imageWidth/imageHeight
//   - author: user
//   - preview: fullHDURL（需要完整 API 权限），否则 largeImageURL
//   - download: imageURL，否则 largeImageURL
//
// 取前 3 条结果中第一条满足最小分辨率的。
type Provider struct {
	base provider.Base
}

func New(opt provider.Options) *Provider {
	if strings.TrimSpace(opt.Endpoint) == "" {
		opt.Endpoint = DefaultEndpoint
	}
	return &Provider{base: provider.NewBase("Pixabay", http.StatusTooManyRequests, opt)}
}

func (p *Provider) Name() string { return p.base.Name() }

type hit struct {
	Tags          string `json:"tags"`
	ImageWidth    int    `json:"imageWidth"`
	ImageHeight   int    `json:"imageHeight"`
	User          string `json:"user"`
	WebformatURL  string `json:"webformatURL"`
	LargeImageURL string `json:"largeImageURL"`
	FullHDURL     string `json:"fullHDURL"`
	ImageURL      string `json:"imageURL"`
}

type searchResponse struct {
	Hits []hit `json:"hits"`
}

func (p *Provider) Fetch(ctx context.Context, category string) provider.Result {
	if r, ok := p.base.Precheck(); !ok {
		return r
	}

	q := url.Values{}
	q.Set("key", p.base.Key)
	q.Set("q", category)
	q.Set("image_type", "photo")
	q.Set("orientation", "horizontal")
	q.Set("safesearch", "true")
	q.Set("min_width", strconv.Itoa(p.base.Policy.MinWidth))
	q.Set("min_height", strconv.Itoa(p.base.Policy.MinHeight))
	q.Set("order", "popular")
	q.Set("per_page", "3")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return p.base.Fail(err)
	}

	var sr searchResponse
	if r, ok := p.base.Exchange(ctx, req, &sr); !ok {
		return r
	}

	for _, h := range sr.Hits {
		if h.ImageWidth < p.base.Policy.MinWidth || h.ImageHeight < p.base.Policy.MinHeight {
			continue
		}
		return p.base.Build(domain.RawContent{
			Title:       firstTag(h.Tags),
			Width:       h.ImageWidth,
			Height:      h.ImageHeight,
			Author:      h.User,
			PreviewURL:  firstNonEmpty(h.FullHDURL, h.LargeImageURL),
			DownloadURL: firstNonEmpty(h.ImageURL, h.LargeImageURL),
		})
	}
	return p.base.Empty(category)
}

func firstTag(tags string) string {
	t, _, _ := strings.Cut(tags, ",")
	return strings.TrimSpace(t)
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
