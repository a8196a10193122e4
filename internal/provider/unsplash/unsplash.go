// Package unsplash 实现 Unsplash 随机图片 API 的适配。
package unsplash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/provider"
)

const DefaultEndpoint = "https://api.unsplash.com/photos/random"

// Provider 的字段映射：
//   - title: alt_description（为空回退 description）
//   - width/height: width/height
//   - author: user.name
//   - preview: urls.full（regular 只有 1080 宽，达不到最小分辨率）
//   - download: urls.raw
//
// Unsplash 配额耗尽时返回 403。
type Provider struct {
	base provider.Base
}

func New(opt provider.Options) *Provider {
	if strings.TrimSpace(opt.Endpoint) == "" {
		opt.Endpoint = DefaultEndpoint
	}
	return &Provider{base: provider.NewBase("Unsplash", http.StatusForbidden, opt)}
}

func (p *Provider) Name() string { return p.base.Name() }

type photo struct {
	AltDescription string `json:"alt_description"`
	Description    string `json:"description"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	User           struct {
		Name string `json:"name"`
	} `json:"user"`
	URLs struct {
		Raw     string `json:"raw"`
		Full    string `json:"full"`
		Regular string `json:"regular"`
	} `json:"urls"`
}

func (p *Provider) Fetch(ctx context.Context, category string) provider.Result {
	if r, ok := p.base.Precheck(); !ok {
		return r
	}

	q := url.Values{}
	q.Set("query", category)
	q.Set("orientation", "landscape")
	q.Set("content_filter", "high")
	q.Set("count", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return p.base.Fail(err)
	}
	req.Header.Set("Authorization", "Client-ID "+p.base.Key)
	req.Header.Set("Accept-Version", "v1")

	var raw json.RawMessage
	if r, ok := p.base.Exchange(ctx, req, &raw); !ok {
		return r
	}

	photos, err := decodePhotos(raw)
	if err != nil {
		return p.base.Fail(fmt.Errorf("解析 photo 失败：%w", err))
	}
	if len(photos) == 0 {
		return p.base.Empty(category)
	}

	ph := photos[0]
	title := ph.AltDescription
	if strings.TrimSpace(title) == "" {
		title = ph.Description
	}
	return p.base.Build(domain.RawContent{
		Title:       title,
		Width:       ph.Width,
		Height:      ph.Height,
		Author:      ph.User.Name,
		PreviewURL:  ph.URLs.Full,
		DownloadURL: ph.URLs.Raw,
	})
}

// decodePhotos 兼容两种形态：带 count 参数时是数组，否则是单个对象。
func decodePhotos(raw json.RawMessage) ([]photo, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var out []photo
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var one photo
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []photo{one}, nil
}
