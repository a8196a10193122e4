// Package opengraph 从运营方配置的网页中读取 Open Graph 图片元数据。
//
// 用于接入没有 JSON API 的图源：页面只要输出 og:image 及其尺寸即可。
package opengraph

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/provider"
)

// Placeholder 是 URL 模板中被替换为类别的占位符。
const Placeholder = "{category}"

// Provider 的字段映射：
//   - title: og:title（为空回退 <title>）
//   - width/height: og:image:width / og:image:height（缺失即视为无结果）
//   - author: article:author / meta[name=author]，否则 og:site_name
//   - preview: og:image（相对地址按页面 URL 解析）
//   - download: og:image:secure_url
//
// 不需要凭证：Endpoint（URL 模板）为空时禁用。
type Provider struct {
	base provider.Base
}

// New 的 opt.Endpoint 是页面 URL 模板，例如 https://gallery.example.com/t/{category}。
// opt.Key 被忽略。
func New(source string, opt provider.Options) *Provider {
	if strings.TrimSpace(source) == "" {
		source = "OpenGraph"
	}
	b := provider.NewBase(source, http.StatusTooManyRequests, opt)
	b.Keyless = true
	return &Provider{base: b}
}

func (p *Provider) Name() string { return p.base.Name() }

func (p *Provider) Fetch(ctx context.Context, category string) provider.Result {
	if r, ok := p.base.Precheck(); !ok {
		return r
	}

	pageURL := PageURL(p.base.Endpoint, category)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return p.base.Fail(err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	body, r, ok := p.base.Do(ctx, req)
	if !ok {
		return r
	}

	raw, err := Parse(body, pageURL)
	if err != nil {
		if errors.Is(err, errNoImage) {
			return p.base.Empty(category)
		}
		return p.base.Fail(err)
	}
	return p.base.Build(raw)
}

// PageURL 把类别代入 URL 模板；模板不含占位符时作为 query 参数 q 追加。
func PageURL(tmpl, category string) string {
	tmpl = strings.TrimSpace(tmpl)
	if strings.Contains(tmpl, Placeholder) {
		return strings.ReplaceAll(tmpl, Placeholder, url.QueryEscape(category))
	}
	sep := "?"
	if strings.Contains(tmpl, "?") {
		sep = "&"
	}
	return tmpl + sep + "q=" + url.QueryEscape(category)
}

var errNoImage = errors.New("页面没有可用的 og:image")

// Parse 是纯函数：相同输入 => 相同输出。SourceName 由调用方填写。
func Parse(html []byte, pageURL string) (domain.RawContent, error) {
	if len(html) == 0 {
		return domain.RawContent{}, errors.New("html 为空")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return domain.RawContent{}, err
	}

	meta := map[string]string{}
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key, ok := s.Attr("property")
		if !ok || strings.TrimSpace(key) == "" {
			key, _ = s.Attr("name")
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return
		}
		if _, seen := meta[key]; seen {
			// 同名标签以第一个为准（og:image 可能出现多次）。
			return
		}
		content, _ := s.Attr("content")
		meta[key] = strings.TrimSpace(content)
	})

	image := firstNonEmpty(meta["og:image"], meta["og:image:url"])
	if image == "" {
		return domain.RawContent{}, errNoImage
	}
	w := atoi(meta["og:image:width"])
	h := atoi(meta["og:image:height"])
	if w <= 0 || h <= 0 {
		return domain.RawContent{}, errNoImage
	}

	title := meta["og:title"]
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	return domain.RawContent{
		Title:       title,
		Width:       w,
		Height:      h,
		Author:      firstNonEmpty(meta["article:author"], meta["author"], meta["og:site_name"]),
		PreviewURL:  resolveURL(pageURL, image),
		DownloadURL: resolveURL(pageURL, meta["og:image:secure_url"]),
	}, nil
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
