package httpx

import (
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultProviderTimeout 是单次 provider API 调用的总超时。
	DefaultProviderTimeout = 30 * time.Second
	// DefaultImageTimeout 是校验阶段下载图片的总超时。
	DefaultImageTimeout = 60 * time.Second

	// UserAgent 是调用 provider API 时使用的固定 UA。
	UserAgent = "wallpipe/1.0"
)

// Transport 把“UA 策略 + 代理 + keep-alive 策略”固化为统一策略。
//
// 约束：不做重试。一次获取内同一 provider 只尝试一次，失败交给下一个 provider。
type Transport struct {
	Base *http.Transport

	// ua 为空时使用固定 UserAgent；非空时每个请求随机取一个浏览器 UA（用于抓取网页）。
	ua *uaPool

	// DisableKeepAlives 决定是否对 Request 设置 Close=true（额外保险）。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// Clone：避免在 RoundTripper 内部“污染”调用方的 request。
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		if t.ua != nil {
			r.Header.Set("User-Agent", t.ua.random())
		} else {
			r.Header.Set("User-Agent", UserAgent)
		}
	}
	if t.DisableKeepAlives {
		r.Close = true
	}
	return t.Base.RoundTrip(r)
}

// NewProviderClient 构造调用 provider JSON API 的 client（固定 UA）。
// timeout<=0 时使用 DefaultProviderTimeout。
func NewProviderClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return newClient(strings.TrimSpace(proxyURL), nil, timeout)
}

// NewPageClient 构造抓取普通网页的 client（浏览器 UA 池）。
func NewPageClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return newClient(strings.TrimSpace(proxyURL), globalUA, timeout)
}

// NewImageClient 构造下载图片用于校验的 client。
//
// 规则：
// - imageProxy=false：图片直连（忽略 proxyURL）
// - imageProxy=true：图片走 proxyURL
func NewImageClient(proxyURL string, imageProxy bool, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultImageTimeout
	}
	if !imageProxy {
		return newClient("", nil, timeout)
	}
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return nil, errors.New("image_proxy=true 但 proxy_url 为空")
	}
	return newClient(proxyURL, nil, timeout)
}

func newClient(proxyURL string, ua *uaPool, timeout time.Duration) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConnsPerHost:   4,
	}

	disableKeepAlives := false
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy_url 必须包含 scheme 与 host")
		}
		base.Proxy = http.ProxyURL(u)
		// proxy 模式强制每请求新连接（代理池轮换依赖该行为）。
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	return &http.Client{
		Transport: &Transport{
			Base:              base,
			ua:                ua,
			DisableKeepAlives: disableKeepAlives,
		},
		Timeout: timeout,
	}, nil
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
