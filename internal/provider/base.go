package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/infra/logx"
)

// maxResponseBytes 是 provider JSON 响应的读取上限。
const maxResponseBytes = 4 << 20

// Options 是各 provider 共用的构造参数（由 app 层按配置注入）。
type Options struct {
	// Key 为空时 provider 视为禁用。
	Key string
	// Endpoint 为空时使用 provider 的默认地址（测试中指向 httptest.Server）。
	Endpoint string
	Client   *http.Client
	Guard    *Guard
	Log      logx.Logger
	Policy   domain.SizePolicy
}

// Base 封装“凭证检查 + 限流冷却 + HTTP 状态分类 + 记录构造”这些跨 provider 的共性。
type Base struct {
	Source string // 展示名，同时写入 ContentRecord.SourceName
	// RateLimitStatus 是该 provider 表示“配额耗尽/限流”的状态码（Unsplash 用 403，其他用 429）。
	RateLimitStatus int
	// Keyless 表示该 provider 不需要凭证，以 Endpoint 是否配置决定是否启用。
	Keyless bool

	Options
}

func NewBase(source string, rateLimitStatus int, opt Options) Base {
	if opt.Log == nil {
		opt.Log = logx.NewNop()
	}
	if opt.Client == nil {
		opt.Client = http.DefaultClient
	}
	opt.Log = opt.Log.With(logx.String("provider", strings.ToLower(source)))
	return Base{Source: source, RateLimitStatus: rateLimitStatus, Options: opt}
}

func (b *Base) Name() string { return strings.ToLower(b.Source) }

func (b *Base) Enabled() bool {
	if b.Keyless {
		return strings.TrimSpace(b.Endpoint) != ""
	}
	return strings.TrimSpace(b.Key) != ""
}

// Precheck 在发请求之前调用：未配置凭证或处于冷却期时返回非 OK 的 Result。
func (b *Base) Precheck() (Result, bool) {
	if !b.Enabled() {
		b.Log.Debug("provider 未配置凭证，跳过")
		return Unavailable(ErrNoCredential), false
	}
	if !b.Guard.Allow() {
		b.Log.Warn("provider 处于限流冷却期，跳过")
		return RateLimited(ErrCoolingDown), false
	}
	return Result{}, true
}

// Exchange 执行一次请求并把 2xx JSON 解码到 out。
// ok=false 时返回已分类并已记录日志的 Result（限流=Warn，其他=Error）。
func (b *Base) Exchange(ctx context.Context, req *http.Request, out any) (Result, bool) {
	body, status, err := b.do(ctx, req)
	if err != nil {
		return b.fail(err), false
	}
	if status == b.RateLimitStatus || status == http.StatusTooManyRequests {
		b.Guard.Trip()
		err := &HTTPStatusError{URL: safeURL(req.URL), StatusCode: status}
		b.Log.Warn("provider 限流", logx.Int("status", status))
		return RateLimited(err), false
	}
	if status < 200 || status > 299 {
		return b.fail(&HTTPStatusError{URL: safeURL(req.URL), StatusCode: status, Body: snippet(body)}), false
	}
	if err := json.Unmarshal(body, out); err != nil {
		return b.fail(fmt.Errorf("解析响应 JSON 失败：%w", err)), false
	}
	return Result{}, true
}

// Do 执行请求并返回原始响应体（用于非 JSON 的 provider）。语义同 Exchange。
func (b *Base) Do(ctx context.Context, req *http.Request) ([]byte, Result, bool) {
	body, status, err := b.do(ctx, req)
	if err != nil {
		return nil, b.fail(err), false
	}
	if status == b.RateLimitStatus || status == http.StatusTooManyRequests {
		b.Guard.Trip()
		b.Log.Warn("provider 限流", logx.Int("status", status))
		return nil, RateLimited(&HTTPStatusError{URL: safeURL(req.URL), StatusCode: status}), false
	}
	if status < 200 || status > 299 {
		return nil, b.fail(&HTTPStatusError{URL: safeURL(req.URL), StatusCode: status, Body: snippet(body)}), false
	}
	return body, Result{}, true
}

// Build 把映射结果校验为 ContentRecord；不满足约束时视为 Unavailable。
func (b *Base) Build(raw domain.RawContent) Result {
	raw.SourceName = b.Source
	rec, err := domain.NewContentRecord(raw, b.Policy)
	if err != nil {
		b.Log.Warn("provider 返回的记录不满足约束", logx.Err(err))
		return Unavailable(err)
	}
	return OK(rec)
}

// Empty 记录“正常响应但无结果”。
func (b *Base) Empty(category string) Result {
	b.Log.Info("provider 没有匹配结果", logx.String("category", category))
	return Unavailable(ErrNoResult)
}

func (b *Base) do(ctx context.Context, req *http.Request) ([]byte, int, error) {
	resp, err := b.Client.Do(req.WithContext(ctx))
	if err != nil {
		// url.Error 会带上完整 URL（可能含 key 参数），日志前先脱敏。
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = safeURL(req.URL)
		}
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// Fail 把 provider 内部的失败（构造请求、解析响应）记为 Error 日志并返回 Unavailable。
func (b *Base) Fail(err error) Result {
	// 构造请求失败时 url.Error 可能带着含 key 的 query。
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL, _, _ = strings.Cut(ue.URL, "?")
	}
	return b.fail(err)
}

func (b *Base) fail(err error) Result {
	if errors.Is(err, context.Canceled) {
		b.Log.Warn("provider 请求被取消", logx.Err(err))
	} else {
		b.Log.Error("provider 请求失败", logx.Err(err))
	}
	return Unavailable(err)
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max]
	}
	return s
}

// safeURL 去掉 query 与 userinfo，避免凭证进入日志。
func safeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.User = nil
	c.RawQuery = ""
	c.Fragment = ""
	return c.String()
}
