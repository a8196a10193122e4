package provider

import (
	"context"
	"errors"

	"github.com/John-Robertt/wallpipe/internal/domain"
)

// Adapter 把“外部图源的差异”限制在 provider 包内部；核心流程只依赖统一接口与 ContentRecord。
//
// 约束：
// - Fetch 从不 panic、从不向调用方返回 error：所有失败都折叠为 Unavailable/RateLimited
// - Fetch 不做缓存、不做重试
// - 缺少凭证时立即返回 Unavailable，不发起网络请求
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, category string) Result
}

// Status 是一次 Fetch 的结果标签。
type Status int

const (
	StatusOK Status = iota
	StatusUnavailable
	StatusRateLimited
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnavailable:
		return "unavailable"
	case StatusRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Result 是 Fetch 的带标签结果：Status==StatusOK 时 Record 有效，否则 Err 说明原因（仅用于诊断）。
type Result struct {
	Status Status
	Record domain.ContentRecord
	Err    error
}

func (r Result) OK() bool { return r.Status == StatusOK }

func OK(rec domain.ContentRecord) Result { return Result{Status: StatusOK, Record: rec} }

func Unavailable(err error) Result { return Result{Status: StatusUnavailable, Err: err} }

func RateLimited(err error) Result { return Result{Status: StatusRateLimited, Err: err} }

var (
	// ErrNoCredential 表示 provider 未配置凭证（视为禁用）。
	ErrNoCredential = errors.New("provider 未配置凭证")
	// ErrNoResult 表示 provider 正常响应但没有可用结果。
	ErrNoResult = errors.New("provider 没有返回可用结果")
	// ErrCoolingDown 表示 provider 处于限流冷却期或本地限速，本次不发请求。
	ErrCoolingDown = errors.New("provider 处于限流冷却期")
)
