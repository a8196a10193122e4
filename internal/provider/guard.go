package provider

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCooldown 是收到限流状态码后暂停调用该 provider 的时长。
const DefaultCooldown = 60 * time.Second

// Guard 控制单个 provider 的出站节奏：
// - 本地限速（rate.Limiter），避免把 provider 的配额打光
// - 收到限流响应后进入冷却期，冷却期内不再发请求（不会“立即重试同一 provider”）
//
// Guard 并发安全。
type Guard struct {
	lim      *rate.Limiter
	cooldown time.Duration
	now      func() time.Time

	mu    sync.Mutex
	until time.Time
}

// NewGuard：rps<=0 表示不做本地限速；cooldown<=0 使用 DefaultCooldown。
func NewGuard(rps float64, burst int, cooldown time.Duration) *Guard {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Guard{
		lim:      rate.NewLimiter(limit, burst),
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Allow 判断本次是否允许发请求。nil Guard 总是允许。
func (g *Guard) Allow() bool {
	if g == nil {
		return true
	}
	now := g.now()
	g.mu.Lock()
	cooling := now.Before(g.until)
	g.mu.Unlock()
	if cooling {
		return false
	}
	return g.lim.AllowN(now, 1)
}

// Trip 在收到限流响应时调用：从 now 起进入冷却期。
func (g *Guard) Trip() {
	if g == nil {
		return
	}
	now := g.now()
	g.mu.Lock()
	g.until = now.Add(g.cooldown)
	g.mu.Unlock()
}

// CoolingUntil 返回冷却截止时间（零值表示未冷却过）。
func (g *Guard) CoolingUntil() time.Time {
	if g == nil {
		return time.Time{}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.until
}
