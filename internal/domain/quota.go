package domain

import (
	"fmt"
	"strings"
	"time"
)

// Tier 是消费者的额度等级。
type Tier string

const (
	TierFree      Tier = "free"
	TierUnlimited Tier = "unlimited"
)

// ParseTier 接受 free/unlimited（以及原系统里的 premium 作为 unlimited 的别名）。
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free", "":
		return TierFree, nil
	case "unlimited", "premium":
		return TierUnlimited, nil
	default:
		return "", fmt.Errorf("未知 tier：%q", s)
	}
}

// QuotaState 是单个消费者的额度状态。
//
// 约束：
// - ConsumedCount 只有在 WindowStart == 今天（UTC）时才有意义；否则视为 0
// - Banned 优先于 Tier：被封禁的消费者即使是 Unlimited 也不能获取
type QuotaState struct {
	ConsumerID     string     `json:"consumer_id" db:"consumer_id"`
	Tier           Tier       `json:"tier" db:"tier"`
	ConsumedCount  int        `json:"consumed_count" db:"consumed_count"`
	WindowStart    time.Time  `json:"window_start" db:"window_start"`
	UnlimitedUntil *time.Time `json:"unlimited_until,omitempty" db:"unlimited_until"`
	Banned         bool       `json:"banned" db:"banned"`
}

// EffectiveTier 返回 now 时刻实际生效的 tier：过期的 unlimited 按 free 处理。
func (s QuotaState) EffectiveTier(now time.Time) Tier {
	if s.Tier != TierUnlimited {
		return TierFree
	}
	if s.UnlimitedUntil != nil && !now.Before(*s.UnlimitedUntil) {
		return TierFree
	}
	return TierUnlimited
}

// WindowIsCurrent 判断计数窗口是否就是 now 所在的 UTC 日期。
func (s QuotaState) WindowIsCurrent(now time.Time) bool {
	return !s.WindowStart.IsZero() && DateOf(s.WindowStart).Equal(DateOf(now))
}

// DateOf 把 t 截断为 UTC 日期（00:00:00）。
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
