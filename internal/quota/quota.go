// Package quota 执行按消费者的每日额度：Free 每个 UTC 日有固定次数，Unlimited 不受限。
package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/infra/logx"
	"github.com/John-Robertt/wallpipe/internal/store"
)

// DefaultDailyLimit 是 Free 消费者每日可获取的次数。
const DefaultDailyLimit = 5

// Unbounded 是 Unlimited 消费者的 Remaining 哨兵值。
const Unbounded = -1

// Decision 是一次额度检查的结论。Banned=true 时 Limited 也为 true。
type Decision struct {
	Limited   bool `json:"limited"`
	Remaining int  `json:"remaining"`
	Banned    bool `json:"banned,omitempty"`
}

type Options struct {
	Store      store.QuotaStore
	DailyLimit int
	// Now 为空时使用 time.Now（测试注入固定时钟）。
	Now func() time.Time
	Log logx.Logger
}

// Tracker 的所有读改写都在“消费者粒度”的锁内完成：
// 同一消费者的 CheckAndAdvance/RecordConsumption 串行，不同消费者互不阻塞。
type Tracker struct {
	store store.QuotaStore
	limit int
	now   func() time.Time
	log   logx.Logger
	locks *keyLock
}

func New(opt Options) (*Tracker, error) {
	if opt.Store == nil {
		return nil, errors.New("quota store 不能为空")
	}
	if opt.DailyLimit <= 0 {
		opt.DailyLimit = DefaultDailyLimit
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Log == nil {
		opt.Log = logx.NewNop()
	}
	return &Tracker{
		store: opt.Store,
		limit: opt.DailyLimit,
		now:   opt.Now,
		log:   opt.Log,
		locks: newKeyLock(),
	}, nil
}

func (t *Tracker) DailyLimit() int { return t.limit }

// CheckAndAdvance 判断消费者当前是否已达上限。
// 计数窗口过期（或首次使用）时会先把计数清零并持久化。
func (t *Tracker) CheckAndAdvance(ctx context.Context, consumerID string) (Decision, error) {
	id, err := normID(consumerID)
	if err != nil {
		return Decision{}, err
	}
	unlock := t.locks.Lock(id)
	defer unlock()

	now := t.now()
	st, err := t.load(ctx, id)
	if err != nil {
		return Decision{}, err
	}
	if st.Banned {
		return Decision{Limited: true, Remaining: 0, Banned: true}, nil
	}
	if st.EffectiveTier(now) == domain.TierUnlimited {
		return Decision{Limited: false, Remaining: Unbounded}, nil
	}

	if !st.WindowIsCurrent(now) {
		st.ConsumedCount = 0
		st.WindowStart = domain.DateOf(now)
		if err := t.store.Put(ctx, st); err != nil {
			return Decision{}, fmt.Errorf("重置额度窗口失败：%w", err)
		}
		t.log.Debug("额度窗口已重置", logx.String("consumer", id))
	}
	return t.decide(st), nil
}

// RecordConsumption 记一次计费消费（计数 +1）；窗口过期时先重置再计数。
// Unlimited 消费者同样计数（仅用于统计，不影响判定）。
func (t *Tracker) RecordConsumption(ctx context.Context, consumerID string) error {
	id, err := normID(consumerID)
	if err != nil {
		return err
	}
	unlock := t.locks.Lock(id)
	defer unlock()

	now := t.now()
	st, err := t.load(ctx, id)
	if err != nil {
		return err
	}
	if !st.WindowIsCurrent(now) {
		st.ConsumedCount = 0
		st.WindowStart = domain.DateOf(now)
	}
	st.ConsumedCount++
	if err := t.store.Put(ctx, st); err != nil {
		return fmt.Errorf("记录额度消费失败：%w", err)
	}
	return nil
}

// Guard 把“检查 → 执行 → 计费”串起来：封禁返回 domain.ErrConsumerBanned，超额返回
// domain.ErrQuotaExceeded，两者都不执行 fn；只有 fn 成功才计费。
//
// 约束：检查与计费之间不持锁（fn 可能很慢）；并发请求可能让当日计数略超上限。
func (t *Tracker) Guard(ctx context.Context, consumerID string, fn func(ctx context.Context) error) (Decision, error) {
	d, err := t.CheckAndAdvance(ctx, consumerID)
	if err != nil {
		return Decision{}, err
	}
	if d.Banned {
		return d, domain.ErrConsumerBanned
	}
	if d.Limited {
		return d, domain.ErrQuotaExceeded
	}
	if err := fn(ctx); err != nil {
		return d, err
	}
	if err := t.RecordConsumption(ctx, consumerID); err != nil {
		return d, err
	}
	if d.Remaining > 0 {
		d.Remaining--
	}
	return d, nil
}

// SetTier 修改消费者等级；until 非空时 Unlimited 在该时刻后失效。
func (t *Tracker) SetTier(ctx context.Context, consumerID string, tier domain.Tier, until *time.Time) (domain.QuotaState, error) {
	id, err := normID(consumerID)
	if err != nil {
		return domain.QuotaState{}, err
	}
	unlock := t.locks.Lock(id)
	defer unlock()

	st, err := t.load(ctx, id)
	if err != nil {
		return domain.QuotaState{}, err
	}
	st.Tier = tier
	st.UnlimitedUntil = nil
	if tier == domain.TierUnlimited && until != nil {
		u := until.UTC()
		st.UnlimitedUntil = &u
	}
	if err := t.store.Put(ctx, st); err != nil {
		return domain.QuotaState{}, fmt.Errorf("更新 tier 失败：%w", err)
	}
	t.log.Info("消费者 tier 已更新", logx.String("consumer", id), logx.String("tier", string(tier)))
	return st, nil
}

// SetBanned 封禁或解封消费者。解封不会恢复封禁期间的额度，计数按原窗口继续。
func (t *Tracker) SetBanned(ctx context.Context, consumerID string, banned bool) (domain.QuotaState, error) {
	id, err := normID(consumerID)
	if err != nil {
		return domain.QuotaState{}, err
	}
	unlock := t.locks.Lock(id)
	defer unlock()

	st, err := t.load(ctx, id)
	if err != nil {
		return domain.QuotaState{}, err
	}
	if st.WindowStart.IsZero() {
		st.WindowStart = domain.DateOf(t.now())
	}
	st.Banned = banned
	if err := t.store.Put(ctx, st); err != nil {
		return domain.QuotaState{}, fmt.Errorf("更新封禁状态失败：%w", err)
	}
	t.log.Info("消费者封禁状态已更新", logx.String("consumer", id), logx.Bool("banned", banned))
	return st, nil
}

// State 返回消费者当前状态（不存在时返回新建的 Free 状态，但不写入）。
func (t *Tracker) State(ctx context.Context, consumerID string) (domain.QuotaState, error) {
	id, err := normID(consumerID)
	if err != nil {
		return domain.QuotaState{}, err
	}
	unlock := t.locks.Lock(id)
	defer unlock()
	return t.load(ctx, id)
}

func (t *Tracker) load(ctx context.Context, id string) (domain.QuotaState, error) {
	st, err := t.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.QuotaState{ConsumerID: id, Tier: domain.TierFree}, nil
	}
	if err != nil {
		return domain.QuotaState{}, fmt.Errorf("读取额度状态失败：%w", err)
	}
	return st, nil
}

func (t *Tracker) decide(st domain.QuotaState) Decision {
	if st.ConsumedCount >= t.limit {
		return Decision{Limited: true, Remaining: 0}
	}
	return Decision{Limited: false, Remaining: t.limit - st.ConsumedCount}
}

func normID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("consumer id 不能为空")
	}
	return id, nil
}
