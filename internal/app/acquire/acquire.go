// Package acquire 按固定优先级依次尝试各图源，返回第一条通过校验的 ContentRecord。
package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/John-Robertt/wallpipe/internal/category"
	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/infra/logx"
	"github.com/John-Robertt/wallpipe/internal/provider"
)

// Validator 是 Coordinator 对内容校验的最小依赖（*validate.Validator 满足该接口）。
type Validator interface {
	Validate(ctx context.Context, url string) bool
}

// Stage 标记一次尝试停在哪一步。
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageValidate Stage = "validate"
)

// Outcome 是单次尝试的结论。
type Outcome string

const (
	OutcomeAccepted    Outcome = "accepted"
	OutcomeRejected    Outcome = "rejected"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeCancelled   Outcome = "cancelled"
)

// Attempt 记录对某个 provider 的一次尝试（用于诊断、指标与 CLI 输出）。
type Attempt struct {
	Provider string        `json:"provider"`
	Stage    Stage         `json:"stage"`
	Outcome  Outcome       `json:"outcome"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Observer 把“每次尝试/最终结果”从获取流程中解耦出来。
//
// 约束：
// - 实现必须并发安全：按需获取与定时任务可能同时调用
// - 回调不应阻塞
type Observer interface {
	OnAttempt(category string, a Attempt)
	OnResult(category string, rec domain.ContentRecord, err error)
}

type Options struct {
	Registry  provider.Registry
	Validator Validator
	Log       logx.Logger
	Observer  Observer
}

type Coordinator struct {
	reg provider.Registry
	val Validator
	log logx.Logger
	obs Observer
}

func New(opt Options) (*Coordinator, error) {
	if opt.Validator == nil {
		return nil, errors.New("validator 不能为空")
	}
	if opt.Log == nil {
		opt.Log = logx.NewNop()
	}
	return &Coordinator{reg: opt.Registry, val: opt.Validator, log: opt.Log, obs: opt.Observer}, nil
}

// Acquire 归一化 rawCategory 后按优先级尝试各 provider。
//
// 约束：
// - 每个 provider 最多尝试一次，不重试
// - 第一个 OK 且预览地址通过校验的记录立即返回，后续 provider 不再调用
// - 全部失败返回 domain.ErrAcquisitionExhausted；调用方取消时同样返回它（并包裹 ctx.Err()）
func (c *Coordinator) Acquire(ctx context.Context, rawCategory string) (domain.ContentRecord, error) {
	rec, _, err := c.AcquireTrace(ctx, rawCategory)
	return rec, err
}

// AcquireTrace 与 Acquire 相同，但额外返回尝试轨迹。
func (c *Coordinator) AcquireTrace(ctx context.Context, rawCategory string) (domain.ContentRecord, []Attempt, error) {
	cat := category.Normalize(rawCategory)
	log := c.log.With(logx.String("category", cat))

	rec, trace, err := c.run(ctx, cat, log)
	if err != nil {
		log.Warn("所有图源均未获取到可用图片", logx.Int("attempts", len(trace)), logx.Err(err))
	} else {
		log.Info("获取图片成功",
			logx.String("source", rec.SourceName),
			logx.Int("width", rec.Width),
			logx.Int("height", rec.Height),
		)
	}
	if c.obs != nil {
		c.obs.OnResult(cat, rec, err)
	}
	return rec, trace, err
}

func (c *Coordinator) run(ctx context.Context, cat string, log logx.Logger) (domain.ContentRecord, []Attempt, error) {
	adapters := c.reg.Adapters()
	trace := make([]Attempt, 0, len(adapters))

	for _, a := range adapters {
		if err := ctx.Err(); err != nil {
			trace = c.record(cat, trace, Attempt{Provider: a.Name(), Stage: StageFetch, Outcome: OutcomeCancelled, Err: err})
			return domain.ContentRecord{}, trace, cancelled(err)
		}

		start := time.Now()
		res := a.Fetch(ctx, cat)
		if !res.OK() {
			trace = c.record(cat, trace, Attempt{
				Provider: a.Name(),
				Stage:    StageFetch,
				Outcome:  fetchOutcome(res.Status),
				Err:      res.Err,
				Duration: time.Since(start),
			})
			continue
		}

		if err := ctx.Err(); err != nil {
			trace = c.record(cat, trace, Attempt{Provider: a.Name(), Stage: StageValidate, Outcome: OutcomeCancelled, Err: err})
			return domain.ContentRecord{}, trace, cancelled(err)
		}

		if !c.val.Validate(ctx, res.Record.PreviewURL) {
			log.Debug("候选图片未通过校验", logx.String("provider", a.Name()))
			trace = c.record(cat, trace, Attempt{
				Provider: a.Name(),
				Stage:    StageValidate,
				Outcome:  OutcomeRejected,
				Duration: time.Since(start),
			})
			continue
		}

		trace = c.record(cat, trace, Attempt{
			Provider: a.Name(),
			Stage:    StageValidate,
			Outcome:  OutcomeAccepted,
			Duration: time.Since(start),
		})
		return res.Record, trace, nil
	}

	return domain.ContentRecord{}, trace, fmt.Errorf("%w：category=%s，尝试 %d 个图源", domain.ErrAcquisitionExhausted, cat, len(trace))
}

func (c *Coordinator) record(cat string, trace []Attempt, a Attempt) []Attempt {
	if c.obs != nil {
		c.obs.OnAttempt(cat, a)
	}
	return append(trace, a)
}

func fetchOutcome(s provider.Status) Outcome {
	if s == provider.StatusRateLimited {
		return OutcomeRateLimited
	}
	return OutcomeUnavailable
}

func cancelled(err error) error {
	return fmt.Errorf("%w：%w", domain.ErrAcquisitionExhausted, err)
}
