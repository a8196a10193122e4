// Package schedule 维护定时投递计划，并按计划周期触发获取与投递。
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/wallpipe/internal/category"
	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/infra/logx"
	"github.com/John-Robertt/wallpipe/internal/store"
)

// Registry 是计划条目的权威记录。
//
// 约束：
// - 同一 (destination, interval) 至多一条 active；重复注册会取代旧条目（旧条目软删除）
// - 所有读改写在同一把锁内完成，避免 MarkRun 把刚停用的条目写回 active
type Registry struct {
	store store.ScheduleStore
	log   logx.Logger
	now   func() time.Time
	newID func() string

	mu sync.Mutex
}

func NewRegistry(st store.ScheduleStore, log logx.Logger) *Registry {
	if log == nil {
		log = logx.NewNop()
	}
	return &Registry{
		store: st,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Register 创建新的 active 条目；同键已有 active 条目时先将其停用。
// 返回新条目以及被取代的旧条目（没有则为 nil）。
func (r *Registry) Register(ctx context.Context, destinationID string, interval domain.Interval, rawCategory string) (domain.ScheduleEntry, *domain.ScheduleEntry, error) {
	dest := strings.TrimSpace(destinationID)
	if dest == "" {
		return domain.ScheduleEntry{}, nil, errors.New("destination id 不能为空")
	}
	if interval.Period() <= 0 {
		return domain.ScheduleEntry{}, nil, fmt.Errorf("未知 interval：%q", interval)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var superseded *domain.ScheduleEntry
	old, err := r.store.GetActiveByKey(ctx, dest, interval)
	switch {
	case err == nil:
		if err := r.store.Deactivate(ctx, old.ID); err != nil {
			return domain.ScheduleEntry{}, nil, fmt.Errorf("停用旧计划失败：%w", err)
		}
		old.Active = false
		superseded = &old
	case errors.Is(err, store.ErrNotFound):
	default:
		return domain.ScheduleEntry{}, nil, fmt.Errorf("查询计划失败：%w", err)
	}

	e := domain.ScheduleEntry{
		ID:            r.newID(),
		DestinationID: dest,
		Interval:      interval,
		Category:      category.Normalize(rawCategory),
		Active:        true,
		CreatedAt:     r.now().UTC(),
	}
	if err := r.store.Put(ctx, e); err != nil {
		return domain.ScheduleEntry{}, nil, fmt.Errorf("保存计划失败：%w", err)
	}

	fields := []logx.Field{
		logx.String("id", e.ID),
		logx.String("destination", dest),
		logx.String("interval", string(interval)),
		logx.String("category", e.Category),
	}
	if superseded != nil {
		fields = append(fields, logx.String("superseded", superseded.ID))
	}
	r.log.Info("计划已注册", fields...)
	return e, superseded, nil
}

// Deactivate 停用 (destination, interval) 的 active 条目；不存在时返回 domain.ErrScheduleNotFound。
func (r *Registry) Deactivate(ctx context.Context, destinationID string, interval domain.Interval) (domain.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.store.GetActiveByKey(ctx, destinationID, interval)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ScheduleEntry{}, fmt.Errorf("%w：%s", domain.ErrScheduleNotFound, domain.ScheduleKey(destinationID, interval))
	}
	if err != nil {
		return domain.ScheduleEntry{}, fmt.Errorf("查询计划失败：%w", err)
	}
	if err := r.store.Deactivate(ctx, e.ID); err != nil {
		return domain.ScheduleEntry{}, fmt.Errorf("停用计划失败：%w", err)
	}
	e.Active = false
	r.log.Info("计划已停用", logx.String("id", e.ID), logx.String("key", e.Key()))
	return e, nil
}

func (r *Registry) ListActive(ctx context.Context) ([]domain.ScheduleEntry, error) {
	return r.store.List(ctx)
}

// MarkRun 记录一次触发时间（无论投递成败）。
func (r *Registry) MarkRun(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("查询计划失败：%w", err)
	}
	t := at.UTC()
	e.LastRunAt = &t
	if err := r.store.Put(ctx, e); err != nil {
		return fmt.Errorf("更新 last_run_at 失败：%w", err)
	}
	return nil
}
