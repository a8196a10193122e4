// Package store 定义额度与计划任务的持久化接口，并提供进程内实现。
//
// 约束：实现必须并发安全；读出的值是副本，调用方修改不会影响存储。
package store

import (
	"context"
	"errors"

	"github.com/John-Robertt/wallpipe/internal/domain"
)

// ErrNotFound 表示记录不存在（调用方用 errors.Is 判断）。
var ErrNotFound = errors.New("记录不存在")

type QuotaStore interface {
	// Get 不存在时返回 ErrNotFound。
	Get(ctx context.Context, consumerID string) (domain.QuotaState, error)
	// Put 按 ConsumerID 覆盖写入。
	Put(ctx context.Context, st domain.QuotaState) error
}

type ScheduleStore interface {
	// List 返回全部 active 条目，按 CreatedAt 升序。
	List(ctx context.Context) ([]domain.ScheduleEntry, error)
	Get(ctx context.Context, id string) (domain.ScheduleEntry, error)
	// GetActiveByKey 不存在 active 条目时返回 ErrNotFound。
	GetActiveByKey(ctx context.Context, destinationID string, interval domain.Interval) (domain.ScheduleEntry, error)
	// Put 按 ID 覆盖写入。
	Put(ctx context.Context, e domain.ScheduleEntry) error
	// Deactivate 软删除；id 不存在时返回 ErrNotFound。
	Deactivate(ctx context.Context, id string) error
}
