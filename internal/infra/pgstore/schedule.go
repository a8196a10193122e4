package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/store"
)

type ScheduleStore struct {
	db *sqlx.DB
}

func NewScheduleStore(db *sqlx.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

var _ store.ScheduleStore = (*ScheduleStore)(nil)

const scheduleColumns = `id, destination_id, "interval", category, last_run_at, active, created_at`

func (s *ScheduleStore) List(ctx context.Context) ([]domain.ScheduleEntry, error) {
	var out []domain.ScheduleEntry
	err := s.db.SelectContext(ctx, &out, `
SELECT `+scheduleColumns+`
FROM schedule_entries
WHERE active
ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("查询计划列表失败：%w", err)
	}
	return out, nil
}

func (s *ScheduleStore) Get(ctx context.Context, id string) (domain.ScheduleEntry, error) {
	var e domain.ScheduleEntry
	err := s.db.GetContext(ctx, &e, `
SELECT `+scheduleColumns+`
FROM schedule_entries
WHERE id = $1`, id)
	return e, notFound(err, "查询计划失败")
}

func (s *ScheduleStore) GetActiveByKey(ctx context.Context, destinationID string, interval domain.Interval) (domain.ScheduleEntry, error) {
	var e domain.ScheduleEntry
	err := s.db.GetContext(ctx, &e, `
SELECT `+scheduleColumns+`
FROM schedule_entries
WHERE destination_id = $1 AND "interval" = $2 AND active`, strings.TrimSpace(destinationID), string(interval))
	return e, notFound(err, "查询计划失败")
}

func (s *ScheduleStore) Put(ctx context.Context, e domain.ScheduleEntry) error {
	_, err := s.db.NamedExecContext(ctx, `
INSERT INTO schedule_entries (`+scheduleColumns+`)
VALUES (:id, :destination_id, :interval, :category, :last_run_at, :active, :created_at)
ON CONFLICT (id) DO UPDATE SET
	category = EXCLUDED.category,
	last_run_at = EXCLUDED.last_run_at,
	active = EXCLUDED.active`, e)
	if err != nil {
		return fmt.Errorf("写入计划失败：%w", err)
	}
	return nil
}

func (s *ScheduleStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE schedule_entries SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("停用计划失败：%w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("停用计划失败：%w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func notFound(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return fmt.Errorf("%s：%w", msg, err)
}
