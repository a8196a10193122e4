package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/store"
)

type QuotaStore struct {
	db *sqlx.DB
}

func NewQuotaStore(db *sqlx.DB) *QuotaStore {
	return &QuotaStore{db: db}
}

var _ store.QuotaStore = (*QuotaStore)(nil)

func (s *QuotaStore) Get(ctx context.Context, consumerID string) (domain.QuotaState, error) {
	var st domain.QuotaState
	err := s.db.GetContext(ctx, &st, `
SELECT consumer_id, tier, consumed_count, window_start, unlimited_until, banned
FROM consumer_quota
WHERE consumer_id = $1`, consumerID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuotaState{}, store.ErrNotFound
	}
	if err != nil {
		return domain.QuotaState{}, fmt.Errorf("查询额度失败：%w", err)
	}
	st.WindowStart = st.WindowStart.UTC()
	return st, nil
}

func (s *QuotaStore) Put(ctx context.Context, st domain.QuotaState) error {
	_, err := s.db.NamedExecContext(ctx, `
INSERT INTO consumer_quota (consumer_id, tier, consumed_count, window_start, unlimited_until, banned)
VALUES (:consumer_id, :tier, :consumed_count, :window_start, :unlimited_until, :banned)
ON CONFLICT (consumer_id) DO UPDATE SET
	tier = EXCLUDED.tier,
	consumed_count = EXCLUDED.consumed_count,
	window_start = EXCLUDED.window_start,
	unlimited_until = EXCLUDED.unlimited_until,
	banned = EXCLUDED.banned`, st)
	if err != nil {
		return fmt.Errorf("写入额度失败：%w", err)
	}
	return nil
}
