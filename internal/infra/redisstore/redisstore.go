// Package redisstore 把额度状态存成 Redis hash（每个消费者一个 key）。
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/store"
)

const (
	DefaultPrefix     = "wallpipe:quota:"
	connectionTimeout = 5 * time.Second
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient 建立连接并 ping 一次。
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis 地址不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping 失败：%w", err)
	}
	return client, nil
}

const (
	fieldTier           = "tier"
	fieldConsumedCount  = "consumed_count"
	fieldWindowStart    = "window_start"
	fieldUnlimitedUntil = "unlimited_until"
	fieldBanned         = "banned"
)

type QuotaStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewQuotaStore(rdb redis.Cmdable) *QuotaStore {
	return &QuotaStore{rdb: rdb, prefix: DefaultPrefix}
}

var _ store.QuotaStore = (*QuotaStore)(nil)

func (s *QuotaStore) key(id string) string { return s.prefix + id }

func (s *QuotaStore) Get(ctx context.Context, consumerID string) (domain.QuotaState, error) {
	m, err := s.rdb.HGetAll(ctx, s.key(consumerID)).Result()
	if err != nil {
		return domain.QuotaState{}, fmt.Errorf("读取 redis 额度失败：%w", err)
	}
	if len(m) == 0 {
		return domain.QuotaState{}, store.ErrNotFound
	}

	st := domain.QuotaState{ConsumerID: consumerID, Tier: domain.Tier(m[fieldTier])}
	if v := m[fieldConsumedCount]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return domain.QuotaState{}, fmt.Errorf("consumed_count 格式错误：%w", err)
		}
		st.ConsumedCount = n
	}
	if v := m[fieldWindowStart]; v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return domain.QuotaState{}, fmt.Errorf("window_start 格式错误：%w", err)
		}
		st.WindowStart = t.UTC()
	}
	if v := m[fieldBanned]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return domain.QuotaState{}, fmt.Errorf("banned 格式错误：%w", err)
		}
		st.Banned = b
	}
	if v := m[fieldUnlimitedUntil]; v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return domain.QuotaState{}, fmt.Errorf("unlimited_until 格式错误：%w", err)
		}
		u := t.UTC()
		st.UnlimitedUntil = &u
	}
	return st, nil
}

// Put 在一个 MULTI/EXEC 里覆盖写入所有字段。
func (s *QuotaStore) Put(ctx context.Context, st domain.QuotaState) error {
	key := s.key(st.ConsumerID)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			fieldTier, string(st.Tier),
			fieldConsumedCount, st.ConsumedCount,
			fieldWindowStart, st.WindowStart.UTC().Format(time.RFC3339),
			fieldBanned, strconv.FormatBool(st.Banned),
		)
		if st.UnlimitedUntil != nil {
			p.HSet(ctx, key, fieldUnlimitedUntil, st.UnlimitedUntil.UTC().Format(time.RFC3339))
		} else {
			p.HDel(ctx, key, fieldUnlimitedUntil)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("写入 redis 额度失败：%w", err)
	}
	return nil
}
