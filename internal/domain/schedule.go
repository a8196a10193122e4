package domain

import (
	"fmt"
	"strings"
	"time"
)

// Interval 是计划任务的触发间隔。
type Interval string

const (
	IntervalHourly Interval = "hourly"
	IntervalDaily  Interval = "daily"
)

func ParseInterval(s string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hourly":
		return IntervalHourly, nil
	case "daily":
		return IntervalDaily, nil
	default:
		return "", fmt.Errorf("interval 只能是 hourly 或 daily，实际是 %q", s)
	}
}

// Period 返回一次完整间隔的时长。
func (i Interval) Period() time.Duration {
	switch i {
	case IntervalHourly:
		return time.Hour
	case IntervalDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

// ScheduleEntry 描述一个定时投递任务。
//
// 约束：
// - 同一 (DestinationID, Interval) 至多一条 Active
// - 撤销是软删除（Active=false），不物理删除
type ScheduleEntry struct {
	ID            string     `json:"id" db:"id"`
	DestinationID string     `json:"destination_id" db:"destination_id"`
	Interval      Interval   `json:"interval" db:"interval"`
	Category      string     `json:"category" db:"category"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty" db:"last_run_at"`
	Active        bool       `json:"active" db:"active"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// Key 返回 (destination, interval) 唯一键，同时也是 timer 的注册键。
func (e ScheduleEntry) Key() string {
	return ScheduleKey(e.DestinationID, e.Interval)
}

func ScheduleKey(destinationID string, interval Interval) string {
	return strings.TrimSpace(destinationID) + "|" + string(interval)
}
