// Package metrics 定义 Prometheus 指标，并以 Observer 的形式挂到获取与调度流程上。
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/John-Robertt/wallpipe/internal/app/acquire"
	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/quota"
)

const Namespace = "wallpipe"

type Metrics struct {
	Acquisitions     *prometheus.CounterVec
	ProviderAttempts *prometheus.CounterVec
	AttemptDuration  *prometheus.HistogramVec
	QuotaDecisions   *prometheus.CounterVec
	ScheduleTicks    *prometheus.CounterVec
	Deliveries       *prometheus.CounterVec
}

// New 在 reg 上注册全部指标；reg 为空时使用默认 registerer。
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Acquisitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "acquisitions_total",
			Help:      "Acquisition runs by final result.",
		}, []string{"result"}),
		ProviderAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "provider_attempts_total",
			Help:      "Provider attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		AttemptDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "provider_attempt_duration_seconds",
			Help:      "Duration of a provider fetch plus validation.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"provider"}),
		QuotaDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "quota_decisions_total",
			Help:      "Quota checks by outcome.",
		}, []string{"outcome"}),
		ScheduleTicks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "schedule_ticks_total",
			Help:      "Scheduled ticks by acquisition result.",
		}, []string{"result"}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "deliveries_total",
			Help:      "Scheduled deliveries by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) OnAttempt(category string, a acquire.Attempt) {
	m.ProviderAttempts.WithLabelValues(a.Provider, string(a.Outcome)).Inc()
	if a.Duration > 0 {
		m.AttemptDuration.WithLabelValues(a.Provider).Observe(a.Duration.Seconds())
	}
}

func (m *Metrics) OnResult(category string, rec domain.ContentRecord, err error) {
	m.Acquisitions.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) OnTick(e domain.ScheduleEntry, err error) {
	m.ScheduleTicks.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) OnDelivery(e domain.ScheduleEntry, err error) {
	m.Deliveries.WithLabelValues(result(err)).Inc()
}

// ObserveQuota 记录一次额度判定。
func (m *Metrics) ObserveQuota(d quota.Decision) {
	outcome := "allowed"
	switch {
	case d.Banned:
		outcome = "banned"
	case d.Limited:
		outcome = "limited"
	case d.Remaining == quota.Unbounded:
		outcome = "unlimited"
	}
	m.QuotaDecisions.WithLabelValues(outcome).Inc()
}

func result(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, domain.ErrAcquisitionExhausted):
		return "exhausted"
	default:
		return "error"
	}
}
