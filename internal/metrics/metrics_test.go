package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/John-Robertt/wallpipe/internal/app/acquire"
	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/quota"
)

func TestMetrics_AcquisitionObserver(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.OnAttempt("nature", acquire.Attempt{Provider: "unsplash", Outcome: acquire.OutcomeRateLimited})
	m.OnAttempt("nature", acquire.Attempt{Provider: "pexels", Outcome: acquire.OutcomeAccepted, Duration: time.Second})
	m.OnResult("nature", domain.ContentRecord{}, nil)
	m.OnResult("nature", domain.ContentRecord{}, fmt.Errorf("%w：x", domain.ErrAcquisitionExhausted))
	m.OnResult("nature", domain.ContentRecord{}, fmt.Errorf("%w：%w", domain.ErrAcquisitionExhausted, context.Canceled))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("unsplash", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("pexels", "accepted")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.AttemptDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Acquisitions.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Acquisitions.WithLabelValues("exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Acquisitions.WithLabelValues("cancelled")))
}

func TestMetrics_ScheduleAndQuota(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.OnTick(domain.ScheduleEntry{}, nil)
	m.OnDelivery(domain.ScheduleEntry{}, errors.New("boom"))
	m.ObserveQuota(quota.Decision{Limited: true})
	m.ObserveQuota(quota.Decision{Remaining: quota.Unbounded})
	m.ObserveQuota(quota.Decision{Remaining: 3})
	m.ObserveQuota(quota.Decision{Limited: true, Banned: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScheduleTicks.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotaDecisions.WithLabelValues("limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotaDecisions.WithLabelValues("unlimited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotaDecisions.WithLabelValues("banned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotaDecisions.WithLabelValues("allowed")))
}

func TestMetrics_SatisfiesObservers(t *testing.T) {
	var _ acquire.Observer = (*Metrics)(nil)
}
