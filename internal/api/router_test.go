package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/quota"
	"github.com/John-Robertt/wallpipe/internal/schedule"
)

type fakeRequester struct {
	rec      domain.ContentRecord
	decision quota.Decision
	err      error
	gotCat   string
}

func (f *fakeRequester) Request(_ context.Context, _ string, rawCategory string) (domain.ContentRecord, quota.Decision, error) {
	f.gotCat = rawCategory
	return f.rec, f.decision, f.err
}

type fakeScheduler struct {
	running bool
	added   []domain.ScheduleEntry
	entries []domain.ScheduleEntry
}

func (f *fakeScheduler) Add(_ context.Context, dest string, interval domain.Interval, cat string) (domain.ScheduleEntry, error) {
	e := domain.ScheduleEntry{ID: "id-1", DestinationID: dest, Interval: interval, Category: cat, Active: true, CreatedAt: time.Now().UTC()}
	f.added = append(f.added, e)
	return e, nil
}

func (f *fakeScheduler) Remove(_ context.Context, dest string, interval domain.Interval) (domain.ScheduleEntry, error) {
	for _, e := range f.added {
		if e.DestinationID == dest && e.Interval == interval {
			e.Active = false
			return e, nil
		}
	}
	return domain.ScheduleEntry{}, domain.ErrScheduleNotFound
}

func (f *fakeScheduler) Jobs() []schedule.JobInfo { return nil }
func (f *fakeScheduler) Running() bool            { return f.running }

func (f *fakeScheduler) ListActive(context.Context) ([]domain.ScheduleEntry, error) {
	return f.entries, nil
}

type fakeQuota struct {
	d      quota.Decision
	banned map[string]bool
}

func (f *fakeQuota) CheckAndAdvance(context.Context, string) (quota.Decision, error) { return f.d, nil }

func (f *fakeQuota) SetBanned(_ context.Context, id string, banned bool) (domain.QuotaState, error) {
	f.banned[id] = banned
	return domain.QuotaState{ConsumerID: id, Tier: domain.TierFree, Banned: banned}, nil
}

func newTestRouter(req *fakeRequester, sch *fakeScheduler) *gin.Engine {
	r, _ := newTestRouterWithQuota(req, sch)
	return r
}

func newTestRouterWithQuota(req *fakeRequester, sch *fakeScheduler) (*gin.Engine, *fakeQuota) {
	gin.SetMode(gin.TestMode)
	q := &fakeQuota{d: quota.Decision{Remaining: 3}, banned: map[string]bool{}}
	return NewRouter(Deps{
		Requester: req,
		Scheduler: sch,
		Schedules: sch,
		Quota:     q,
		Gatherer:  prometheus.NewRegistry(),
	}), q
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&fakeRequester{}, &fakeScheduler{running: true})
	w := do(t, r, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","scheduler_running":true}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRequestIDPassthrough(t *testing.T) {
	r := newTestRouter(&fakeRequester{}, &fakeScheduler{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(requestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(&fakeRequester{}, &fakeScheduler{})
	w := do(t, r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCategories(t *testing.T) {
	r := newTestRouter(&fakeRequester{}, &fakeScheduler{})
	w := do(t, r, http.MethodGet, "/categories", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Categories []string `json:"categories"`
		Default    string   `json:"default"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "nature", got.Default)
	assert.NotEmpty(t, got.Categories)
}

func TestAcquireStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"成功", nil, http.StatusOK, ""},
		{"额度用完", domain.ErrQuotaExceeded, http.StatusTooManyRequests, "quota_exceeded"},
		{"已封禁", domain.ErrConsumerBanned, http.StatusForbidden, "consumer_banned"},
		{"全部失败", domain.ErrAcquisitionExhausted, http.StatusBadGateway, "acquisition_exhausted"},
		{"其他错误", assert.AnError, http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := &fakeRequester{
				rec: domain.ContentRecord{SourceName: "Unsplash", PreviewURL: "https://img.example/a.jpg"},
				err: tc.err,
			}
			r := newTestRouter(req, &fakeScheduler{})
			w := do(t, r, http.MethodPost, "/acquire", map[string]string{"consumer_id": "u1", "category": "Ocean"})

			require.Equal(t, tc.want, w.Code, w.Body.String())
			assert.Equal(t, "Ocean", req.gotCat)
			if tc.code != "" {
				var body map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tc.code, body["error"])
			}
		})
	}
}

func TestAcquireRequiresConsumer(t *testing.T) {
	req := &fakeRequester{}
	r := newTestRouter(req, &fakeScheduler{})
	w := do(t, r, http.MethodPost, "/acquire", map[string]string{"category": "ocean"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, req.gotCat, "参数不合法时不应调用获取")
}

func TestScheduleLifecycle(t *testing.T) {
	sch := &fakeScheduler{}
	r := newTestRouter(&fakeRequester{}, sch)

	w := do(t, r, http.MethodPost, "/schedules", map[string]string{"destination_id": "chat-1", "interval": "Daily", "category": "ocean"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, sch.added, 1)
	assert.Equal(t, domain.IntervalDaily, sch.added[0].Interval)

	w = do(t, r, http.MethodDelete, "/schedules/chat-1/daily", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodDelete, "/schedules/chat-1/hourly", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScheduleBadInterval(t *testing.T) {
	sch := &fakeScheduler{}
	r := newTestRouter(&fakeRequester{}, sch)

	w := do(t, r, http.MethodPost, "/schedules", map[string]string{"destination_id": "chat-1", "interval": "weekly"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, sch.added)

	w = do(t, r, http.MethodDelete, "/schedules/chat-1/weekly", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSchedules(t *testing.T) {
	sch := &fakeScheduler{entries: []domain.ScheduleEntry{{ID: "a", DestinationID: "d", Interval: domain.IntervalHourly, Category: "nature", Active: true}}}
	r := newTestRouter(&fakeRequester{}, sch)

	w := do(t, r, http.MethodGet, "/schedules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Schedules []domain.ScheduleEntry `json:"schedules"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Schedules, 1)
	assert.Equal(t, "a", got.Schedules[0].ID)
}

func TestQuotaEndpoint(t *testing.T) {
	r := newTestRouter(&fakeRequester{}, &fakeScheduler{})
	w := do(t, r, http.MethodGet, "/quota/u1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var d quota.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, 3, d.Remaining)
}

func TestBanEndpoints(t *testing.T) {
	r, q := newTestRouterWithQuota(&fakeRequester{}, &fakeScheduler{})

	w := do(t, r, http.MethodPut, "/quota/u1/ban", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st domain.QuotaState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.True(t, st.Banned)
	assert.True(t, q.banned["u1"])

	w = do(t, r, http.MethodDelete, "/quota/u1/ban", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, q.banned["u1"])
}
