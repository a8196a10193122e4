// Package api 提供管理用 HTTP 接口：健康检查、指标、按需获取、计划与额度查询。
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/John-Robertt/wallpipe/internal/category"
	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/infra/logx"
	"github.com/John-Robertt/wallpipe/internal/quota"
	"github.com/John-Robertt/wallpipe/internal/schedule"
)

// Requester 是按需获取入口（*app.App 满足该接口）。
type Requester interface {
	Request(ctx context.Context, consumerID, rawCategory string) (domain.ContentRecord, quota.Decision, error)
}

type Scheduler interface {
	Add(ctx context.Context, destinationID string, interval domain.Interval, rawCategory string) (domain.ScheduleEntry, error)
	Remove(ctx context.Context, destinationID string, interval domain.Interval) (domain.ScheduleEntry, error)
	Jobs() []schedule.JobInfo
	Running() bool
}

type ScheduleLister interface {
	ListActive(ctx context.Context) ([]domain.ScheduleEntry, error)
}

type QuotaChecker interface {
	CheckAndAdvance(ctx context.Context, consumerID string) (quota.Decision, error)
	SetBanned(ctx context.Context, consumerID string, banned bool) (domain.QuotaState, error)
}

type Deps struct {
	Requester Requester
	Scheduler Scheduler
	Schedules ScheduleLister
	Quota     QuotaChecker
	Gatherer  prometheus.Gatherer
	Log       logx.Logger
}

type handler struct {
	Deps
}

// NewRouter 构造 gin 路由（调用方负责 gin.SetMode）。
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = logx.NewNop()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	h := &handler{Deps: d}

	r := gin.New()
	r.Use(recovery(d.Log), requestID(), accessLog(d.Log))

	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/categories", h.categories)
	r.POST("/acquire", h.acquire)
	r.GET("/schedules", h.listSchedules)
	r.POST("/schedules", h.addSchedule)
	r.DELETE("/schedules/:destination/:interval", h.removeSchedule)
	r.GET("/quota/:consumer", h.quota)
	r.PUT("/quota/:consumer/ban", h.setBanned(true))
	r.DELETE("/quota/:consumer/ban", h.setBanned(false))
	return r
}

func errorBody(code, msg string) gin.H {
	return gin.H{"error": code, "message": msg}
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "scheduler_running": h.Scheduler.Running()})
}

func (h *handler) categories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": category.Known(), "default": category.Default})
}

type acquireRequest struct {
	ConsumerID string `json:"consumer_id" binding:"required"`
	Category   string `json:"category"`
}

func (h *handler) acquire(c *gin.Context) {
	var req acquireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("bad_request", err.Error()))
		return
	}

	rec, d, err := h.Requester.Request(c.Request.Context(), req.ConsumerID, req.Category)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"record": rec, "quota": d})
	case errors.Is(err, domain.ErrConsumerBanned):
		c.JSON(http.StatusForbidden, errorBody("consumer_banned", "该使用者已被封禁"))
	case errors.Is(err, domain.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "quota_exceeded", "message": "今日额度已用完", "quota": d})
	case errors.Is(err, domain.ErrAcquisitionExhausted):
		c.JSON(http.StatusBadGateway, errorBody("acquisition_exhausted", "暂时无法获取图片，请稍后再试"))
	default:
		h.Log.Error("按需获取失败", logx.Err(err))
		c.JSON(http.StatusInternalServerError, errorBody("internal_error", "内部错误"))
	}
}

func (h *handler) listSchedules(c *gin.Context) {
	entries, err := h.Schedules.ListActive(c.Request.Context())
	if err != nil {
		h.Log.Error("查询计划失败", logx.Err(err))
		c.JSON(http.StatusInternalServerError, errorBody("internal_error", "内部错误"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": entries, "jobs": h.Scheduler.Jobs()})
}

type scheduleRequest struct {
	DestinationID string `json:"destination_id" binding:"required"`
	Interval      string `json:"interval" binding:"required"`
	Category      string `json:"category"`
}

func (h *handler) addSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("bad_request", err.Error()))
		return
	}
	interval, err := domain.ParseInterval(req.Interval)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("bad_interval", err.Error()))
		return
	}
	if strings.TrimSpace(req.DestinationID) == "" {
		c.JSON(http.StatusBadRequest, errorBody("bad_request", "destination_id 不能为空"))
		return
	}

	e, err := h.Scheduler.Add(c.Request.Context(), req.DestinationID, interval, req.Category)
	if err != nil {
		h.Log.Error("注册计划失败", logx.Err(err))
		c.JSON(http.StatusInternalServerError, errorBody("internal_error", "内部错误"))
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *handler) removeSchedule(c *gin.Context) {
	interval, err := domain.ParseInterval(c.Param("interval"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("bad_interval", err.Error()))
		return
	}
	e, err := h.Scheduler.Remove(c.Request.Context(), c.Param("destination"), interval)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, e)
	case errors.Is(err, domain.ErrScheduleNotFound):
		c.JSON(http.StatusNotFound, errorBody("schedule_not_found", err.Error()))
	default:
		h.Log.Error("停用计划失败", logx.Err(err))
		c.JSON(http.StatusInternalServerError, errorBody("internal_error", "内部错误"))
	}
}

func (h *handler) quota(c *gin.Context) {
	d, err := h.Quota.CheckAndAdvance(c.Request.Context(), c.Param("consumer"))
	if err != nil {
		h.Log.Error("查询额度失败", logx.Err(err))
		c.JSON(http.StatusInternalServerError, errorBody("internal_error", "内部错误"))
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handler) setBanned(banned bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := h.Quota.SetBanned(c.Request.Context(), c.Param("consumer"), banned)
		if err != nil {
			h.Log.Error("更新封禁状态失败", logx.Err(err))
			c.JSON(http.StatusInternalServerError, errorBody("internal_error", "内部错误"))
			return
		}
		c.JSON(http.StatusOK, st)
	}
}
