package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/infra/logx"
)

const (
	DefaultMaxConcurrentTicks = 4
	DefaultDeliveryTimeout    = 30 * time.Second
	DefaultAcquireTimeout     = 3 * time.Minute
)

var (
	// ErrTickRunning 表示同一条目的上一次触发尚未结束，本次被跳过。
	ErrTickRunning = errors.New("上一次触发仍在运行")
	// ErrSchedulerStopped 表示调度器已开始停止，不再接受触发。
	ErrSchedulerStopped = errors.New("调度器已停止")
)

// Acquirer 是定时触发时的获取入口（*acquire.Coordinator 满足该接口）。
type Acquirer interface {
	Acquire(ctx context.Context, rawCategory string) (domain.ContentRecord, error)
}

// Sender 把记录投递到目标（delivery.Sender 满足该接口）。
type Sender interface {
	Send(ctx context.Context, destinationID string, rec domain.ContentRecord) error
}

// Observer 接收每次触发与投递的结果；实现必须并发安全。
type Observer interface {
	OnTick(e domain.ScheduleEntry, err error)
	OnDelivery(e domain.ScheduleEntry, err error)
}

type Options struct {
	Registry *Registry
	Acquirer Acquirer
	Sender   Sender
	Log      logx.Logger
	Observer Observer

	// MaxConcurrentTicks 限制同时进行中的投递数。
	MaxConcurrentTicks int64
	DeliveryTimeout    time.Duration
	AcquireTimeout     time.Duration
}

// JobInfo 是一个已挂载定时器的快照。
type JobInfo struct {
	Key           string          `json:"key"`
	EntryID       string          `json:"entry_id"`
	DestinationID string          `json:"destination_id"`
	Interval      domain.Interval `json:"interval"`
	Category      string          `json:"category"`
	Next          time.Time       `json:"next_run"`
	Running       bool            `json:"running"`
}

type job struct {
	entry   domain.ScheduleEntry
	cronID  cron.EntryID
	running atomic.Bool
}

// Scheduler 为每个 active 条目挂载一个周期定时器。
//
// 约束：
// - 定时器 map 以 (destination, interval) 为键，增删都在 mu 内完成：先撤旧定时器，再挂新定时器
// - 首次触发在挂载后一个完整周期
// - 同一条目的触发不会重叠；tick 内的 panic 被恢复并记录，不影响其它条目
// - 定时器已被撤销（Remove 或被新条目取代）的 tick 不再记录触发时间，也不投递
// - Stop 开始后不再进入新的 tick；进行中的 tick 与投递都计入 wg
type Scheduler struct {
	reg  *Registry
	acq  Acquirer
	send Sender
	log  logx.Logger
	obs  Observer

	deliveryTimeout time.Duration
	acquireTimeout  time.Duration

	cron *cron.Cron
	sem  *semaphore.Weighted
	now  func() time.Time

	mu       sync.Mutex
	jobs     map[string]*job
	started  bool
	stopping bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(opt Options) (*Scheduler, error) {
	if opt.Registry == nil || opt.Acquirer == nil || opt.Sender == nil {
		return nil, errors.New("registry/acquirer/sender 不能为空")
	}
	if opt.Log == nil {
		opt.Log = logx.NewNop()
	}
	if opt.MaxConcurrentTicks <= 0 {
		opt.MaxConcurrentTicks = DefaultMaxConcurrentTicks
	}
	if opt.DeliveryTimeout <= 0 {
		opt.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if opt.AcquireTimeout <= 0 {
		opt.AcquireTimeout = DefaultAcquireTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		reg:             opt.Registry,
		acq:             opt.Acquirer,
		send:            opt.Sender,
		log:             opt.Log,
		obs:             opt.Observer,
		deliveryTimeout: opt.DeliveryTimeout,
		acquireTimeout:  opt.AcquireTimeout,
		cron:            cron.New(cron.WithLocation(time.UTC)),
		sem:             semaphore.NewWeighted(opt.MaxConcurrentTicks),
		now:             time.Now,
		jobs:            make(map[string]*job),
		ctx:             ctx,
		cancel:          cancel,
	}, nil
}

// Start 为所有 active 条目挂载定时器并启动调度。
func (s *Scheduler) Start(ctx context.Context) error {
	entries, err := s.reg.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("加载计划失败：%w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.armLocked(e)
	}
	s.cron.Start()
	s.started = true
	s.log.Info("调度器已启动", logx.Int("jobs", len(s.jobs)))
	return nil
}

// Stop 停止调度，等待进行中的触发与投递结束。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.started = false
	s.stopping = true
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.cancel()
	s.log.Info("调度器已停止")
}

// Running 报告调度器是否处于运行中（用于健康检查）。
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Add 注册（或取代）计划并挂载定时器。
func (s *Scheduler) Add(ctx context.Context, destinationID string, interval domain.Interval, rawCategory string) (domain.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.ScheduleKey(destinationID, interval)
	s.cancelLocked(key)

	e, _, err := s.reg.Register(ctx, destinationID, interval, rawCategory)
	if err != nil {
		s.rearmLocked(ctx, destinationID, interval)
		return domain.ScheduleEntry{}, err
	}
	s.armLocked(e)
	return e, nil
}

// Remove 先撤定时器，再在 registry 里停用条目。
func (s *Scheduler) Remove(ctx context.Context, destinationID string, interval domain.Interval) (domain.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(domain.ScheduleKey(destinationID, interval))
	return s.reg.Deactivate(ctx, destinationID, interval)
}

// Trigger 立即同步执行一次 (destination, interval) 的触发（不影响定时器节奏）。
func (s *Scheduler) Trigger(destinationID string, interval domain.Interval) error {
	key := domain.ScheduleKey(destinationID, interval)
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return ErrSchedulerStopped
	}
	j, ok := s.jobs[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w：%s", domain.ErrScheduleNotFound, key)
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if !s.tick(j) {
		return ErrTickRunning
	}
	return nil
}

// Jobs 返回已挂载定时器的快照，按 key 排序。
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for key, j := range s.jobs {
		out = append(out, JobInfo{
			Key:           key,
			EntryID:       j.entry.ID,
			DestinationID: j.entry.DestinationID,
			Interval:      j.entry.Interval,
			Category:      j.entry.Category,
			Next:          s.cron.Entry(j.cronID).Next,
			Running:       j.running.Load(),
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Key < out[k].Key })
	return out
}

func (s *Scheduler) armLocked(e domain.ScheduleEntry) {
	key := e.Key()
	s.cancelLocked(key)

	j := &job{entry: e}
	j.cronID = s.cron.Schedule(cron.Every(e.Interval.Period()), cron.FuncJob(func() { s.fire(j) }))
	s.jobs[key] = j
	s.log.Debug("定时器已挂载", logx.String("key", key), logx.String("id", e.ID))
}

func (s *Scheduler) cancelLocked(key string) {
	j, ok := s.jobs[key]
	if !ok {
		return
	}
	s.cron.Remove(j.cronID)
	delete(s.jobs, key)
	s.log.Debug("定时器已撤销", logx.String("key", key), logx.String("id", j.entry.ID))
}

// rearmLocked 在注册失败时恢复原有定时器（registry 中旧条目仍然 active）。
func (s *Scheduler) rearmLocked(ctx context.Context, destinationID string, interval domain.Interval) {
	e, err := s.reg.store.GetActiveByKey(ctx, destinationID, interval)
	if err != nil {
		return
	}
	s.armLocked(e)
}

// fire 是定时器回调：Stop 开始后直接返回。
func (s *Scheduler) fire(j *job) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()
	s.tick(j)
}

// armedLocked 报告 j 是否仍是其 key 当前挂载的定时器。调用方持有 mu。
func (s *Scheduler) armedLocked(j *job) bool {
	return s.jobs[j.entry.Key()] == j
}

// markRun 在条目仍挂载时记录触发时间（无论获取成败）；条目已撤销或被取代时返回 false。
// 检查与写入都在 mu 内，和 Remove/Add 互斥。
func (s *Scheduler) markRun(j *job, at time.Time, log logx.Logger) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armedLocked(j) {
		return false
	}
	if err := s.reg.MarkRun(s.ctx, j.entry.ID, at); err != nil {
		log.Error("记录触发时间失败", logx.Err(err))
	}
	return true
}

// tick 执行一次触发；同一条目上一次仍在运行时返回 false。
func (s *Scheduler) tick(j *job) (ran bool) {
	if !j.running.CompareAndSwap(false, true) {
		s.log.Warn("上一次触发仍在运行，跳过", logx.String("key", j.entry.Key()))
		return false
	}
	ran = true
	defer j.running.Store(false)

	e := j.entry
	log := s.log.With(logx.String("id", e.ID), logx.String("key", e.Key()))
	defer func() {
		if r := recover(); r != nil {
			log.Error("定时触发 panic", logx.Any("panic", r))
		}
	}()

	at := s.now()
	ctx, cancel := context.WithTimeout(s.ctx, s.acquireTimeout)
	defer cancel()

	rec, err := s.acq.Acquire(ctx, e.Category)

	if !s.markRun(j, at, log) {
		log.Debug("条目已撤销，丢弃本次触发结果")
		return true
	}
	if s.obs != nil {
		s.obs.OnTick(e, err)
	}
	if err != nil {
		log.Warn("定时获取失败", logx.Err(err))
		return true
	}

	s.deliver(e, rec, log)
	return true
}

// deliver 在受信号量约束的 goroutine 中投递；结果只记录，不重试。
func (s *Scheduler) deliver(e domain.ScheduleEntry, rec domain.ContentRecord, log logx.Logger) {
	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		log.Warn("调度器已停止，放弃投递", logx.Err(err))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				log.Error("投递 panic", logx.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(s.ctx, s.deliveryTimeout)
		defer cancel()

		err := s.send.Send(ctx, e.DestinationID, rec)
		if s.obs != nil {
			s.obs.OnDelivery(e, err)
		}
		if err != nil {
			log.Error("投递失败", logx.Err(err))
			return
		}
		log.Info("投递成功", logx.String("source", rec.SourceName))
	}()
}
