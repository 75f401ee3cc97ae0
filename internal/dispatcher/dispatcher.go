package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/onurcolak/bulk-dispatch-service/environments"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
)

var (
	ErrStopped   = errors.New("dispatcher is not running")
	ErrQueueFull = errors.New("dispatcher queue is full")
)

// Task is a unit of background work. Its context is never cancelled by the
// request that produced it.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Dispatcher runs tasks on a fixed pool of workers fed by a bounded queue.
// Enqueue never blocks; callers get no handle on the task.
type Dispatcher struct {
	workers        int
	queueSize      int
	alertWebhook   string
	alertThreshold int
	alertClient    *resty.Client

	// Internal state
	running bool
	queue   chan Task
	baseCtx context.Context
	wg      sync.WaitGroup
	mu      sync.RWMutex

	// Statistics
	startedAt       time.Time
	lastRunAt       time.Time
	runsCount       int64
	succeededCount  int64
	failedCount     int64
	lastAlertSentAt time.Time

	consecutiveFailCount int
}

func NewDispatcher(cfg environments.DispatchConfig, alert environments.AlertConfig) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	return &Dispatcher{
		workers:        workers,
		queueSize:      queueSize,
		alertWebhook:   alert.WebhookURL,
		alertThreshold: alert.IterationCount,
		alertClient:    resty.New().SetTimeout(10 * time.Second),
	}
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		logger.Warnf("Dispatcher is already running")
		return nil
	}

	d.running = true
	d.queue = make(chan Task, d.queueSize)
	d.baseCtx = context.WithoutCancel(ctx)
	d.startedAt = time.Now()
	d.consecutiveFailCount = 0

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(d.queue)
	}

	logger.Infof("Dispatcher started with %d workers (queue size %d)", d.workers, d.queueSize)
	return nil
}

// Enqueue hands a task over without waiting for it to run.
func (d *Dispatcher) Enqueue(task Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.running {
		return ErrStopped
	}

	select {
	case d.queue <- task:
		logger.Debugf("Task %s queued (%d/%d)", task.Name, len(d.queue), d.queueSize)
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new tasks and waits for queued ones to finish.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()

	if !d.running {
		d.mu.Unlock()
		logger.Warnf("Dispatcher is not running")
		return nil
	}

	d.running = false
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()

	logger.Infof("Dispatcher stopped")
	return nil
}

func (d *Dispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

func (d *Dispatcher) work(queue <-chan Task) {
	defer d.wg.Done()

	for task := range queue {
		d.execute(task)
	}
}

func (d *Dispatcher) execute(task Task) {
	d.mu.Lock()
	d.lastRunAt = time.Now()
	d.runsCount++
	runNumber := d.runsCount
	ctx := d.baseCtx
	d.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	startTime := time.Now()
	err := runSafely(ctx, task)
	duration := time.Since(startTime)

	d.mu.Lock()
	if err != nil {
		d.failedCount++
		d.consecutiveFailCount++
		logger.Errorf("[Task #%d] %s failed after %v: %v (consecutive failures: %d)",
			runNumber, task.Name, duration, err, d.consecutiveFailCount)

		if d.alertThreshold > 0 && d.alertWebhook != "" && d.consecutiveFailCount >= d.alertThreshold {
			go d.sendAlert(runNumber, d.consecutiveFailCount, task.Name)
		}
	} else {
		d.succeededCount++
		if d.consecutiveFailCount > 0 {
			logger.Debugf("[Task #%d] Resetting consecutive failure count (was: %d)", runNumber, d.consecutiveFailCount)
		}
		d.consecutiveFailCount = 0
		logger.Infof("[Task #%d] %s completed in %v", runNumber, task.Name, duration)
	}
	d.mu.Unlock()
}

func runSafely(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Run(ctx)
}

func (d *Dispatcher) GetStatus() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:              d.running,
		Workers:              d.workers,
		QueueSize:            d.queueSize,
		StartedAt:            d.startedAt,
		LastRunAt:            d.lastRunAt,
		RunsCount:            d.runsCount,
		SucceededCount:       d.succeededCount,
		FailedCount:          d.failedCount,
		ConsecutiveFailCount: d.consecutiveFailCount,
		LastAlertSentAt:      d.lastAlertSentAt,
	}

	if d.running {
		status.QueueLength = len(d.queue)
	}

	return status
}

func (d *Dispatcher) sendAlert(runNumber int64, consecutiveFailures int, taskName string) {
	alertPayload := map[string]any{
		"alert":               "consecutive_dispatch_failures",
		"runNumber":           runNumber,
		"consecutiveFailures": consecutiveFailures,
		"lastTask":            taskName,
		"timestamp":           time.Now().Format(time.RFC3339),
		"message":             fmt.Sprintf("%d consecutive dispatch tasks failed", consecutiveFailures),
	}

	resp, err := d.alertClient.R().
		SetHeader("Content-Type", "application/json").
		SetBody(alertPayload).
		Post(d.alertWebhook)
	if err != nil {
		logger.Errorf("Failed to send alert to webhook: %v", err)
		return
	}

	if resp.StatusCode() == http.StatusOK || resp.StatusCode() == http.StatusNoContent {
		d.mu.Lock()
		d.lastAlertSentAt = time.Now()
		d.mu.Unlock()
		logger.Infof("Alert sent successfully to %s (consecutive failures: %d)", d.alertWebhook, consecutiveFailures)
	} else {
		logger.Warnf("Alert webhook returned status %d", resp.StatusCode())
	}
}

type Status struct {
	Running              bool      `json:"running"`
	Workers              int       `json:"workers"`
	QueueSize            int       `json:"queueSize"`
	QueueLength          int       `json:"queueLength"`
	StartedAt            time.Time `json:"startedAt,omitempty"`
	LastRunAt            time.Time `json:"lastRunAt,omitempty"`
	RunsCount            int64     `json:"runsCount"`
	SucceededCount       int64     `json:"succeededCount"`
	FailedCount          int64     `json:"failedCount"`
	ConsecutiveFailCount int       `json:"consecutiveFailCount"`
	LastAlertSentAt      time.Time `json:"lastAlertSentAt,omitempty"`
}
