// Package worker 后台任务队列：有界通道加固定数量的消费协程，关闭时处理完已入队的任务。
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrQueueClosed 队列已关闭
var ErrQueueClosed = errors.New("任务队列已关闭")

// ErrQueueFull 队列已满，任务被丢弃
var ErrQueueFull = errors.New("任务队列已满")

// Task 队列中的任务
type Task struct {
	ID   string
	Name string
	Run  func(ctx context.Context) error
}

type Queue struct {
	tasks   chan Task
	workers int
	logger  *logrus.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue 创建队列，size/workers 不大于0时取默认值
func NewQueue(size, workers int, logger *logrus.Logger) *Queue {
	if size <= 0 {
		size = 64
	}
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		tasks:   make(chan Task, size),
		workers: workers,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start 启动消费协程
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.loop(i)
	}
	q.logger.WithField("workers", q.workers).Info("后台任务队列已启动")
}

func (q *Queue) loop(n int) {
	defer q.wg.Done()
	for task := range q.tasks {
		q.run(n, task)
	}
}

func (q *Queue) run(n int, task Task) {
	log := q.logger.WithFields(logrus.Fields{"task_id": task.ID, "task": task.Name, "worker": n})
	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("后台任务异常退出")
		}
	}()
	start := time.Now()
	if err := task.Run(q.ctx); err != nil {
		log.WithError(err).Error("后台任务执行失败")
		return
	}
	log.WithField("cost", time.Since(start).String()).Debug("后台任务执行完成")
}

// Submit 非阻塞入队，返回任务ID；队列已满或已关闭时返回错误
func (q *Queue) Submit(name string, fn func(ctx context.Context) error) (string, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return "", ErrQueueClosed
	}
	task := Task{ID: uuid.NewString(), Name: name, Run: fn}
	select {
	case q.tasks <- task:
		return task.ID, nil
	default:
		q.logger.WithField("task", name).Warn("任务队列已满，丢弃任务")
		return "", fmt.Errorf("%w: %s", ErrQueueFull, name)
	}
}

// Shutdown 停止接收新任务并等待已入队任务执行完；ctx 到期时取消正在执行的任务
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		q.logger.Info("后台任务队列已关闭")
		return nil
	case <-ctx.Done():
		q.cancel()
		return fmt.Errorf("等待后台任务结束超时: %w", ctx.Err())
	}
}
