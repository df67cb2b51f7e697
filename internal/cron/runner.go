// Package cronrunner 定时任务调度
package cronrunner

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Runner struct {
	cron    *cron.Cron
	logger  *logrus.Logger
	baseCtx context.Context
}

// New 创建调度器，表达式按 loc 时区解释；任务 panic 会被恢复并记录
func New(logger *logrus.Logger, baseCtx context.Context, loc *time.Location) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if loc == nil {
		loc = time.Local
	}
	cl := cron.PrintfLogger(logger)
	return &Runner{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add 注册任务，spec 为空时跳过
func (r *Runner) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	if spec == "" {
		r.logger.WithField("job", name).Info("未配置Cron表达式，跳过定时任务")
		return 0, nil
	}
	id, err := r.cron.AddFunc(spec, func() {
		start := time.Now()
		r.logger.WithField("job", name).Info("定时任务开始")
		job(r.baseCtx)
		r.logger.WithFields(logrus.Fields{"job": name, "cost": time.Since(start).String()}).Info("定时任务结束")
	})
	if err != nil {
		return 0, err
	}
	r.logger.WithFields(logrus.Fields{"job": name, "spec": spec}).Info("定时任务已注册")
	return id, nil
}

func (r *Runner) Start() {
	r.logger.Info("定时任务调度已启动")
	r.cron.Start()
}

// Stop 停止调度并等待正在执行的任务结束
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("定时任务调度已停止")
}

// Entries 已注册任务数
func (r *Runner) Entries() int {
	return len(r.cron.Entries())
}
