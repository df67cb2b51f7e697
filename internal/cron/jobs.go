package cronrunner

import (
	"context"

	"GachaSync/internal/config"
	"GachaSync/internal/service"

	"github.com/sirupsen/logrus"
)

// AccountJobs 账号相关的批量任务，由 service.SyncService 实现
type AccountJobs interface {
	RefreshAll(ctx context.Context) (service.BulkResult, error)
	RedeemGifts(ctx context.Context, codes []string) (service.BulkResult, error)
}

// CatalogRefresher 卡池信息刷新，由 catalog.Loader 实现
type CatalogRefresher interface {
	Refresh(ctx context.Context) error
}

// Jobs 定时任务集合
type Jobs struct {
	accounts AccountJobs
	catalog  CatalogRefresher
	cfg      *config.Config
	logger   *logrus.Logger
}

func NewJobs(accounts AccountJobs, catalog CatalogRefresher, cfg *config.Config, logger *logrus.Logger) *Jobs {
	return &Jobs{accounts: accounts, catalog: catalog, cfg: cfg, logger: logger}
}

// Register 按配置注册卡池刷新、账号全量刷新与礼包码自动兑换
func (j *Jobs) Register(r *Runner) error {
	if _, err := r.Add("catalog_refresh", j.cfg.Catalog.Cron, j.RefreshCatalog); err != nil {
		return err
	}
	if _, err := r.Add("account_refresh", j.cfg.Sync.Cron, j.RefreshAccounts); err != nil {
		return err
	}
	if _, err := r.Add("gift_redeem", j.cfg.Gift.Cron, j.RedeemGifts); err != nil {
		return err
	}
	return nil
}

// RefreshCatalog 失败时沿用当前卡池信息；替换成功后的重新归类由 Loader 回调触发
func (j *Jobs) RefreshCatalog(ctx context.Context) {
	if err := j.catalog.Refresh(ctx); err != nil {
		j.logger.WithError(err).Error("定时刷新卡池信息失败")
	}
}

func (j *Jobs) RefreshAccounts(ctx context.Context) {
	res, err := j.accounts.RefreshAll(ctx)
	if err != nil {
		j.logger.WithError(err).Error("定时刷新账号失败")
		return
	}
	if res.Failed > 0 {
		j.logger.WithFields(logrus.Fields{"total": res.Total, "failed": res.Failed}).Warn("部分账号刷新失败")
	}
}

func (j *Jobs) RedeemGifts(ctx context.Context) {
	if len(j.cfg.Gift.Codes) == 0 {
		return
	}
	res, err := j.accounts.RedeemGifts(ctx, j.cfg.Gift.Codes)
	if err != nil {
		j.logger.WithError(err).Error("自动兑换礼包码失败")
		return
	}
	j.logger.WithFields(logrus.Fields{"total": res.Total, "failed": res.Failed}).Info("自动兑换礼包码完成")
}
