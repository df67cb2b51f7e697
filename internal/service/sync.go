package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"GachaSync/internal/adapter"
	"GachaSync/internal/config"
	"GachaSync/internal/fetcher"
	"GachaSync/internal/interfaces"
	"GachaSync/internal/model"
	"GachaSync/internal/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// RefreshResult 单个账号一次刷新的结果
type RefreshResult struct {
	UID      string       `json:"uid"`
	Pulls    IngestResult `json:"pulls"`
	Diamonds IngestResult `json:"diamonds"`
	Pays     IngestResult `json:"pays"`
	Gifts    IngestResult `json:"gifts"`
}

// BulkResult 批量任务的汇总
type BulkResult struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

type SyncService struct {
	accounts repository.AccountRepository
	records  repository.RecordRepository
	registry *adapter.ChannelRegistry
	ingester *Ingester
	cfg      *config.Config
	logger   *logrus.Logger
}

func NewSyncService(
	accounts repository.AccountRepository,
	records repository.RecordRepository,
	registry *adapter.ChannelRegistry,
	ingester *Ingester,
	cfg *config.Config,
	logger *logrus.Logger,
) *SyncService {
	return &SyncService{
		accounts: accounts,
		records:  records,
		registry: registry,
		ingester: ingester,
		cfg:      cfg,
		logger:   logger,
	}
}

// Bind 用Token查询用户信息，按UID新建或更新账号
func (s *SyncService) Bind(ctx context.Context, channel model.Channel, token string, ownerID *uint64) (*model.Account, error) {
	src, err := s.registry.Source(channel, token)
	if err != nil {
		return nil, err
	}
	info, err := src.GetUserInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询用户信息失败: %w", err)
	}
	acc := &model.Account{
		UID:       info.UID,
		Nickname:  info.NickName,
		Token:     token,
		Channel:   channel,
		Available: true,
		OwnerID:   ownerID,
	}
	if err := s.accounts.Upsert(ctx, acc); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"uid": acc.UID, "channel": channel}).Info("账号绑定成功")
	return acc, nil
}

// EnsureUser 按用户名查询站点用户，不存在时以默认偏好创建
func (s *SyncService) EnsureUser(ctx context.Context, username string) (*model.User, error) {
	u, err := s.accounts.GetUserByName(ctx, username)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	u = &model.User{Username: username}
	if err := u.SetSettings(model.DefaultUserConfig()); err != nil {
		return nil, err
	}
	if err := s.accounts.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}
	s.logger.WithField("username", username).Info("已创建站点用户")
	return u, nil
}

// Account 按UID查询账号，不存在时返回 ErrAccountNotFound
func (s *SyncService) Account(ctx context.Context, uid string) (*model.Account, error) {
	return findAccount(ctx, s.accounts, uid)
}

// RefreshByUID 刷新指定UID的账号，force 为 true 时寻访记录从头拉取
func (s *SyncService) RefreshByUID(ctx context.Context, uid string, force bool) (*RefreshResult, error) {
	acc, err := s.Account(ctx, uid)
	if err != nil {
		return nil, err
	}
	if !acc.Available {
		return nil, fmt.Errorf("%w: %s", ErrAccountUnavailable, uid)
	}
	return s.RefreshAccount(ctx, acc, force)
}

// RefreshAccount 拉取并入库账号的全部数据。
// 寻访和源石按已入库的最新时间增量拉取，充值和礼包记录接口不分页，每次全量。
// force 时寻访游标置0，已入库的记录重新走一遍归类。
// Token被拒绝时把账号标记为不可用。
func (s *SyncService) RefreshAccount(ctx context.Context, acc *model.Account, force bool) (*RefreshResult, error) {
	res, err := s.refresh(ctx, acc, force)
	if err == nil {
		s.logger.WithFields(logrus.Fields{
			"uid":      acc.UID,
			"pulls":    res.Pulls.Created,
			"diamonds": res.Diamonds.Created,
			"pays":     res.Pays.Created,
			"gifts":    res.Gifts.Created,
			"force":    force,
		}).Info("账号数据刷新完成")
		return res, nil
	}
	if errors.Is(err, adapter.ErrTokenRejected) {
		if markErr := s.accounts.MarkUnavailable(ctx, acc.ID); markErr != nil {
			s.logger.WithError(markErr).WithField("uid", acc.UID).Error("标记账号不可用失败")
		} else {
			acc.Available = false
			s.logger.WithField("uid", acc.UID).Warn("账号Token已失效，已标记为不可用")
		}
	}
	return nil, fmt.Errorf("刷新账号%s失败: %w", acc.UID, err)
}

func (s *SyncService) refresh(ctx context.Context, acc *model.Account, force bool) (*RefreshResult, error) {
	src, err := s.registry.Source(acc.Channel, acc.Token)
	if err != nil {
		return nil, err
	}
	if _, err := src.GetUserInfo(ctx); err != nil {
		return nil, err
	}

	res := &RefreshResult{UID: acc.UID}
	maxPages := s.cfg.Sync.MaxPages

	var cursor int64
	if !force {
		if cursor, err = s.records.LatestGachaTime(ctx, acc.ID); err != nil {
			return nil, fmt.Errorf("查询寻访游标失败: %w", err)
		}
	}
	pulls, err := fetcher.FetchNew[model.RawGacha](ctx, src.GetGachaPage, cursor, maxPages)
	if err != nil {
		return nil, fmt.Errorf("拉取寻访记录失败: %w", err)
	}
	if res.Pulls, err = s.ingester.IngestPulls(ctx, acc, pulls); err != nil {
		return nil, err
	}

	cursor, err = s.records.LatestDiamondTime(ctx, acc.ID)
	if err != nil {
		return nil, fmt.Errorf("查询源石游标失败: %w", err)
	}
	diamonds, err := fetcher.FetchNew[model.RawDiamond](ctx, src.GetDiamondPage, cursor, maxPages)
	if err != nil {
		return nil, fmt.Errorf("拉取源石记录失败: %w", err)
	}
	if res.Diamonds, err = s.ingester.IngestDiamonds(ctx, acc, diamonds); err != nil {
		return nil, err
	}

	pays, err := src.GetPayRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("拉取充值记录失败: %w", err)
	}
	if res.Pays, err = s.ingester.IngestPayments(ctx, acc, pays); err != nil {
		return nil, err
	}

	if res.Gifts, err = s.refreshGifts(ctx, acc, src); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SyncService) refreshGifts(ctx context.Context, acc *model.Account, src interfaces.HistorySource) (IngestResult, error) {
	gifts, err := src.GetGiftRecords(ctx)
	if err != nil {
		return IngestResult{}, fmt.Errorf("拉取礼包记录失败: %w", err)
	}
	return s.ingester.IngestGifts(ctx, acc, gifts)
}

// RefreshAll 刷新全部可用账号，单个账号失败只记录日志
func (s *SyncService) RefreshAll(ctx context.Context) (BulkResult, error) {
	list, err := s.accounts.ListAvailable(ctx)
	if err != nil {
		return BulkResult{}, fmt.Errorf("查询可用账号失败: %w", err)
	}
	failed := s.forEach(ctx, list, func(ctx context.Context, acc *model.Account) error {
		_, err := s.RefreshAccount(ctx, acc, false)
		return err
	})
	s.logger.WithFields(logrus.Fields{"total": len(list), "failed": failed}).Info("全量账号刷新完成")
	return BulkResult{Total: len(list), Failed: failed}, nil
}

// ReconcileAll 卡池信息更新后重新归类全部账号的寻访记录
func (s *SyncService) ReconcileAll(ctx context.Context) (BulkResult, error) {
	list, err := s.accounts.ListAll(ctx)
	if err != nil {
		return BulkResult{}, fmt.Errorf("查询账号失败: %w", err)
	}
	failed := s.forEach(ctx, list, func(ctx context.Context, acc *model.Account) error {
		_, err := s.ingester.ReconcileAccount(ctx, acc.ID)
		return err
	})
	return BulkResult{Total: len(list), Failed: failed}, nil
}

// RedeemGifts 为开启自动兑换的用户的账号兑换尚未使用的礼包码
func (s *SyncService) RedeemGifts(ctx context.Context, codes []string) (BulkResult, error) {
	if len(codes) == 0 {
		return BulkResult{}, nil
	}
	list, err := s.accounts.ListAvailable(ctx)
	if err != nil {
		return BulkResult{}, fmt.Errorf("查询可用账号失败: %w", err)
	}
	var targets []*model.Account
	for _, acc := range list {
		if acc.Owner != nil && !acc.Owner.Disabled && acc.Owner.Settings().IsAutoGift {
			targets = append(targets, acc)
		}
	}
	failed := s.forEach(ctx, targets, func(ctx context.Context, acc *model.Account) error {
		return s.redeem(ctx, acc, codes)
	})
	return BulkResult{Total: len(targets), Failed: failed}, nil
}

func (s *SyncService) redeem(ctx context.Context, acc *model.Account, codes []string) error {
	src, err := s.registry.Source(acc.Channel, acc.Token)
	if err != nil {
		return err
	}
	used, err := s.records.ListGiftCodes(ctx, acc.ID)
	if err != nil {
		return fmt.Errorf("查询已兑换礼包码失败: %w", err)
	}
	usedSet := make(map[string]struct{}, len(used))
	for _, c := range used {
		usedSet[c] = struct{}{}
	}

	redeemed := 0
	for _, code := range codes {
		if _, ok := usedSet[code]; ok {
			continue
		}
		if redeemed > 0 {
			if err := sleep(ctx, s.cfg.Gift.Delay); err != nil {
				return err
			}
		}
		ok, err := src.ExchangeGift(ctx, code)
		if err != nil {
			return fmt.Errorf("兑换礼包码%s失败: %w", code, err)
		}
		redeemed++
		s.logger.WithFields(logrus.Fields{"uid": acc.UID, "code": code, "success": ok}).Info("礼包码兑换")
	}
	if redeemed == 0 {
		return nil
	}
	_, err = s.refreshGifts(ctx, acc, src)
	return err
}

// forEach 按 account_workers 并行处理账号，返回失败数
func (s *SyncService) forEach(ctx context.Context, list []*model.Account, fn func(context.Context, *model.Account) error) int {
	var failed atomic.Int64
	g := new(errgroup.Group)
	workers := s.cfg.Sync.AccountWorkers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)
	for _, acc := range list {
		acc := acc
		g.Go(func() error {
			if err := fn(ctx, acc); err != nil {
				failed.Add(1)
				s.logger.WithError(err).WithField("uid", acc.UID).Error("账号任务失败")
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(failed.Load())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
