package service

import (
	"context"
	"fmt"

	"GachaSync/internal/catalog"
	"GachaSync/internal/model"
	"GachaSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// IngestResult 一次入库的结果
type IngestResult struct {
	Created    int `json:"created"`    // 新增
	Reconciled int `json:"reconciled"` // 已存在且修正了卡池归类
	Skipped    int `json:"skipped"`    // 已存在且无需修改
}

func (r IngestResult) fields() logrus.Fields {
	return logrus.Fields{"created": r.Created, "reconciled": r.Reconciled, "skipped": r.Skipped}
}

// Ingester 把外部原始记录转换为入库记录。每个入口一个事务，重复执行结果不变。
type Ingester struct {
	records repository.RecordRepository
	catalog *catalog.Catalog
	logger  *logrus.Logger
}

func NewIngester(records repository.RecordRepository, cat *catalog.Catalog, logger *logrus.Logger) *Ingester {
	return &Ingester{records: records, catalog: cat, logger: logger}
}

// classify 解析卡池：接口返回"未知卡池"时名称和ID都为空；名称已知但找不到对应卡池时只保留名称
func classify(snap *catalog.Snapshot, realPool string, ts int64) (poolID, name *string) {
	if realPool == "" || realPool == model.UnknownRealPool {
		return nil, nil
	}
	n := realPool
	if id, ok := snap.Resolve(realPool, ts); ok {
		return &id, &n
	}
	return nil, &n
}

// IngestPulls 寻访记录入库，items 须按时间正序
func (in *Ingester) IngestPulls(ctx context.Context, account *model.Account, items []model.RawGacha) (IngestResult, error) {
	snap := in.catalog.Snapshot()
	var res IngestResult
	err := in.records.Transaction(ctx, func(tx repository.RecordRepository) error {
		res = IngestResult{}
		for _, item := range items {
			poolID, realPool := classify(snap, item.Pool, item.Ts)
			pool := snap.Info(poolID)

			rec := &model.GachaRecord{AccountID: account.ID, Time: item.Ts, PoolID: poolID, RealPool: realPool}
			for i, ch := range item.Chars {
				rec.Items = append(rec.Items, model.GachaItem{
					Index:  i,
					Name:   ch.Name,
					Rarity: ch.Rarity + 1,
					IsNew:  ch.IsNew,
					Up:     pool.IsUp(ch.Name),
				})
			}

			created, err := tx.CreateGachaRecord(ctx, rec)
			if err != nil {
				return err
			}
			if created {
				res.Created++
				continue
			}

			existing, err := tx.FindGachaRecord(ctx, account.ID, item.Ts)
			if err != nil {
				return fmt.Errorf("查询已存在的寻访记录失败: %w", err)
			}
			if existing == nil {
				return fmt.Errorf("寻访记录写入冲突但未找到已有记录, time: %d", item.Ts)
			}
			changed, err := reconcile(ctx, tx, snap, existing, poolID, realPool)
			if err != nil {
				return err
			}
			if changed {
				res.Reconciled++
			} else {
				res.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return IngestResult{}, fmt.Errorf("寻访记录入库失败: %w", err)
	}
	in.logger.WithField("uid", account.UID).WithFields(res.fields()).Debug("寻访记录入库完成")
	return res, nil
}

// reconcile 当新解析出的卡池与已存记录不一致时修正归类，并按新卡池重算每个干员的UP状态。
// 新结果无法解析时不改动已存记录。返回是否有改动。
func reconcile(ctx context.Context, tx repository.RecordRepository, snap *catalog.Snapshot, rec *model.GachaRecord, poolID, realPool *string) (bool, error) {
	if poolID == nil {
		return false, nil
	}
	changed := false
	if !sameString(rec.PoolID, poolID) || !sameString(rec.RealPool, realPool) {
		if err := tx.UpdateClassification(ctx, rec.ID, poolID, realPool); err != nil {
			return false, fmt.Errorf("更新寻访记录卡池失败: %w, record_id: %d", err, rec.ID)
		}
		rec.PoolID, rec.RealPool = poolID, realPool
		changed = true
	}

	pool := snap.Info(poolID)
	for i := range rec.Items {
		item := &rec.Items[i]
		up := pool.IsUp(item.Name)
		if up == item.Up {
			continue
		}
		if err := tx.UpdateItemUp(ctx, item.ID, up); err != nil {
			return false, fmt.Errorf("更新干员UP状态失败: %w, item_id: %d", err, item.ID)
		}
		item.Up = up
		changed = true
	}
	return changed, nil
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Reconcile 用当前卡池信息重新解析一条已存记录并修正，可重复执行
func (in *Ingester) Reconcile(ctx context.Context, rec *model.GachaRecord) (bool, error) {
	if rec.RealPool == nil {
		return false, nil
	}
	snap := in.catalog.Snapshot()
	poolID, realPool := classify(snap, *rec.RealPool, rec.Time)
	var changed bool
	err := in.records.Transaction(ctx, func(tx repository.RecordRepository) error {
		var err error
		changed, err = reconcile(ctx, tx, snap, rec, poolID, realPool)
		return err
	})
	return changed, err
}

// ReconcileAccount 重新归类账号的全部寻访记录，返回修正的记录数
func (in *Ingester) ReconcileAccount(ctx context.Context, accountID uint64) (int, error) {
	list, err := in.records.ListGachaRecords(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("查询寻访记录失败: %w", err)
	}
	snap := in.catalog.Snapshot()
	fixed := 0
	err = in.records.Transaction(ctx, func(tx repository.RecordRepository) error {
		for _, rec := range list {
			if rec.RealPool == nil {
				continue
			}
			poolID, realPool := classify(snap, *rec.RealPool, rec.Time)
			changed, err := reconcile(ctx, tx, snap, rec, poolID, realPool)
			if err != nil {
				return err
			}
			if changed {
				fixed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if fixed > 0 {
		in.logger.WithFields(logrus.Fields{"account_id": accountID, "fixed": fixed}).Info("寻访记录卡池归类已修正")
	}
	return fixed, nil
}

// IngestDiamonds 源石记录入库；同一时间多个平台的变动只保留第一条
func (in *Ingester) IngestDiamonds(ctx context.Context, account *model.Account, items []model.RawDiamond) (IngestResult, error) {
	seen := make(map[int64]struct{}, len(items))
	var rows []*model.DiamondRecord
	for _, item := range items {
		for _, ch := range item.Changes {
			if _, ok := seen[item.Ts]; ok {
				break
			}
			seen[item.Ts] = struct{}{}
			rows = append(rows, &model.DiamondRecord{
				AccountID:   account.ID,
				OperateTime: item.Ts,
				Operation:   item.Operation,
				Platform:    ch.Type,
				Before:      ch.Before,
				After:       ch.After,
			})
		}
	}
	return in.insert(ctx, "源石", len(rows), func(tx repository.RecordRepository) (int64, error) {
		return tx.InsertDiamonds(ctx, rows)
	})
}

// IngestPayments 充值记录入库，按订单号去重
func (in *Ingester) IngestPayments(ctx context.Context, account *model.Account, items []model.RawPay) (IngestResult, error) {
	seen := make(map[string]struct{}, len(items))
	var rows []*model.PayRecord
	for _, item := range items {
		if _, ok := seen[item.OrderID]; ok || item.OrderID == "" {
			continue
		}
		seen[item.OrderID] = struct{}{}
		rows = append(rows, &model.PayRecord{
			OrderID:   item.OrderID,
			AccountID: account.ID,
			Name:      item.ProductName,
			Amount:    item.Amount,
			PayTime:   int64(item.PayTime),
			Platform:  item.Platform,
		})
	}
	return in.insert(ctx, "充值", len(rows), func(tx repository.RecordRepository) (int64, error) {
		return tx.InsertPays(ctx, rows)
	})
}

// IngestGifts 礼包兑换记录入库
func (in *Ingester) IngestGifts(ctx context.Context, account *model.Account, items []model.RawGift) (IngestResult, error) {
	seen := make(map[int64]struct{}, len(items))
	var rows []*model.GiftRecord
	for _, item := range items {
		if _, ok := seen[item.Ts]; ok {
			continue
		}
		seen[item.Ts] = struct{}{}
		rows = append(rows, &model.GiftRecord{
			AccountID: account.ID,
			GiftTime:  item.Ts,
			Code:      item.Code,
			Name:      item.GiftName,
		})
	}
	return in.insert(ctx, "礼包", len(rows), func(tx repository.RecordRepository) (int64, error) {
		return tx.InsertGifts(ctx, rows)
	})
}

func (in *Ingester) insert(ctx context.Context, kind string, total int, fn func(tx repository.RecordRepository) (int64, error)) (IngestResult, error) {
	var created int64
	err := in.records.Transaction(ctx, func(tx repository.RecordRepository) error {
		var err error
		created, err = fn(tx)
		return err
	})
	if err != nil {
		return IngestResult{}, fmt.Errorf("%s记录入库失败: %w", kind, err)
	}
	return IngestResult{Created: int(created), Skipped: total - int(created)}, nil
}
