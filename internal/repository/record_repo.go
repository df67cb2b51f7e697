package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"GachaSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DrawTally 单个账号的抽数汇总
type DrawTally struct {
	AccountID uint64 `gorm:"column:account_id"`
	Draws     int64  `gorm:"column:draws"`
	Six       int64  `gorm:"column:six"`
	SixKnown  int64  `gorm:"column:six_known"`
	SixNotUp  int64  `gorm:"column:six_not_up"`
}

// TallyFilter 汇总条件，PoolIDs 为空表示不限卡池
type TallyFilter struct {
	AccountIDs []uint64
	PoolIDs    []string
}

// RecordRepository 寻访/源石/充值/礼包记录持久化
type RecordRepository interface {
	// Transaction 在同一事务内执行 fn，fn 返回错误或 panic 时回滚
	Transaction(ctx context.Context, fn func(tx RecordRepository) error) error

	LatestGachaTime(ctx context.Context, accountID uint64) (int64, error)
	LatestDiamondTime(ctx context.Context, accountID uint64) (int64, error)

	CreateGachaRecord(ctx context.Context, record *model.GachaRecord) (bool, error)
	FindGachaRecord(ctx context.Context, accountID uint64, ts int64) (*model.GachaRecord, error)
	UpdateClassification(ctx context.Context, recordID uint64, poolID, realPool *string) error
	UpdateItemUp(ctx context.Context, itemID uint64, up model.UpState) error

	InsertDiamonds(ctx context.Context, records []*model.DiamondRecord) (int64, error)
	InsertPays(ctx context.Context, records []*model.PayRecord) (int64, error)
	InsertGifts(ctx context.Context, records []*model.GiftRecord) (int64, error)

	ListGachaRecords(ctx context.Context, accountID uint64) ([]*model.GachaRecord, error)
	ListGachaRecordsByPool(ctx context.Context, accountID uint64, poolID string) ([]*model.GachaRecord, error)
	ListGachaRecordsByAccounts(ctx context.Context, accountIDs []uint64) ([]*model.GachaRecord, error)
	ListPayRecords(ctx context.Context, accountIDs ...uint64) ([]*model.PayRecord, error)
	ListDiamondRecords(ctx context.Context, accountIDs ...uint64) ([]*model.DiamondRecord, error)
	ListGiftCodes(ctx context.Context, accountID uint64) ([]string, error)
	TallyDraws(ctx context.Context, filter TallyFilter) ([]DrawTally, error)
}

type recordRepository struct {
	db *gorm.DB
}

// NewRecordRepository 创建记录仓储
func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) Transaction(ctx context.Context, fn func(tx RecordRepository) error) (err error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("开启事务失败: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			err = fmt.Errorf("事务执行异常: %v", p)
		}
	}()

	if err := fn(&recordRepository{db: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// LatestGachaTime 已入库的最新寻访时间，作为增量拉取的游标；无记录返回0
func (r *recordRepository) LatestGachaTime(ctx context.Context, accountID uint64) (int64, error) {
	var ts sql.NullInt64
	row := r.db.WithContext(ctx).Model(&model.GachaRecord{}).
		Where("account_id = ?", accountID).
		Select("MAX(time)").Row()
	if err := row.Scan(&ts); err != nil {
		return 0, err
	}
	return ts.Int64, nil
}

func (r *recordRepository) LatestDiamondTime(ctx context.Context, accountID uint64) (int64, error) {
	var ts sql.NullInt64
	row := r.db.WithContext(ctx).Model(&model.DiamondRecord{}).
		Where("account_id = ?", accountID).
		Select("MAX(operate_time)").Row()
	if err := row.Scan(&ts); err != nil {
		return 0, err
	}
	return ts.Int64, nil
}

// CreateGachaRecord 按 (account_id, time) 插入寻访记录及其干员；记录已存在时不写入并返回 false
func (r *recordRepository) CreateGachaRecord(ctx context.Context, record *model.GachaRecord) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Omit(clause.Associations).
		Create(record)
	if res.Error != nil {
		return false, fmt.Errorf("保存寻访记录失败: %w, time: %d", res.Error, record.Time)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if len(record.Items) == 0 {
		return true, nil
	}
	for i := range record.Items {
		record.Items[i].RecordID = record.ID
	}
	if err := r.db.WithContext(ctx).Create(&record.Items).Error; err != nil {
		return false, fmt.Errorf("保存寻访干员失败: %w, record_id: %d", err, record.ID)
	}
	return true, nil
}

// FindGachaRecord 查询单条寻访记录（含干员，按序号排列），不存在返回 nil
func (r *recordRepository) FindGachaRecord(ctx context.Context, accountID uint64, ts int64) (*model.GachaRecord, error) {
	var rec model.GachaRecord
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("item_index ASC") }).
		Where("account_id = ? AND time = ?", accountID, ts).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepository) UpdateClassification(ctx context.Context, recordID uint64, poolID, realPool *string) error {
	return r.db.WithContext(ctx).Model(&model.GachaRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"pool_id":   poolID,
			"real_pool": realPool,
		}).Error
}

func (r *recordRepository) UpdateItemUp(ctx context.Context, itemID uint64, up model.UpState) error {
	return r.db.WithContext(ctx).Model(&model.GachaItem{}).
		Where("id = ?", itemID).
		Update("is_up", up).Error
}

// InsertDiamonds 按 (account_id, operate_time) 去重插入，返回新增条数
func (r *recordRepository) InsertDiamonds(ctx context.Context, records []*model.DiamondRecord) (int64, error) {
	return r.insertIgnore(ctx, records, len(records))
}

// InsertPays 按 order_id 去重插入
func (r *recordRepository) InsertPays(ctx context.Context, records []*model.PayRecord) (int64, error) {
	return r.insertIgnore(ctx, records, len(records))
}

// InsertGifts 按 (account_id, gift_time) 去重插入
func (r *recordRepository) InsertGifts(ctx context.Context, records []*model.GiftRecord) (int64, error) {
	return r.insertIgnore(ctx, records, len(records))
}

func (r *recordRepository) insertIgnore(ctx context.Context, value interface{}, n int) (int64, error) {
	if n == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(value, 200)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *recordRepository) gachaQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("item_index ASC") }).
		Order("time ASC").Order("id ASC")
}

// ListGachaRecords 账号的全部寻访记录，按时间正序
func (r *recordRepository) ListGachaRecords(ctx context.Context, accountID uint64) ([]*model.GachaRecord, error) {
	var list []*model.GachaRecord
	err := r.gachaQuery(ctx).Where("account_id = ?", accountID).Find(&list).Error
	return list, err
}

func (r *recordRepository) ListGachaRecordsByPool(ctx context.Context, accountID uint64, poolID string) ([]*model.GachaRecord, error) {
	var list []*model.GachaRecord
	err := r.gachaQuery(ctx).Where("account_id = ? AND pool_id = ?", accountID, poolID).Find(&list).Error
	return list, err
}

func (r *recordRepository) ListGachaRecordsByAccounts(ctx context.Context, accountIDs []uint64) ([]*model.GachaRecord, error) {
	var list []*model.GachaRecord
	if len(accountIDs) == 0 {
		return list, nil
	}
	err := r.gachaQuery(ctx).Where("account_id IN ?", accountIDs).Find(&list).Error
	return list, err
}

// ListPayRecords 充值记录，按支付时间倒序
func (r *recordRepository) ListPayRecords(ctx context.Context, accountIDs ...uint64) ([]*model.PayRecord, error) {
	var list []*model.PayRecord
	if len(accountIDs) == 0 {
		return list, nil
	}
	err := r.db.WithContext(ctx).Where("account_id IN ?", accountIDs).
		Order("pay_time DESC").Order("id DESC").Find(&list).Error
	return list, err
}

// ListDiamondRecords 源石记录，按时间倒序
func (r *recordRepository) ListDiamondRecords(ctx context.Context, accountIDs ...uint64) ([]*model.DiamondRecord, error) {
	var list []*model.DiamondRecord
	if len(accountIDs) == 0 {
		return list, nil
	}
	err := r.db.WithContext(ctx).Where("account_id IN ?", accountIDs).
		Order("operate_time DESC").Order("id DESC").Find(&list).Error
	return list, err
}

// ListGiftCodes 账号已兑换过的礼包码
func (r *recordRepository) ListGiftCodes(ctx context.Context, accountID uint64) ([]string, error) {
	var codes []string
	err := r.db.WithContext(ctx).Model(&model.GiftRecord{}).
		Where("account_id = ?", accountID).
		Pluck("code", &codes).Error
	return codes, err
}

// TallyDraws 按账号汇总抽数、六星数及六星歪率所需计数
func (r *recordRepository) TallyDraws(ctx context.Context, filter TallyFilter) ([]DrawTally, error) {
	var out []DrawTally
	if len(filter.AccountIDs) == 0 {
		return out, nil
	}
	q := r.db.WithContext(ctx).Table("gacha_items AS i").
		Select(`r.account_id AS account_id,
			COUNT(*) AS draws,
			SUM(CASE WHEN i.rarity = 6 THEN 1 ELSE 0 END) AS six,
			SUM(CASE WHEN i.rarity = 6 AND i.is_up IS NOT NULL THEN 1 ELSE 0 END) AS six_known,
			SUM(CASE WHEN i.rarity = 6 AND i.is_up = ? THEN 1 ELSE 0 END) AS six_not_up`, false).
		Joins("JOIN gacha_records AS r ON r.id = i.record_id").
		Where("r.account_id IN ?", filter.AccountIDs)
	if len(filter.PoolIDs) > 0 {
		q = q.Where("r.pool_id IN ?", filter.PoolIDs)
	}
	err := q.Group("r.account_id").Order("r.account_id ASC").Scan(&out).Error
	return out, err
}
