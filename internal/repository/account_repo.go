package repository

import (
	"context"
	"fmt"

	"GachaSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountRepository 账号与站点用户持久化
type AccountRepository interface {
	GetByUID(ctx context.Context, uid string) (*model.Account, error)
	GetByID(ctx context.Context, id uint64) (*model.Account, error)
	ListAll(ctx context.Context) ([]*model.Account, error)
	ListAvailable(ctx context.Context) ([]*model.Account, error)
	ListWithOwner(ctx context.Context) ([]*model.Account, error)
	Upsert(ctx context.Context, account *model.Account) error
	MarkUnavailable(ctx context.Context, id uint64) error
	GetUserByName(ctx context.Context, username string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository 创建账号仓储
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// GetByUID 按游戏UID查询账号（含所属用户），不存在时返回 gorm.ErrRecordNotFound
func (r *accountRepository) GetByUID(ctx context.Context, uid string) (*model.Account, error) {
	var acc model.Account
	if err := r.db.WithContext(ctx).Preload("Owner").Where("uid = ?", uid).First(&acc).Error; err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id uint64) (*model.Account, error) {
	var acc model.Account
	if err := r.db.WithContext(ctx).Preload("Owner").First(&acc, id).Error; err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *accountRepository) ListAll(ctx context.Context) ([]*model.Account, error) {
	var list []*model.Account
	err := r.db.WithContext(ctx).Preload("Owner").Order("id ASC").Find(&list).Error
	return list, err
}

// ListAvailable Token可用的账号，按ID升序
func (r *accountRepository) ListAvailable(ctx context.Context) ([]*model.Account, error) {
	var list []*model.Account
	err := r.db.WithContext(ctx).Preload("Owner").
		Where("available = ?", true).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

// ListWithOwner 有所属用户的全部账号（排行与全站统计的候选集）
func (r *accountRepository) ListWithOwner(ctx context.Context) ([]*model.Account, error) {
	var list []*model.Account
	err := r.db.WithContext(ctx).Preload("Owner").
		Where("owner_id IS NOT NULL").
		Order("id ASC").
		Find(&list).Error
	return list, err
}

// Upsert 按UID新建或更新账号的Token/渠道/昵称/可用状态，完成后回填ID
func (r *accountRepository) Upsert(ctx context.Context, account *model.Account) error {
	columns := []string{"token", "channel", "nickname", "available", "updated_at"}
	if account.OwnerID != nil {
		columns = append(columns, "owner_id")
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uid"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Omit("Owner").Create(account).Error
	if err != nil {
		return fmt.Errorf("保存账号失败: %w, uid: %s", err, account.UID)
	}
	// 冲突更新时部分驱动不会回填主键
	if account.ID == 0 {
		var stored model.Account
		if err := r.db.WithContext(ctx).Select("id").Where("uid = ?", account.UID).First(&stored).Error; err != nil {
			return fmt.Errorf("查询账号ID失败: %w, uid: %s", err, account.UID)
		}
		account.ID = stored.ID
	}
	return nil
}

// MarkUnavailable Token被拒绝后标记账号不可用
func (r *accountRepository) MarkUnavailable(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&model.Account{}).
		Where("id = ?", id).
		Update("available", false).Error
}

func (r *accountRepository) GetUserByName(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *accountRepository) CreateUser(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}
