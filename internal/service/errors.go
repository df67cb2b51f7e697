package service

import (
	"context"
	"errors"
	"fmt"

	"GachaSync/internal/model"
	"GachaSync/internal/repository"

	"gorm.io/gorm"
)

var (
	// ErrAccountNotFound UID对应的账号不存在
	ErrAccountNotFound = errors.New("账号不存在")
	// ErrAccountUnavailable 账号Token已被标记为不可用，需要重新绑定
	ErrAccountUnavailable = errors.New("账号Token不可用")
	// ErrPoolNotFound 卡池ID不在当前卡池信息中
	ErrPoolNotFound = errors.New("卡池不存在")
)

func findAccount(ctx context.Context, accounts repository.AccountRepository, uid string) (*model.Account, error) {
	acc, err := accounts.GetByUID(ctx, uid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, uid)
	}
	if err != nil {
		return nil, fmt.Errorf("查询账号失败: %w", err)
	}
	return acc, nil
}
