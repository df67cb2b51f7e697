package interfaces

import (
	"context"

	"GachaSync/internal/config"
	"GachaSync/internal/model"
	"GachaSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// HistorySource 单个账号Token对应的外部数据接口，分页接口按时间倒序返回
type HistorySource interface {
	Channel() model.Channel
	GetUserInfo(ctx context.Context) (*model.UserInfo, error)
	GetGachaPage(ctx context.Context, page int) ([]model.RawGacha, error)
	GetDiamondPage(ctx context.Context, page int) ([]model.RawDiamond, error)
	GetPayRecords(ctx context.Context) ([]model.RawPay, error)
	GetGiftRecords(ctx context.Context) ([]model.RawGift, error)
	ExchangeGift(ctx context.Context, code string) (bool, error)
}

// ChannelClient 某一渠道的接口客户端，按Token创建会话
type ChannelClient interface {
	Channel() model.Channel
	Session(token string) HistorySource
}

// Factory 渠道客户端工厂函数签名
// 入参：渠道配置、共享请求器（含全局并发闸门）、日志实例
type Factory func(cfg *config.ChannelConfig, req *httpclient.Requester, logger *logrus.Logger) ChannelClient
