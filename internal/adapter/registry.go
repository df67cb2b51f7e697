package adapter

import (
	"fmt"

	"GachaSync/internal/config"
	"GachaSync/internal/interfaces"
	"GachaSync/internal/model"
	"GachaSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// ChannelRegistry 按渠道持有已初始化的接口客户端
type ChannelRegistry struct {
	logger  *logrus.Logger
	clients map[model.Channel]interfaces.ChannelClient
}

// RequesterFactory 按渠道配置（超时、代理）创建请求器
type RequesterFactory func(cfg config.ChannelConfig) *httpclient.Requester

// NewChannelRegistry 遍历配置中的渠道，用已注册的工厂函数创建客户端
func NewChannelRegistry(channels map[string]config.ChannelConfig, newRequester RequesterFactory, logger *logrus.Logger) *ChannelRegistry {
	r := &ChannelRegistry{
		logger:  logger,
		clients: make(map[model.Channel]interfaces.ChannelClient),
	}
	logger.WithField("factory_channels", ListFactories()).Debug("已注册的渠道工厂函数")

	for name, chCfg := range channels {
		channel, err := model.ParseChannel(name)
		if err != nil {
			logger.WithError(err).WithField("channel", name).Error("配置中的渠道名称无法识别")
			continue
		}
		factory, ok := GetFactory(channel)
		if !ok {
			logger.WithField("channel", name).Error("未找到对应的工厂函数（init未注册？）")
			continue
		}
		cfg := chCfg
		client := factory(&cfg, newRequester(cfg), logger)
		if client == nil {
			logger.WithField("channel", name).Error("工厂函数返回nil客户端")
			continue
		}
		if client.Channel() != channel {
			logger.WithFields(logrus.Fields{
				"config_channel":  channel,
				"adapter_channel": client.Channel(),
			}).Error("适配器渠道与配置不匹配")
			continue
		}
		r.clients[channel] = client
		logger.WithField("channel", name).Info("渠道客户端初始化成功")
	}
	return r
}

// Register 直接放入客户端实例（测试或自定义渠道使用）
func (r *ChannelRegistry) Register(client interfaces.ChannelClient) {
	r.clients[client.Channel()] = client
}

// Source 按渠道和Token获取外部数据接口
func (r *ChannelRegistry) Source(channel model.Channel, token string) (interfaces.HistorySource, error) {
	client, ok := r.clients[channel]
	if !ok {
		return nil, fmt.Errorf("渠道%s未初始化客户端", channel)
	}
	return client.Session(token), nil
}

// Channels 已初始化的渠道
func (r *ChannelRegistry) Channels() []model.Channel {
	var out []model.Channel
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}
