package adapter

import (
	"errors"
	"fmt"

	"GachaSync/internal/interfaces"
	"GachaSync/internal/model"

	"github.com/sirupsen/logrus"
)

// ========== 全局工厂函数注册表 ==========
var factoryRegistry = make(map[model.Channel]interfaces.Factory)

// Register 供渠道适配器init函数调用，注册工厂函数
func Register(channel model.Channel, factory interfaces.Factory) {
	if factory == nil {
		panic(fmt.Sprintf("渠道%s的工厂函数不能为nil", channel))
	}
	if _, exists := factoryRegistry[channel]; exists {
		logrus.Warnf("渠道%s的适配器已注册，将覆盖原有实现", channel)
	}
	factoryRegistry[channel] = factory
}

// GetFactory 获取指定渠道的工厂函数
func GetFactory(channel model.Channel) (interfaces.Factory, bool) {
	factory, ok := factoryRegistry[channel]
	return factory, ok
}

// ListFactories 列出所有已注册的工厂函数渠道
func ListFactories() []model.Channel {
	var channels []model.Channel
	for c := range factoryRegistry {
		channels = append(channels, c)
	}
	return channels
}

// ErrTokenRejected 外部接口拒绝了账号Token，需要用户重新提供
var ErrTokenRejected = errors.New("账号Token已失效")
