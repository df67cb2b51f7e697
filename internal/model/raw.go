package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// UnknownRealPool 接口对无法识别的卡池返回的名称
const UnknownRealPool = "未知卡池"

// Timestamp 外部接口时间戳（秒），兼容数字和数字字符串
type Timestamp int64

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*t = Timestamp(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("无法解析时间戳: %s", string(b))
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("无法解析时间戳: %q", s)
	}
	*t = Timestamp(n)
	return nil
}

// RawGacha 寻访记录接口中的一条记录（一次单抽或十连）
type RawGacha struct {
	Ts    int64     `json:"ts"`
	Pool  string    `json:"pool"`
	Chars []RawChar `json:"chars"`
}

// RawChar 寻访结果中的干员，Rarity 为接口原始值（0起）
type RawChar struct {
	Name   string `json:"name"`
	Rarity int    `json:"rarity"`
	IsNew  bool   `json:"isNew"`
}

func (r RawGacha) Timestamp() int64 { return r.Ts }

// RawDiamond 源石记录接口中的一条记录
type RawDiamond struct {
	Ts        int64              `json:"ts"`
	Operation string             `json:"operation"`
	Changes   []RawDiamondChange `json:"changes"`
}

// RawDiamondChange 单个平台上的源石变动
type RawDiamondChange struct {
	Type   Platform `json:"type"`
	Before int64    `json:"before"`
	After  int64    `json:"after"`
}

func (r RawDiamond) Timestamp() int64 { return r.Ts }

// RawPay 充值记录接口中的一条记录，Amount 单位为分
type RawPay struct {
	OrderID     string    `json:"orderId"`
	ProductName string    `json:"productName"`
	Amount      int64     `json:"amount"`
	PayTime     Timestamp `json:"payTime"`
	Platform    Platform  `json:"platform"`
}

// RawGift 礼包码兑换记录接口中的一条记录
type RawGift struct {
	Ts       int64  `json:"ts"`
	GiftName string `json:"giftName"`
	Code     string `json:"code"`
}

// UserInfo 用户信息接口返回
type UserInfo struct {
	UID      string `json:"uid"`
	NickName string `json:"nickName"`
}
