package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Channel 账号渠道，决定外部接口的调用方式
type Channel int

const (
	ChannelOfficial Channel = 1
	ChannelBilibili Channel = 2
)

// String 渠道名称，与配置中 channels 的键一致
func (c Channel) String() string {
	switch c {
	case ChannelOfficial:
		return "official"
	case ChannelBilibili:
		return "bilibili"
	default:
		return "unknown"
	}
}

// ParseChannel 支持渠道ID或名称（official/bilibili，大小写不敏感）
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "official":
		return ChannelOfficial, nil
	case "2", "bilibili":
		return ChannelBilibili, nil
	}
	return 0, fmt.Errorf("未知渠道: %s", s)
}

// Platform 支付/源石变动的平台
type Platform int

const (
	PlatformIOS     Platform = 0
	PlatformAndroid Platform = 1
	PlatformAll     Platform = 2
)

func (p Platform) String() string {
	switch p {
	case PlatformIOS:
		return "iOS"
	case PlatformAndroid:
		return "Android"
	case PlatformAll:
		return "all"
	default:
		return "unknown"
	}
}

// MarshalJSON 输出平台名称
func (p Platform) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON 外部接口中平台可能是数字ID也可能是名称
func (p *Platform) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*p = Platform(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("无法解析平台: %s", string(b))
	}
	switch strings.ToLower(s) {
	case "ios", "0":
		*p = PlatformIOS
	case "android", "1":
		*p = PlatformAndroid
	case "all", "2":
		*p = PlatformAll
	default:
		return fmt.Errorf("未知平台: %s", s)
	}
	return nil
}

// UpState 是否UP的三态：未知/是/否。
// 非UP卡池或入库时卡池未知的记录为 UpUnknown，不参与歪率统计。
type UpState int8

const (
	UpUnknown UpState = iota
	UpYes
	UpNo
)

// UpStateOf 由布尔值构造已知状态
func UpStateOf(up bool) UpState {
	if up {
		return UpYes
	}
	return UpNo
}

// Known 是否为已知状态
func (u UpState) Known() bool { return u == UpYes || u == UpNo }

func (u UpState) String() string {
	switch u {
	case UpYes:
		return "up"
	case UpNo:
		return "not_up"
	default:
		return "unknown"
	}
}

// Value 以可空布尔落库
func (u UpState) Value() (driver.Value, error) {
	switch u {
	case UpYes:
		return true, nil
	case UpNo:
		return false, nil
	default:
		return nil, nil
	}
}

// Scan 兼容 PostgreSQL 的 bool 与 SQLite 的整数
func (u *UpState) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*u = UpUnknown
	case bool:
		*u = UpStateOf(v)
	case int64:
		*u = UpStateOf(v != 0)
	case []byte:
		return u.scanString(string(v))
	case string:
		return u.scanString(v)
	default:
		return fmt.Errorf("无法解析 is_up: %T", src)
	}
	return nil
}

func (u *UpState) scanString(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("无法解析 is_up: %q", s)
	}
	*u = UpStateOf(b)
	return nil
}

// MarshalJSON 未知输出为 null
func (u UpState) MarshalJSON() ([]byte, error) {
	switch u {
	case UpYes:
		return []byte("true"), nil
	case UpNo:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (u *UpState) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "null":
		*u = UpUnknown
	case "true":
		*u = UpYes
	case "false":
		*u = UpNo
	default:
		return fmt.Errorf("无法解析 is_up: %s", string(b))
	}
	return nil
}
