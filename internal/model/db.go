package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// User 站点用户，仅保留排行/统计需要的偏好字段（登录鉴权不在本服务内）
type User struct {
	ID        uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	Username  string         `gorm:"column:username;type:varchar(32);uniqueIndex;not null;comment:站点用户名"`
	Disabled  bool           `gorm:"column:disabled;type:boolean;default:false;comment:是否禁用"`
	Config    datatypes.JSON `gorm:"column:config;type:jsonb;comment:用户偏好配置"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime;comment:更新时间"`
}

// Account 游戏账号
type Account struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	UID       string    `gorm:"column:uid;type:varchar(20);uniqueIndex;not null;comment:游戏UID"`
	OwnerID   *uint64   `gorm:"column:owner_id;index;comment:所属站点用户"`
	Owner     *User     `gorm:"foreignKey:OwnerID"`
	Nickname  string    `gorm:"column:nickname;type:varchar(50);comment:游戏昵称"`
	Token     string    `gorm:"column:token;type:varchar(300);not null;comment:官方接口Token"`
	Channel   Channel   `gorm:"column:channel;type:smallint;not null;comment:渠道：1官服/2B服"`
	Available bool      `gorm:"column:available;type:boolean;not null;comment:Token是否可用"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime;comment:更新时间"`
}

// GachaRecord 一次寻访（单抽或十连）记录，(account_id, time) 唯一
type GachaRecord struct {
	ID        uint64      `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	AccountID uint64      `gorm:"column:account_id;not null;uniqueIndex:uk_gacha_account_time;comment:关联账号ID"`
	Time      int64       `gorm:"column:time;not null;uniqueIndex:uk_gacha_account_time;comment:寻访时间（秒）"`
	PoolID    *string     `gorm:"column:pool_id;type:varchar(64);index;comment:解析出的卡池ID，空为未知"`
	RealPool  *string     `gorm:"column:real_pool;type:varchar(128);comment:接口返回的卡池名称"`
	Items     []GachaItem `gorm:"foreignKey:RecordID"`
}

// GachaItem 寻访结果中的单个干员
type GachaItem struct {
	ID       uint64  `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	RecordID uint64  `gorm:"column:record_id;not null;uniqueIndex:uk_item_record_index;comment:关联寻访记录ID"`
	Index    int     `gorm:"column:item_index;not null;uniqueIndex:uk_item_record_index;comment:十连内序号"`
	Name     string  `gorm:"column:name;type:varchar(32);not null;comment:干员名称"`
	Rarity   int     `gorm:"column:rarity;not null;comment:星级3-6"`
	IsNew    bool    `gorm:"column:is_new;type:boolean;default:false;comment:是否首次获得"`
	Up       UpState `gorm:"column:is_up;type:boolean;comment:是否UP，空为未知"`
}

// PayRecord 充值记录，order_id 全局唯一
type PayRecord struct {
	ID        uint64   `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	OrderID   string   `gorm:"column:order_id;type:varchar(64);uniqueIndex;not null;comment:订单号"`
	AccountID uint64   `gorm:"column:account_id;index;not null;comment:关联账号ID"`
	Name      string   `gorm:"column:name;type:varchar(128);comment:商品名称"`
	Amount    int64    `gorm:"column:amount;not null;comment:金额（分）"`
	PayTime   int64    `gorm:"column:pay_time;not null;comment:支付时间（秒）"`
	Platform  Platform `gorm:"column:platform;type:smallint;comment:支付平台"`
}

// DiamondRecord 源石变动记录，(account_id, operate_time) 唯一
type DiamondRecord struct {
	ID          uint64   `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	AccountID   uint64   `gorm:"column:account_id;not null;uniqueIndex:uk_diamond_account_time;comment:关联账号ID"`
	OperateTime int64    `gorm:"column:operate_time;not null;uniqueIndex:uk_diamond_account_time;comment:变动时间（秒）"`
	Operation   string   `gorm:"column:operation;type:varchar(64);comment:变动原因"`
	Platform    Platform `gorm:"column:platform;type:smallint;comment:平台"`
	Before      int64    `gorm:"column:before;comment:变动前"`
	After       int64    `gorm:"column:after;comment:变动后"`
}

// Change 本次变动量，正数为获得
func (d DiamondRecord) Change() int64 { return d.After - d.Before }

// GiftRecord 礼包码兑换记录，(account_id, gift_time) 唯一
type GiftRecord struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	AccountID uint64 `gorm:"column:account_id;not null;uniqueIndex:uk_gift_account_time;comment:关联账号ID"`
	GiftTime  int64  `gorm:"column:gift_time;not null;uniqueIndex:uk_gift_account_time;comment:兑换时间（秒）"`
	Code      string `gorm:"column:code;type:varchar(64);comment:礼包码"`
	Name      string `gorm:"column:name;type:varchar(128);comment:礼包名称"`
}

func (User) TableName() string          { return "users" }
func (Account) TableName() string       { return "accounts" }
func (GachaRecord) TableName() string   { return "gacha_records" }
func (GachaItem) TableName() string     { return "gacha_items" }
func (PayRecord) TableName() string     { return "pay_records" }
func (DiamondRecord) TableName() string { return "diamond_records" }
func (GiftRecord) TableName() string    { return "gift_records" }

// AllTables AutoMigrate 使用的表，按依赖顺序排列
func AllTables() []interface{} {
	return []interface{}{
		&User{},
		&Account{},
		&GachaRecord{},
		&GachaItem{},
		&PayRecord{},
		&DiamondRecord{},
		&GiftRecord{},
	}
}

// NameDisplay 排行榜中账号名的展示方式
type NameDisplay string

const (
	NameDisplayFull    NameDisplay = "FULL"
	NameDisplayHideMid NameDisplay = "HIDE_MID"
	NameDisplayHideAll NameDisplay = "HIDE_ALL"
)

// UserConfig 用户偏好，以JSON存于 users.config
type UserConfig struct {
	Nickname        string      `json:"nickname"`
	IsStatistics    bool        `json:"is_statistics"`
	IsLuckyRank     bool        `json:"is_lucky_rank"`
	IsAutoGift      bool        `json:"is_auto_gift"`
	NameDisplay     NameDisplay `json:"name_display"`
	NicknameDisplay bool        `json:"nickname_display"`
}

// DefaultUserConfig 新用户的默认偏好
func DefaultUserConfig() UserConfig {
	return UserConfig{
		Nickname:     "未设置",
		IsStatistics: true,
		NameDisplay:  NameDisplayHideAll,
	}
}

// Settings 解析偏好配置，缺失字段取默认值
func (u *User) Settings() UserConfig {
	cfg := DefaultUserConfig()
	if u == nil || len(u.Config) == 0 {
		return cfg
	}
	_ = json.Unmarshal(u.Config, &cfg)
	return cfg
}

// SetSettings 写回偏好配置
func (u *User) SetSettings(cfg UserConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	u.Config = datatypes.JSON(b)
	return nil
}
