package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server   ServerConfig             `mapstructure:"server"`   // 服务器配置
	Database DatabaseConfig           `mapstructure:"database"` // 数据库配置
	Redis    RedisConfig              `mapstructure:"redis"`    // Redis配置（可选，用于共享统计缓存）
	Log      LogConfig                `mapstructure:"log"`      // 日志配置
	Sync     SyncConfig               `mapstructure:"sync"`     // 账号数据同步配置
	Catalog  CatalogConfig            `mapstructure:"catalog"`  // 卡池信息配置
	Gift     GiftConfig               `mapstructure:"gift"`     // 礼包码自动兑换配置
	Import   ImportConfig             `mapstructure:"import"`   // 导出文件导入配置
	Cache    CacheConfig              `mapstructure:"cache"`    // 统计缓存配置
	Worker   WorkerConfig             `mapstructure:"worker"`   // 后台任务队列配置
	Channels map[string]ChannelConfig `mapstructure:"channels"` // 各渠道接口配置（official/bilibili）
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// DatabaseConfig PostgreSQL数据库配置
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
	LogSQL          bool          `mapstructure:"log_sql"`           // 是否打印SQL
}

// RedisConfig Redis配置，Addr为空时统计缓存使用进程内存
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug/info/warn/error
	Format string `mapstructure:"format"` // text/json
}

// SyncConfig 同步调度配置
type SyncConfig struct {
	Cron           string        `mapstructure:"cron"`            // 全量账号刷新Cron表达式
	AccountWorkers int           `mapstructure:"account_workers"` // 全量刷新时并行处理的账号数
	MaxPages       int           `mapstructure:"max_pages"`       // 分页拉取的页数上限
	Concurrency    int64         `mapstructure:"concurrency"`     // 对外请求的全局并发上限
	RetryCount     int           `mapstructure:"retry_count"`     // 单次请求重试次数
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`   // 重试退避基数（按2的幂增长）
	Timezone       string        `mapstructure:"timezone"`        // 统计按月/按日分组使用的时区
}

// CatalogConfig 卡池信息配置
type CatalogConfig struct {
	URL     string `mapstructure:"url"`     // 卡池信息JSON地址
	File    string `mapstructure:"file"`    // 本地快照文件
	Cron    string `mapstructure:"cron"`    // 刷新Cron表达式
	Timeout int    `mapstructure:"timeout"` // 请求超时（秒）
	Proxy   string `mapstructure:"proxy"`   // 代理地址
}

// GiftConfig 礼包码自动兑换配置
type GiftConfig struct {
	Cron  string        `mapstructure:"cron"`  // 自动兑换Cron表达式，为空则不启用
	Codes []string      `mapstructure:"codes"` // 当前可用的礼包码
	Delay time.Duration `mapstructure:"delay"` // 同一账号两次兑换之间的间隔
}

// ImportConfig 导出文件导入配置
type ImportConfig struct {
	PublicKeyFile string `mapstructure:"public_key_file"` // 导出工具发布者公钥（PEM）
}

// CacheConfig 统计缓存配置
type CacheConfig struct {
	RankTTL       time.Duration `mapstructure:"rank_ttl"`       // 排行榜缓存有效期
	StatisticsTTL time.Duration `mapstructure:"statistics_ttl"` // 全站统计缓存有效期
}

// WorkerConfig 后台任务队列配置
type WorkerConfig struct {
	QueueSize int `mapstructure:"queue_size"` // 队列容量
	Workers   int `mapstructure:"workers"`    // 消费协程数
}

// ChannelConfig 单个渠道的接口配置
type ChannelConfig struct {
	GameBaseURL    string `mapstructure:"game_base_url"`    // 游戏侧接口地址（寻访/源石/礼包）
	AccountBaseURL string `mapstructure:"account_base_url"` // 账号侧接口地址（用户信息/充值）
	Timeout        int    `mapstructure:"timeout"`          // 请求超时（秒）
	Proxy          string `mapstructure:"proxy"`            // 代理地址
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	return LoadConfigFrom("./config")
}

// LoadConfigFrom 从指定目录加载 config.yaml
func LoadConfigFrom(dir string) (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	v.SetTypeByDefaultValue(true)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("sync.cron", "20 4 * * *")
	v.SetDefault("sync.account_workers", 4)
	v.SetDefault("sync.max_pages", 75)
	v.SetDefault("sync.concurrency", 5)
	v.SetDefault("sync.retry_count", 3)
	v.SetDefault("sync.retry_backoff", time.Second)
	v.SetDefault("sync.timezone", "Asia/Shanghai")
	v.SetDefault("catalog.url", "https://raw.githubusercontent.com/s-yh-china/ArknightsGachaData/refs/heads/master/data/pool_info.json")
	v.SetDefault("catalog.file", "data/pool_info.json")
	v.SetDefault("catalog.cron", "15 4 * * *")
	v.SetDefault("catalog.timeout", 30)
	v.SetDefault("gift.delay", time.Second)
	v.SetDefault("import.public_key_file", "data/arkgacha_public_key.pem")
	v.SetDefault("cache.rank_ttl", time.Hour)
	v.SetDefault("cache.statistics_ttl", 2*time.Hour)
	v.SetDefault("worker.queue_size", 64)
	v.SetDefault("worker.workers", 2)
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CATALOG_PROXY"); v != "" {
		cfg.Catalog.Proxy = v
	}
	for name, ch := range cfg.Channels {
		if v := os.Getenv("CHANNEL_PROXY"); v != "" && ch.Proxy == "" {
			ch.Proxy = v
		}
		cfg.Channels[name] = ch
	}
}

// Location 解析统计使用的时区，失败时回落到本地时区
func (s *SyncConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
