// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Taxonomy TaxonomyConfig `mapstructure:"taxonomy"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
}

type MySQLConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
	// LogLevel 控制 SQL 日志：silent/error/warn/info
	LogLevel string `mapstructure:"log_level"`
}

type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// TaxonomyConfig 是分类树引擎的运行参数。
type TaxonomyConfig struct {
	// DefaultLanguageID 请求未指定语言时使用的语言
	DefaultLanguageID uint `mapstructure:"default_language_id"`
	// DisabledLabel 节点被禁用时替换标题的文案
	DisabledLabel string `mapstructure:"disabled_label"`
	// AtomicCascade 为 true 时级联设置编辑者在一个事务里执行，失败整体回滚
	AtomicCascade bool `mapstructure:"atomic_cascade"`
	// ExcludeDisabled 树查询默认是否隐藏禁用节点的标题
	ExcludeDisabled bool `mapstructure:"exclude_disabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.mysql.max_idle_conns", 10)
	v.SetDefault("database.mysql.max_open_conns", 100)
	v.SetDefault("database.mysql.conn_max_lifetime_minutes", 60)
	v.SetDefault("database.mysql.log_level", "warn")
	v.SetDefault("jwt.access_token_expire_hours", 2)
	v.SetDefault("jwt.refresh_token_expire_days", 7)
	v.SetDefault("taxonomy.default_language_id", 1)
	v.SetDefault("taxonomy.disabled_label", "(disabled)")
	v.SetDefault("taxonomy.atomic_cascade", false)
	v.SetDefault("taxonomy.exclude_disabled", false)
}

// Load 从指定路径读取 YAML 配置，环境变量 TAXONOMY_<SECTION>_<KEY> 可覆盖文件中的值。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TAXONOMY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Init 在进程启动时加载配置到 Conf，失败直接 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	Conf = cfg
}
