package config

import (
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	config              GlobalConfig // 全局配置文件
	once                sync.Once    // 只执行一次的代码
	updateDebounceTimer *time.Timer  // 配置更新防抖动
	timerMu             sync.Mutex
)

const debounceDuration = 1 * time.Second

// 重新播种策略
const (
	ReseedAdditive    = "additive"    // 只补充缺失的课程
	ReseedDestructive = "destructive" // 清空后重新写入全部默认课程
)

// 存储驱动
const (
	DriverRedis = "redis"
	DriverBolt  = "bolt"
)

type GlobalConfig struct {
	ServerConfig  ServerConf  `yaml:"server" mapstructure:"server"`   // http 服务配置
	StoreConfig   StoreConf   `yaml:"store" mapstructure:"store"`     // kv 存储配置
	RedisConfig   RedisConf   `yaml:"redis" mapstructure:"redis"`     // redis 配置
	BoltConfig    BoltConf    `yaml:"bolt" mapstructure:"bolt"`       // bbolt 配置
	DbConfig      DbConf      `yaml:"db" mapstructure:"db"`           // 数据库配置（票数归档）
	KafkaConfig   KafkaConf   `yaml:"kafka" mapstructure:"kafka"`     // kafka 配置
	CatalogConfig CatalogConf `yaml:"catalog" mapstructure:"catalog"` // 课程目录配置
	ArchiveConfig ArchiveConf `yaml:"archive" mapstructure:"archive"` // 归档配置
	LockConfig    LockConf    `yaml:"lock" mapstructure:"lock"`       // 分布式锁配置
}

type ServerConf struct {
	Addr         string `yaml:"addr" mapstructure:"addr"`                   // 监听地址
	PprofAddr    string `yaml:"pprof_addr" mapstructure:"pprof_addr"`       // pprof 地址，为空则不开启
	CallerHeader string `yaml:"caller_header" mapstructure:"caller_header"` // 宿主论坛注入用户身份的请求头
	Mode         string `yaml:"mode" mapstructure:"mode"`                   // gin 模式
}

type StoreConf struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // redis 或 bolt
}

// RedisConf 配置
type RedisConf struct {
	Host     string `yaml:"rhost" mapstructure:"rhost"`       // db主机地址
	Port     int    `yaml:"rport" mapstructure:"rport"`       // db端口
	DB       int    `yaml:"rdb" mapstructure:"rdb"`           // 数据库
	PassWord string `yaml:"passwd" mapstructure:"passwd"`     // 密码
	PoolSize int    `yaml:"poolsize" mapstructure:"poolsize"` // 连接池大小，即最大连接数
}

type BoltConf struct {
	Path string `yaml:"path" mapstructure:"path"` // 数据文件路径
}

type DbConf struct {
	Host        string `yaml:"host" mapstructure:"host"`                   // 主机地址
	Port        string `yaml:"port" mapstructure:"port"`                   // 端口号
	User        string `yaml:"user" mapstructure:"user"`                   // 用户名
	Password    string `yaml:"password" mapstructure:"password"`           // 密码
	Dbname      string `yaml:"dbname" mapstructure:"dbname"`               // 数据库名
	MaxIdleConn int    `yaml:"max_idle_conn" mapstructure:"max_idle_conn"` // 最大空闲连接数
	MaxOpenConn int    `yaml:"max_open_conn" mapstructure:"max_open_conn"` // 最大打开连接数
	MaxIdleTime int64  `yaml:"max_idle_time" mapstructure:"max_idle_time"` // 连接最大空闲时间
}

type KafkaConf struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Brokers string `yaml:"brokers" mapstructure:"brokers"`   // bootstrap.servers
	Topic   string `yaml:"topic" mapstructure:"topic"`       // 投票事件 topic
	GroupID string `yaml:"group_id" mapstructure:"group_id"` // 归档消费者组
}

type CatalogConf struct {
	Defaults []string `yaml:"defaults" mapstructure:"defaults"` // 默认课程列表
	Reseed   string   `yaml:"reseed" mapstructure:"reseed"`     // additive | destructive
}

type ArchiveConf struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"` // 刷盘间隔
}

type LockConf struct {
	TTL  time.Duration `yaml:"ttl" mapstructure:"ttl"`   // 锁过期时间
	Wait time.Duration `yaml:"wait" mapstructure:"wait"` // 获取锁的最长等待时间
}

// DefaultCourses 内置的默认课程
var DefaultCourses = []string{
	"ENG 101-1",
	"ENG 101-2",
	"MATH 101-1",
	"MATH 101-2",
}

func GetGlobalConf() *GlobalConfig {
	once.Do(func() {
		v := viper.GetViper()
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		c, err := Load(v)
		if err != nil {
			panic("read config file err:" + err.Error())
		}
		config = *c
		log.Infof("config === %+v", config)
	})
	return &config
}

// SetDefaults 写入所有配置项的默认值，配置文件缺失时也能启动
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":9090")
	v.SetDefault("server.caller_header", "X-Uid")
	v.SetDefault("server.mode", "release")
	v.SetDefault("store.driver", DriverRedis)
	v.SetDefault("redis.rhost", "127.0.0.1")
	v.SetDefault("redis.rport", 6379)
	v.SetDefault("redis.poolsize", 10)
	v.SetDefault("bolt.path", "lecturer.db")
	v.SetDefault("db.max_idle_conn", 5)
	v.SetDefault("db.max_open_conn", 20)
	v.SetDefault("db.max_idle_time", 300)
	v.SetDefault("kafka.topic", "lecturer-votes")
	v.SetDefault("kafka.group_id", "lecturer-archive")
	v.SetDefault("catalog.defaults", DefaultCourses)
	v.SetDefault("catalog.reseed", ReseedAdditive)
	v.SetDefault("archive.interval", time.Minute)
	v.SetDefault("lock.ttl", 5*time.Second)
	v.SetDefault("lock.wait", 3*time.Second)
}

// Load 读取配置文件并反序列化；找不到配置文件时只使用默认值和环境变量
func Load(v *viper.Viper) (*GlobalConfig, error) {
	SetDefaults(v)
	v.SetEnvPrefix("LECTURER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		log.Warn("config file not found, using defaults")
	}
	var c GlobalConfig
	if err := v.Unmarshal(&c); err != nil { // 将配置信息反序列化填充到配置结构体中
		return nil, err
	}
	if c.CatalogConfig.Reseed != ReseedAdditive && c.CatalogConfig.Reseed != ReseedDestructive {
		log.Warnf("unknown reseed policy %q, falling back to %s", c.CatalogConfig.Reseed, ReseedAdditive)
		c.CatalogConfig.Reseed = ReseedAdditive
	}
	return &c, nil
}

// Watch 监听配置文件的变化，防抖后把新的课程默认列表交给 onCatalog
func Watch(v *viper.Viper, onCatalog func(defaults []string)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		timerMu.Lock()
		defer timerMu.Unlock()
		if updateDebounceTimer != nil {
			updateDebounceTimer.Stop()
		}
		updateDebounceTimer = time.AfterFunc(debounceDuration, func() {
			if err := v.ReadInConfig(); err != nil { // 重新加载
				log.WithError(err).Warn("reload config failed")
				return
			}
			defaults := v.GetStringSlice("catalog.defaults")
			log.WithField("file", e.Name).Infof("更新配置项, catalog.defaults=%v", defaults)
			onCatalog(defaults)
		})
	})
	v.WatchConfig()
}
