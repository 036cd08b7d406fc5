package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// SerialConfig 串口配置
type SerialConfig struct {
	Port                string        `mapstructure:"port"`
	Baud                int           `mapstructure:"baud"`
	DataBits            int           `mapstructure:"dataBits"`
	Parity              string        `mapstructure:"parity"`
	StopBits            int           `mapstructure:"stopBits"`
	ReadBufferSize      int           `mapstructure:"readBufferSize"`
	ReadTimeout         time.Duration `mapstructure:"readTimeout"`
	MaxPendingMessages  int           `mapstructure:"maxPendingMessages"`
	SendRateBytesPerSec int           `mapstructure:"sendRateBytesPerSec"`
}

// SessionConfig 会话行为配置
type SessionConfig struct {
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
	SweepInterval  time.Duration `mapstructure:"sweepInterval"`
	MaxFrameSize   int           `mapstructure:"maxFrameSize"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// DiagConfig 诊断 HTTP 服务配置（指标与健康检查）
type DiagConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Path   string `mapstructure:"path"`
}

// Config 顶层配置结构
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Serial  SerialConfig  `mapstructure:"serial"`
	Session SessionConfig `mapstructure:"session"`
	Logging LoggingConfig `mapstructure:"logging"`
	Diag    DiagConfig    `mapstructure:"diag"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 ACTISENSE_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv("ACTISENSE_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	// 默认值
	setDefaults(v)

	// 环境变量覆盖：前缀 ACTISENSE_，并将点号替换为下划线
	v.SetEnvPrefix("ACTISENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if fmt.Sprintf("%T", err) != fmt.Sprintf("%T", notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "actisense-sdk")
	v.SetDefault("app.env", "dev")

	v.SetDefault("serial.port", "/dev/ttyUSB0")
	v.SetDefault("serial.baud", 115200)
	v.SetDefault("serial.dataBits", 8)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.stopBits", 1)
	v.SetDefault("serial.readBufferSize", 4096)
	v.SetDefault("serial.readTimeout", "50ms")
	v.SetDefault("serial.maxPendingMessages", 64)
	v.SetDefault("serial.sendRateBytesPerSec", 0)

	v.SetDefault("session.requestTimeout", "5s")
	v.SetDefault("session.sweepInterval", "5ms")
	v.SetDefault("session.maxFrameSize", 2048)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("diag.enable", false)
	v.SetDefault("diag.addr", ":9102")
	v.SetDefault("diag.path", "/metrics")
}
