// Package config 提供了模拟运行配置的加载、校验与热更新.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wyfcoding/exposure/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 一次模拟运行的全部配置.
type Config struct {
	Version    string           `mapstructure:"version"    toml:"version"`
	Log        LogConfig        `mapstructure:"log"        toml:"log"`
	Simulation SimulationConfig `mapstructure:"simulation" toml:"simulation"`
	Output     OutputConfig     `mapstructure:"output"     toml:"output"`
	Storage    StorageConfig    `mapstructure:"storage"    toml:"storage"`
	Kafka      KafkaConfig      `mapstructure:"kafka"      toml:"kafka"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    toml:"metrics"`
	Tracing    TracingConfig    `mapstructure:"tracing"    toml:"tracing"`
}

// LogConfig 定义日志输出、级别、标签与切割策略.
type LogConfig struct {
	Level      string   `mapstructure:"level"       toml:"level"       validate:"omitempty,oneof=debug info warn error"`
	File       string   `mapstructure:"file"        toml:"file"`        // 日志文件路径，为空则只输出到 stdout。
	Console    bool     `mapstructure:"console"     toml:"console"`     // 配置了文件时是否同时输出到 stdout。
	Tags       []string `mapstructure:"tags"        toml:"tags"`        // 允许输出的标签，"*" 表示全部。
	// ConsoleTags 同时输出到 stdout 时控制台单独使用的标签列表，为空则沿用 Tags。
	ConsoleTags []string `mapstructure:"console_tags" toml:"console_tags"`
	MaxSize    int      `mapstructure:"max_size"    toml:"max_size"`    // 单个文件最大大小 (MB)。
	MaxBackups int      `mapstructure:"max_backups" toml:"max_backups"` // 最大备份数。
	MaxAge     int      `mapstructure:"max_age"     toml:"max_age"`     // 最大保留天数。
	Compress   bool     `mapstructure:"compress"    toml:"compress"`    // 是否启用压缩。
}

// SimulationConfig 蒙特卡洛参数.
type SimulationConfig struct {
	NumPaths          int       `mapstructure:"num_paths"          toml:"num_paths"          validate:"required,min=1"`
	TimeSteps         []float64 `mapstructure:"time_steps"         toml:"time_steps"         validate:"required,min=1"`
	Seed              uint64    `mapstructure:"seed"               toml:"seed"`
	Parallelism       int       `mapstructure:"parallelism"        toml:"parallelism"        validate:"min=0"`
	RecycleRandomness bool      `mapstructure:"recycle_randomness" toml:"recycle_randomness"`
	RandomnessFile    string    `mapstructure:"randomness_file"    toml:"randomness_file"    validate:"required_if=RecycleRandomness true"`
}

// OutputConfig 结果文件名 (相对存储根目录或桶).
type OutputConfig struct {
	Variables         string    `mapstructure:"variables"           toml:"variables"`
	Outputs           string    `mapstructure:"outputs"             toml:"outputs"`
	Exposures         string    `mapstructure:"exposures"           toml:"exposures"`
	Cashflows         string    `mapstructure:"cashflows"           toml:"cashflows"`
	CashflowSummary   string    `mapstructure:"cashflow_summary"    toml:"cashflow_summary"`
	Profiles          string    `mapstructure:"profiles"            toml:"profiles"`
	ProfileQuantile   float64   `mapstructure:"profile_quantile"    toml:"profile_quantile"    validate:"gt=0,lte=1"`
	ExerciseOutputDir string    `mapstructure:"exercise_output_dir" toml:"exercise_output_dir"`
	DumpModels        bool      `mapstructure:"dump_models"         toml:"dump_models"`
	ModelOutputDir    string    `mapstructure:"model_output_dir"    toml:"model_output_dir"`
	DumpModelValues   bool      `mapstructure:"dump_model_values"   toml:"dump_model_values"`
	ModelValuesTerms  []float64 `mapstructure:"model_values_terms"  toml:"model_values_terms"  validate:"required_if=DumpModelValues true"`
	ModelValues       string    `mapstructure:"model_values"        toml:"model_values"        validate:"required_if=DumpModelValues true"`
}

// StorageConfig 结果与随机数的存储后端.
type StorageConfig struct {
	Driver string      `mapstructure:"driver" toml:"driver" validate:"oneof=file minio"`
	Dir    string      `mapstructure:"dir"    toml:"dir"`
	Minio  MinioConfig `mapstructure:"minio"  toml:"minio"`
}

// MinioConfig 定义 S3 兼容对象存储 MinIO 的连接参数.
type MinioConfig struct {
	Endpoint        string `mapstructure:"endpoint"          toml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"     toml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" toml:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"       toml:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"           toml:"use_ssl"`
}

// KafkaConfig 敞口曲线发布参数.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"       toml:"enabled"`
	Topic        string        `mapstructure:"topic"         toml:"topic"         validate:"required_if=Enabled true"`
	Brokers      []string      `mapstructure:"brokers"       toml:"brokers"       validate:"required_if=Enabled true"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" toml:"write_timeout"`
	RequiredAcks int           `mapstructure:"required_acks" toml:"required_acks"`
	Async        bool          `mapstructure:"async"         toml:"async"`
}

// MetricsConfig 普罗米修斯监控指标配置.
type MetricsConfig struct {
	Port         string `mapstructure:"port"          toml:"port"`
	TextfilePath string `mapstructure:"textfile_path" toml:"textfile_path"`
}

// TracingConfig OpenTelemetry 链路追踪配置.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SampleRatio  float64 `mapstructure:"sample_ratio"  toml:"sample_ratio"  validate:"gte=0,lte=1"`
}

var (
	mu        sync.Mutex
	vInstance = viper.New()
	onReload  []func(*Config)
)

// RegisterReloadHook 注册配置热更新回调.
func RegisterReloadHook(hook func(*Config)) {
	mu.Lock()
	defer mu.Unlock()
	onReload = append(onReload, hook)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.tags", []string{"app"})
	v.SetDefault("simulation.parallelism", 0)
	v.SetDefault("output.variables", "variables.json")
	v.SetDefault("output.outputs", "outputs.json")
	v.SetDefault("output.exposures", "exposures.json")
	v.SetDefault("output.cashflows", "cashflows.json")
	v.SetDefault("output.cashflow_summary", "cashflow_summary.json")
	v.SetDefault("output.profiles", "profiles.json")
	v.SetDefault("output.profile_quantile", 0.95)
	v.SetDefault("output.exercise_output_dir", "exercise")
	v.SetDefault("output.model_output_dir", "models")
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.dir", ".")
	v.SetDefault("kafka.write_timeout", 10*time.Second)
	v.SetDefault("kafka.required_acks", -1)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load 读取 TOML 配置文件，环境变量 (APP_ 前缀，如 APP_SIMULATION_NUM_PATHS) 优先于文件.
// 文件变更时重新加载，并同步全局日志级别.
func Load(path string, conf *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config error: %w", err)
	}

	if err := v.Unmarshal(conf); err != nil {
		return fmt.Errorf("unmarshal config error: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(conf); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	mu.Lock()
	vInstance = v
	mu.Unlock()

	v.WatchConfig()
	v.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)
		const debounceTimeout = 500 * time.Millisecond
		time.Sleep(debounceTimeout)

		var updated Config
		if unmarshalErr := v.Unmarshal(&updated); unmarshalErr != nil {
			slog.Error("reload config unmarshal failed", "error", unmarshalErr)

			return
		}
		if validateErr := validate.Struct(&updated); validateErr != nil {
			slog.Error("reload config validation failed", "error", validateErr)

			return
		}

		// 只有日志相关配置在运行中生效，模拟参数以启动时为准。
		logging.SetLevel(updated.Log.Level)
		slog.Info("config hot-reloaded and validated successfully", "log_level", updated.Log.Level)

		mu.Lock()
		hooks := append([]func(*Config){}, onReload...)
		mu.Unlock()
		for _, hook := range hooks {
			hook(&updated)
		}
	})

	return nil
}

// PrintWithMask 脱敏打印当前配置.
func PrintWithMask(conf any) {
	data, err := json.Marshal(conf)
	if err != nil {
		slog.Error("failed to marshal config for printing", "error", err)

		return
	}

	var configMap map[string]any
	if unmarshalErr := json.Unmarshal(data, &configMap); unmarshalErr != nil {
		slog.Error("failed to unmarshal config for masking", "error", unmarshalErr)

		return
	}

	mask(configMap)

	maskedJSON, marshalErr := json.MarshalIndent(configMap, "  ", "  ")
	if marshalErr != nil {
		slog.Error("failed to marshal masked config", "error", marshalErr)

		return
	}

	slog.Info("Current effective configuration", "config", string(maskedJSON))
}

func mask(configMap map[string]any) {
	sensitiveKeys := []string{"password", "secret", "key", "token"}

	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)

			continue
		}

		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(strings.ToLower(key), sensitiveKey) {
				configMap[key] = "******"

				break
			}
		}
	}
}

// GetViper 返回最近一次 Load 使用的 Viper 实例.
func GetViper() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()
	return vInstance
}

// LoggingConfig 转换为 logging.Config.
func (c *Config) LoggingConfig(service string) logging.Config {
	return logging.Config{
		Service:     service,
		Module:      "exposure",
		Level:       c.Log.Level,
		File:        c.Log.File,
		Console:     c.Log.Console,
		MaxSize:     c.Log.MaxSize,
		MaxBackups:  c.Log.MaxBackups,
		MaxAge:      c.Log.MaxAge,
		Compress:    c.Log.Compress,
		Tags:        c.Log.Tags,
		ConsoleTags: c.Log.ConsoleTags,
	}
}
