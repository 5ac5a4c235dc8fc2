package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации оркестратора.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Trigger   TriggerConfig   `mapstructure:"trigger"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Inference InferenceConfig `mapstructure:"inference"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// ServerConfig описывает настройки HTTP-сервера (ops-поверхность воркера и Console API).
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub, cooldown CAS).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT (только Console API).
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PublicKey      []byte
	PrivateKey     []byte
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// AgentsConfig — рантайм-настройки инстансов агентов.
type AgentsConfig struct {
	MaxToolRoundtrips  int           `mapstructure:"max_tool_roundtrips"`  // Бюджет tool-цикла (наблюдаемый диапазон 5-8)
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks"` // Параллелизм задач внутри инстанса
	ShutdownGrace      time.Duration `mapstructure:"shutdown_grace"`
	HealthInterval     time.Duration `mapstructure:"health_interval"`
	MaxRestarts24h     int           `mapstructure:"max_restarts_24h"` // Страховка от restart storm
	StaleTaskGrace     time.Duration `mapstructure:"stale_task_grace"` // Держать выше самого долгого approval TTL
}

// SchedulerConfig — настройки тика планировщика.
type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	Timezone     string        `mapstructure:"timezone"`
}

// TriggerConfig — cooldown'ы проактивных триггеров.
// Именованная конфигурация вместо разрозненных констант по агентам.
type TriggerConfig struct {
	PassInterval    time.Duration            `mapstructure:"pass_interval"`
	DefaultCooldown time.Duration            `mapstructure:"default_cooldown"`
	RuleCooldowns   map[string]time.Duration `mapstructure:"rule_cooldowns"` // имя правила -> окно
}

// ApprovalConfig — окна истечения заявок по уровням подписи.
// Нулевое значение = без авто-истечения (board-уровень).
type ApprovalConfig struct {
	SupervisorTTL time.Duration `mapstructure:"supervisor_ttl"`
	ExecutiveTTL  time.Duration `mapstructure:"executive_ttl"`
	BoardTTL      time.Duration `mapstructure:"board_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// Таблица решений классификатора риска
	FinancialThreshold float64 `mapstructure:"financial_threshold"`
	ExecutiveThreshold float64 `mapstructure:"executive_threshold"`
}

// TTLFor возвращает окно истечения для уровня подписи.
func (c ApprovalConfig) TTLFor(level string) time.Duration {
	switch level {
	case "supervisor":
		return c.SupervisorTTL
	case "executive":
		return c.ExecutiveTTL
	case "board":
		return c.BoardTTL // 0 = ждем живого человека, авто-релиза нет
	default:
		return c.ExecutiveTTL
	}
}

// InferenceConfig — endpoint внешнего сервиса обучения/инференса и его лимиты.
type InferenceConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RetryCount  int           `mapstructure:"retry_count"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	RateBurst   int           `mapstructure:"rate_burst"`
	CBInterval  time.Duration `mapstructure:"cb_interval"`
	CBTimeout   time.Duration `mapstructure:"cb_timeout"`
	MinSamples  map[string]int `mapstructure:"min_samples"` // model_type -> минимум точек ряда
	Horizon     int           `mapstructure:"horizon"`       // Месяцев прогноза по умолчанию
}

// MinSamplesFor — порог «достаточности данных» для типа модели.
func (c InferenceConfig) MinSamplesFor(modelType string) int {
	if n, ok := c.MinSamples[modelType]; ok {
		return n
	}
	return 12 // Prophet-подобным нужен минимум год месячных точек
}

// AuditConfig — буферизация аудита действий.
type AuditConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает файл: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Ключи из файла ИЛИ напрямую из ENV (Docker/K8s)
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("agents.max_tool_roundtrips", 6)
	v.SetDefault("agents.max_concurrent_tasks", 4)
	v.SetDefault("agents.shutdown_grace", 30*time.Second)
	v.SetDefault("agents.health_interval", time.Minute)
	v.SetDefault("agents.max_restarts_24h", 3)
	v.SetDefault("agents.stale_task_grace", 2*time.Hour)

	v.SetDefault("scheduler.tick_interval", time.Minute)
	v.SetDefault("scheduler.timezone", "UTC")

	v.SetDefault("trigger.pass_interval", time.Hour)
	v.SetDefault("trigger.default_cooldown", 24*time.Hour)

	v.SetDefault("approval.supervisor_ttl", 30*time.Minute)
	v.SetDefault("approval.executive_ttl", time.Hour)
	v.SetDefault("approval.board_ttl", time.Duration(0))
	v.SetDefault("approval.sweep_interval", time.Minute)
	v.SetDefault("approval.financial_threshold", 10000.0)
	v.SetDefault("approval.executive_threshold", 100000.0)

	v.SetDefault("inference.base_url", "http://localhost:8001")
	v.SetDefault("inference.timeout", 30*time.Second)
	v.SetDefault("inference.retry_count", 3)
	v.SetDefault("inference.rate_limit", 10.0)
	v.SetDefault("inference.rate_burst", 5)
	v.SetDefault("inference.cb_interval", 5*time.Second)
	v.SetDefault("inference.cb_timeout", 30*time.Second)
	v.SetDefault("inference.horizon", 12)

	v.SetDefault("audit.buffer_size", 10000)
	v.SetDefault("audit.flush_interval", 500*time.Millisecond)
	v.SetDefault("audit.batch_size", 100)
}

// loadKeyResource — ключ либо прилетает напрямую в ENV, либо читается из файла.
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
