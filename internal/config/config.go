// Пакет config — загрузка и валидация конфигурации docstore
// из переменных окружения (префикс DS_).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Поддерживаемые драйверы БД.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Поддерживаемые backend-ы объектного хранилища.
const (
	BackendSFTP = "sftp"
	BackendFS   = "fs"
	BackendS3   = "s3"
)

// Config содержит все параметры конфигурации docstore.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Максимальная длительность операции загрузки/замены/удаления,
	// не зависящая от отключения клиента
	OperationTimeout time.Duration
	// Максимальный размер загружаемого файла в байтах
	MaxUploadSize int64

	// --- База данных ---

	// Драйвер: postgres или mysql
	DBDriver   string
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL (только PostgreSQL): disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Объектное хранилище ---

	// Backend: sftp, fs, s3
	StorageBackend string
	// Префикс (namespace) объектов документов
	DocumentsPrefix string
	// Префикс (namespace) объектов файлов
	FilesPrefix string

	// SFTP
	SFTPHost           string
	SFTPPort           int
	SFTPUser           string
	SFTPPassword       string
	SFTPPrivateKeyPath string
	// Путь к known_hosts; пустое значение требует SFTPInsecureHostKey
	SFTPKnownHostsPath  string
	SFTPInsecureHostKey bool
	// Корневая директория на SFTP-сервере
	SFTPRoot    string
	SFTPTimeout time.Duration

	// Локальная ФС (go-billy osfs)
	FSRoot string

	// S3-совместимое хранилище
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// --- Устойчивость операций с хранилищем ---

	// Количество повторов операции хранилища
	RetryAttempts int
	// Начальная пауза между повторами (удваивается)
	RetryBackoff time.Duration
	// Количество подряд неудачных операций до размыкания circuit breaker
	BreakerMaxFailures int
	// Время нахождения circuit breaker в состоянии open
	BreakerOpenTimeout time.Duration

	// --- Генератор трекинг-кодов ---

	// Количество попыток назначения кода при конфликте уникальности
	SequencerMaxAttempts int
	// Часовой пояс, определяющий границу суток для кодов
	TimeZone *time.Location

	// --- Статистика хранилища ---

	// TTL кэша статистики использования хранилища
	UsageCacheTTL time.Duration

	// --- Сверка хранилища ---

	// Интервал фоновой сверки; 0 — только по команде docstorectl reconcile
	ReconcileInterval time.Duration
	// Минимальный возраст объекта без записи, после которого он удаляется при сверке
	ReconcileGracePeriod time.Duration

	// --- JWT (опционально) ---

	// URL JWKS endpoint; пустое значение отключает аутентификацию
	JWTJWKSURL string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration

	// --- Зависимости ---

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// DS_PORT — порт HTTP-сервера (по умолчанию 8020)
	cfg.Port, err = getEnvInt("DS_PORT", 8020)
	if err != nil {
		return nil, fmt.Errorf("DS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("DS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// DS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DS_LOG_LEVEL: %w", err)
	}

	// DS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	if cfg.HTTPReadTimeout, err = getEnvDuration("DS_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("DS_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("DS_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("DS_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("DS_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("DS_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// DS_OPERATION_TIMEOUT — таймаут операции с хранилищем и БД (по умолчанию 2m)
	if cfg.OperationTimeout, err = getEnvDuration("DS_OPERATION_TIMEOUT", 2*time.Minute); err != nil {
		return nil, fmt.Errorf("DS_OPERATION_TIMEOUT: %w", err)
	}

	// DS_MAX_UPLOAD_SIZE — максимальный размер файла (по умолчанию 10 MiB)
	cfg.MaxUploadSize, err = getEnvInt64("DS_MAX_UPLOAD_SIZE", 10<<20)
	if err != nil {
		return nil, fmt.Errorf("DS_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize < 1 {
		return nil, fmt.Errorf("DS_MAX_UPLOAD_SIZE: значение %d должно быть положительным", cfg.MaxUploadSize)
	}

	// --- База данных ---

	if err := loadDatabase(cfg); err != nil {
		return nil, err
	}

	// --- Объектное хранилище ---

	if err := loadStorage(cfg); err != nil {
		return nil, err
	}

	// --- Устойчивость ---

	if cfg.RetryAttempts, err = getEnvInt("DS_RETRY_ATTEMPTS", 3); err != nil {
		return nil, fmt.Errorf("DS_RETRY_ATTEMPTS: %w", err)
	}
	if cfg.RetryAttempts < 1 || cfg.RetryAttempts > 10 {
		return nil, fmt.Errorf("DS_RETRY_ATTEMPTS: значение %d вне допустимого диапазона 1-10", cfg.RetryAttempts)
	}
	if cfg.RetryBackoff, err = getEnvDuration("DS_RETRY_BACKOFF", 200*time.Millisecond); err != nil {
		return nil, fmt.Errorf("DS_RETRY_BACKOFF: %w", err)
	}
	if cfg.BreakerMaxFailures, err = getEnvInt("DS_BREAKER_MAX_FAILURES", 5); err != nil {
		return nil, fmt.Errorf("DS_BREAKER_MAX_FAILURES: %w", err)
	}
	if cfg.BreakerMaxFailures < 1 {
		return nil, fmt.Errorf("DS_BREAKER_MAX_FAILURES: значение %d должно быть положительным", cfg.BreakerMaxFailures)
	}
	if cfg.BreakerOpenTimeout, err = getEnvDuration("DS_BREAKER_OPEN_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("DS_BREAKER_OPEN_TIMEOUT: %w", err)
	}

	// --- Генератор трекинг-кодов ---

	// DS_SEQUENCER_MAX_ATTEMPTS — попытки назначения кода (по умолчанию 5)
	if cfg.SequencerMaxAttempts, err = getEnvInt("DS_SEQUENCER_MAX_ATTEMPTS", 5); err != nil {
		return nil, fmt.Errorf("DS_SEQUENCER_MAX_ATTEMPTS: %w", err)
	}
	if cfg.SequencerMaxAttempts < 1 || cfg.SequencerMaxAttempts > 100 {
		return nil, fmt.Errorf("DS_SEQUENCER_MAX_ATTEMPTS: значение %d вне допустимого диапазона 1-100", cfg.SequencerMaxAttempts)
	}

	// DS_TIMEZONE — часовой пояс суток трекинг-кодов (по умолчанию Local)
	cfg.TimeZone, err = time.LoadLocation(getEnvDefault("DS_TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("DS_TIMEZONE: %w", err)
	}

	// --- Статистика ---

	if cfg.UsageCacheTTL, err = getEnvDuration("DS_USAGE_CACHE_TTL", 30*time.Second); err != nil {
		return nil, fmt.Errorf("DS_USAGE_CACHE_TTL: %w", err)
	}

	// --- Сверка ---

	if cfg.ReconcileInterval, err = getEnvDuration("DS_RECONCILE_INTERVAL", 0); err != nil {
		return nil, fmt.Errorf("DS_RECONCILE_INTERVAL: %w", err)
	}
	if cfg.ReconcileGracePeriod, err = getEnvDuration("DS_RECONCILE_GRACE_PERIOD", time.Hour); err != nil {
		return nil, fmt.Errorf("DS_RECONCILE_GRACE_PERIOD: %w", err)
	}

	// --- JWT ---

	// DS_JWT_JWKS_URL — опционально; без него API работает без аутентификации
	cfg.JWTJWKSURL = getEnvDefault("DS_JWT_JWKS_URL", "")
	if cfg.JWTLeeway, err = getEnvDuration("DS_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("DS_JWT_LEEWAY: %w", err)
	}
	if cfg.JWKSRefreshInterval, err = getEnvDuration("DS_JWKS_REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("DS_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// --- Зависимости ---

	if cfg.DephealthCheckInterval, err = getEnvDuration("DS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("DS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// DS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("DS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadDatabase загружает параметры подключения к БД.
func loadDatabase(cfg *Config) error {
	var err error

	// DS_DB_DRIVER — postgres (по умолчанию) или mysql
	cfg.DBDriver = strings.ToLower(getEnvDefault("DS_DB_DRIVER", DriverPostgres))
	if cfg.DBDriver != DriverPostgres && cfg.DBDriver != DriverMySQL {
		return fmt.Errorf("DS_DB_DRIVER: недопустимое значение %q, допустимые: postgres, mysql", cfg.DBDriver)
	}

	if cfg.DBHost, err = getEnvRequired("DS_DB_HOST"); err != nil {
		return err
	}

	defaultPort := 5432
	if cfg.DBDriver == DriverMySQL {
		defaultPort = 3306
	}
	if cfg.DBPort, err = getEnvInt("DS_DB_PORT", defaultPort); err != nil {
		return fmt.Errorf("DS_DB_PORT: %w", err)
	}

	if cfg.DBName, err = getEnvRequired("DS_DB_NAME"); err != nil {
		return err
	}
	if cfg.DBUser, err = getEnvRequired("DS_DB_USER"); err != nil {
		return err
	}
	if cfg.DBPassword, err = getEnvRequired("DS_DB_PASSWORD"); err != nil {
		return err
	}

	// DS_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("DS_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("DS_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	return nil
}

// loadStorage загружает параметры объектного хранилища.
// Обязательные переменные зависят от выбранного backend-а.
func loadStorage(cfg *Config) error {
	var err error

	// DS_STORAGE_BACKEND — sftp (по умолчанию), fs, s3
	cfg.StorageBackend = strings.ToLower(getEnvDefault("DS_STORAGE_BACKEND", BackendSFTP))

	cfg.DocumentsPrefix = strings.Trim(getEnvDefault("DS_STORAGE_DOCUMENTS_PREFIX", "PSTO-SDN-FMS/documents"), "/")
	cfg.FilesPrefix = strings.Trim(getEnvDefault("DS_STORAGE_FILES_PREFIX", "PSTO-SDN-FMS/files"), "/")
	if cfg.DocumentsPrefix == "" || cfg.FilesPrefix == "" {
		return fmt.Errorf("DS_STORAGE_DOCUMENTS_PREFIX, DS_STORAGE_FILES_PREFIX: префиксы не могут быть пустыми")
	}
	if cfg.DocumentsPrefix == cfg.FilesPrefix ||
		strings.HasPrefix(cfg.DocumentsPrefix+"/", cfg.FilesPrefix+"/") ||
		strings.HasPrefix(cfg.FilesPrefix+"/", cfg.DocumentsPrefix+"/") {
		return fmt.Errorf("DS_STORAGE_DOCUMENTS_PREFIX, DS_STORAGE_FILES_PREFIX: префиксы %q и %q пересекаются",
			cfg.DocumentsPrefix, cfg.FilesPrefix)
	}

	switch cfg.StorageBackend {
	case BackendSFTP:
		if cfg.SFTPHost, err = getEnvRequired("DS_SFTP_HOST"); err != nil {
			return err
		}
		if cfg.SFTPPort, err = getEnvInt("DS_SFTP_PORT", 22); err != nil {
			return fmt.Errorf("DS_SFTP_PORT: %w", err)
		}
		if cfg.SFTPUser, err = getEnvRequired("DS_SFTP_USER"); err != nil {
			return err
		}
		cfg.SFTPPassword = getEnvDefault("DS_SFTP_PASSWORD", "")
		cfg.SFTPPrivateKeyPath = getEnvDefault("DS_SFTP_PRIVATE_KEY_PATH", "")
		if cfg.SFTPPassword == "" && cfg.SFTPPrivateKeyPath == "" {
			return fmt.Errorf("DS_SFTP_PASSWORD, DS_SFTP_PRIVATE_KEY_PATH: требуется пароль или приватный ключ")
		}
		cfg.SFTPKnownHostsPath = getEnvDefault("DS_SFTP_KNOWN_HOSTS_PATH", "")
		if cfg.SFTPInsecureHostKey, err = getEnvBool("DS_SFTP_INSECURE_HOST_KEY", false); err != nil {
			return fmt.Errorf("DS_SFTP_INSECURE_HOST_KEY: %w", err)
		}
		if cfg.SFTPKnownHostsPath == "" && !cfg.SFTPInsecureHostKey {
			return fmt.Errorf("DS_SFTP_KNOWN_HOSTS_PATH: обязателен, если DS_SFTP_INSECURE_HOST_KEY не включён")
		}
		cfg.SFTPRoot = getEnvDefault("DS_SFTP_ROOT", ".")
		if cfg.SFTPTimeout, err = getEnvDuration("DS_SFTP_TIMEOUT", 10*time.Second); err != nil {
			return fmt.Errorf("DS_SFTP_TIMEOUT: %w", err)
		}
	case BackendFS:
		if cfg.FSRoot, err = getEnvRequired("DS_FS_ROOT"); err != nil {
			return err
		}
	case BackendS3:
		if cfg.S3Bucket, err = getEnvRequired("DS_S3_BUCKET"); err != nil {
			return err
		}
		cfg.S3Region = getEnvDefault("DS_S3_REGION", "us-east-1")
		cfg.S3Endpoint = getEnvDefault("DS_S3_ENDPOINT", "")
		cfg.S3AccessKey = getEnvDefault("DS_S3_ACCESS_KEY", "")
		cfg.S3SecretKey = getEnvDefault("DS_S3_SECRET_KEY", "")
		if (cfg.S3AccessKey == "") != (cfg.S3SecretKey == "") {
			return fmt.Errorf("DS_S3_ACCESS_KEY, DS_S3_SECRET_KEY: должны быть заданы вместе")
		}
		if cfg.S3UsePathStyle, err = getEnvBool("DS_S3_USE_PATH_STYLE", cfg.S3Endpoint != ""); err != nil {
			return fmt.Errorf("DS_S3_USE_PATH_STYLE: %w", err)
		}
	default:
		return fmt.Errorf("DS_STORAGE_BACKEND: недопустимое значение %q, допустимые: sftp, fs, s3", cfg.StorageBackend)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к БД для выбранного драйвера.
func (c *Config) DatabaseDSN() string {
	if c.DBDriver == DriverMySQL {
		// parseTime — сканирование DATE/DATETIME в time.Time;
		// clientFoundRows — RowsAffected считает найденные, а не изменённые строки
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC&clientFoundRows=true",
			c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
	}
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// MigrateURL возвращает URL базы данных в формате golang-migrate.
func (c *Config) MigrateURL() string {
	if c.DBDriver == DriverMySQL {
		return fmt.Sprintf("mysql://%s:%s@tcp(%s:%d)/%s?multiStatements=true",
			c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
	}
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 из переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает bool из переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
