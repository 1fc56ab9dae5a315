// Package config содержит логику чтения конфигурации системы ваучеров.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации системы ваучеров.
type Config struct {
	RunAddress    string `env:"RUN_ADDRESS"`
	DatabaseURI   string `env:"DATABASE_URI"`
	RedisAddress  string `env:"REDIS_ADDRESS"`
	NotifyAddress string `env:"NOTIFY_ADDRESS"`

	// Ставки пособия в копейках.
	PerPersonRateCents  int64 `env:"PER_PERSON_RATE" envDefault:"2500"`
	InfantModifierCents int64 `env:"INFANT_MODIFIER" envDefault:"500"`

	// Пороговые значения корзины go-fresh по размеру домохозяйства.
	GoFreshEnabled     bool  `env:"GO_FRESH_ENABLED" envDefault:"false"`
	GoFreshSmallMax    int   `env:"GO_FRESH_SMALL_MAX" envDefault:"2"`
	GoFreshMediumMax   int   `env:"GO_FRESH_MEDIUM_MAX" envDefault:"4"`
	GoFreshSmallCents  int64 `env:"GO_FRESH_SMALL" envDefault:"1000"`
	GoFreshMediumCents int64 `env:"GO_FRESH_MEDIUM" envDefault:"1500"`
	GoFreshLargeCents  int64 `env:"GO_FRESH_LARGE" envDefault:"2000"`

	// Час закрытия окна заказов участника в день его заказа.
	OrderWindowCloseHour int `env:"ORDER_WINDOW_CLOSE_HOUR" envDefault:"18"`

	// Срок действия ваучера в днях; 0 отключает автоматическое просрочивание.
	VoucherValidityDays int `env:"VOUCHER_VALIDITY_DAYS" envDefault:"0"`

	// Общий ключ для выдачи cookie сотрудника.
	StaffKey string `env:"STAFF_KEY"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRedisAddress := cfg.RedisAddress
	envNotifyAddress := cfg.NotifyAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "c", "", "redis address for locks and idempotency cache")
	flag.StringVar(&cfg.NotifyAddress, "n", "", "notification collaborator address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if envNotifyAddress != "" {
		cfg.NotifyAddress = envNotifyAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
