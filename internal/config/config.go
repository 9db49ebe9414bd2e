package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

var (
	ErrMoveTimeout    = errors.New("contract.move-timeout must be zero or a whole number of seconds")
	ErrMaxSubscribers = errors.New("max-subscribers must be at least 1")
)

type Config struct {
	LogLevel       string   `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort       string   `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort     string   `yaml:"socket-port" env:"SOCKET_PORT" env-default:"9091"`
	MaxSubscribers int      `yaml:"max-subscribers" env:"MAX_SUBSCRIBERS" env-default:"64"`
	Redis          Redis    `yaml:"redis"`
	Contract       Contract `yaml:"contract"`
	Ledger         Ledger   `yaml:"ledger"`
}

type Redis struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Contract describes the contract to attach to. With an empty Address a new
// contract is deployed on startup.
type Contract struct {
	Address         string        `yaml:"address" env:"CONTRACT_ADDRESS" env-default:""`
	Deployer        string        `yaml:"deployer" env:"CONTRACT_DEPLOYER" env-default:""`
	DeployerKey     string        `yaml:"deployer-key" env:"CONTRACT_DEPLOYER_KEY" env-default:""`
	FeeRecipient    string        `yaml:"fee-recipient" env:"CONTRACT_FEE_RECIPIENT" env-default:""`
	FeeRecipientKey string        `yaml:"fee-recipient-key" env:"CONTRACT_FEE_RECIPIENT_KEY" env-default:""`
	FeeBasisPoints  uint16        `yaml:"fee-basis-points" env:"CONTRACT_FEE_BASIS_POINTS" env-default:"1000"`
	MoveTimeout     time.Duration `yaml:"move-timeout" env:"CONTRACT_MOVE_TIMEOUT" env-default:"0s"`
}

type Ledger struct {
	Faucet  bool         `yaml:"faucet" env:"LEDGER_FAUCET" env-default:"false"`
	Genesis []Allocation `yaml:"genesis"`
}

// Allocation credits Balance base units to Address when a contract is deployed.
type Allocation struct {
	Address string `yaml:"address"`
	Balance string `yaml:"balance"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}

func Load(path string) (*Config, error) {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (that *Config) validate() error {
	timeout := that.Contract.MoveTimeout
	if timeout < 0 || timeout%time.Second != 0 {
		return fmt.Errorf("%w, got %s", ErrMoveTimeout, timeout)
	}

	if that.MaxSubscribers < 1 {
		return fmt.Errorf("%w, got %d", ErrMaxSubscribers, that.MaxSubscribers)
	}

	return nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
