package promoter

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// ValidateDriver checks that the given driver can serve the liveness query.
func ValidateDriver(driver string) error {
	switch driver {
	case DriverPostgres, DriverMySQL:
		return nil
	}
	return errors.Errorf("invalid driver %s, must be %s or %s", driver, DriverPostgres, DriverMySQL)
}

type Config struct {
	// Connection parameters for the primary server, in the DSN format of
	// the configured driver. Fixed for the lifetime of the process, a
	// reload does not change it.
	PrimaryConnInfo string `toml:"primary_conninfo"`

	// database/sql driver used for the heartbeat, postgres or mysql.
	Driver string `toml:"driver"`

	// Seconds to wait between two heartbeats.
	KeepaliveTime int `toml:"keepalive_time"`

	// Number of consecutive heartbeat failures before promoting.
	// With 1, a single failure promotes immediately.
	KeepaliveCount int `toml:"keepalive_count"`

	// Data directory of the standby. The trigger file and the postmaster
	// pid file live here. Defaults to $PGDATA.
	DataDir string `toml:"data_dir"`

	// Name of the trigger file created inside DataDir on promotion.
	TriggerFileName string `toml:"trigger_file"`

	// Name of the postmaster pid file inside DataDir.
	PIDFileName string `toml:"pid_file"`

	// Seconds allowed for one heartbeat attempt, connect plus query.
	ConnectTimeout int `toml:"connect_timeout"`

	LogLevel string `toml:"log_level"`
}

func NewConfigWithFile(name string) (*Config, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Trace(err)
	}

	return NewConfig(string(data))
}

func NewConfig(data string) (*Config, error) {
	c := NewDefaultConfig()

	_, err := toml.Decode(data, c)
	if err != nil {
		return nil, errors.Trace(err)
	}

	return c, nil
}

// NewDefaultConfig initiates some default config for the monitor
func NewDefaultConfig() *Config {
	c := new(Config)

	c.Driver = DriverPostgres
	c.KeepaliveTime = 5
	c.KeepaliveCount = 3
	c.DataDir = os.Getenv("PGDATA")
	c.TriggerFileName = "promote"
	c.PIDFileName = "postmaster.pid"
	c.ConnectTimeout = 10
	c.LogLevel = "info"

	return c
}

func (c *Config) Validate() error {
	if err := ValidateDriver(c.Driver); err != nil {
		return errors.Trace(err)
	}

	if len(c.PrimaryConnInfo) == 0 {
		return errors.New("primary_conninfo must be set")
	}

	if c.KeepaliveTime < 1 {
		return errors.Errorf("keepalive_time must be >= 1, got %d", c.KeepaliveTime)
	}

	if c.KeepaliveCount < 1 {
		return errors.Errorf("keepalive_count must be >= 1, got %d", c.KeepaliveCount)
	}

	if len(c.DataDir) == 0 {
		return errors.New("data_dir must be set, or set PGDATA")
	}

	if len(c.TriggerFileName) == 0 {
		return errors.New("trigger_file must be set")
	}

	if c.ConnectTimeout < 1 {
		return errors.Errorf("connect_timeout must be >= 1, got %d", c.ConnectTimeout)
	}

	return nil
}

func (c *Config) keepaliveInterval() time.Duration {
	return time.Duration(c.KeepaliveTime) * time.Second
}

func (c *Config) connectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}
