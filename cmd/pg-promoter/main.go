package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pingcap/errors"
	"github.com/siddontang/go-log/log"

	"github.com/MasahikoSawada/pg-promoter/promoter"
)

var (
	configFile = flag.String("config", "", "pg-promoter config file (TOML)")

	connInfo       = flag.String("primary-conninfo", "", "connection parameters for the primary server")
	driver         = flag.String("driver", "", "heartbeat driver: postgres or mysql")
	dataDir        = flag.String("data-dir", "", "standby data directory (defaults to $PGDATA)")
	keepaliveTime  = flag.Int("keepalive-time", 0, "seconds between heartbeats")
	keepaliveCount = flag.Int("keepalive-count", 0, "consecutive failures before promotion")
	triggerFile    = flag.String("trigger-file", "", "trigger file name inside the data directory")
	logLevel       = flag.String("log-level", "", "log level: trace, debug, info, warn, error")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("load config err: %v\n", errors.ErrorStack(err))
		os.Exit(1)
	}

	log.SetLevelByName(cfg.LogLevel)

	m, err := promoter.NewMonitor(cfg)
	if err != nil {
		fmt.Printf("create monitor err: %v\n", errors.ErrorStack(err))
		os.Exit(1)
	}

	done := make(chan error, 1)
	go func() {
		done <- m.Run()
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	for {
		select {
		case sig := <-sc:
			if sig == syscall.SIGHUP {
				newCfg, err := loadConfig()
				if err != nil {
					log.Errorf("reload config err: %v, keeping current settings", err)
					continue
				}
				if err = m.SignalReload(newCfg); err != nil {
					log.Errorf("reload config err: %v, keeping current settings", err)
				}
				continue
			}

			m.Close()
		case err := <-done:
			if err != nil {
				log.Errorf("monitor stopped: %v", err)
				os.Exit(1)
			}
			return
		}
	}
}

// loadConfig reads the config file if one was given and lets explicitly set
// flags override it. Called again on SIGHUP.
func loadConfig() (*promoter.Config, error) {
	var cfg *promoter.Config
	var err error

	if len(*configFile) > 0 {
		cfg, err = promoter.NewConfigWithFile(*configFile)
		if err != nil {
			return nil, errors.Trace(err)
		}
	} else {
		cfg = promoter.NewDefaultConfig()
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "primary-conninfo":
			cfg.PrimaryConnInfo = *connInfo
		case "driver":
			cfg.Driver = *driver
		case "data-dir":
			cfg.DataDir = *dataDir
		case "keepalive-time":
			cfg.KeepaliveTime = *keepaliveTime
		case "keepalive-count":
			cfg.KeepaliveCount = *keepaliveCount
		case "trigger-file":
			cfg.TriggerFileName = *triggerFile
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	return cfg, nil
}
