package promoter

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/pingcap/errors"
	"github.com/siddontang/go-log/log"
)

var (
	// ErrTriggerFile means the trigger file could not be created, no
	// promote signal has been sent.
	ErrTriggerFile = errors.New("could not create trigger file")

	// ErrPromoteSignal means the trigger file exists but the postmaster
	// could not be signaled. This leaves the trigger file behind on disk.
	ErrPromoteSignal = errors.New("could not send promote signal to postmaster")
)

// Promote converts the standby into a primary. It is a two phase operation:
// first the trigger file is created inside the data directory, then SIGUSR1
// is delivered to the postmaster, which notices the file and performs the
// promotion. Neither phase is retried. A signal failure after the file was
// written is reported with ErrPromoteSignal so the caller knows the
// artifact already exists.
func Promote(dataDir string, triggerFileName string, hostPID int) error {
	path := filepath.Join(dataDir, triggerFileName)

	f, err := os.Create(path)
	if err != nil {
		return errors.Annotatef(ErrTriggerFile, "%s: %s", path, err)
	}
	if err = f.Close(); err != nil {
		return errors.Annotatef(ErrTriggerFile, "close %s: %s", path, err)
	}

	log.Infof("trigger file %s created", path)

	if err = syscall.Kill(hostPID, syscall.SIGUSR1); err != nil {
		return errors.Annotatef(ErrPromoteSignal, "pid %d: %s", hostPID, err)
	}

	return nil
}

// ReadPIDFile returns the postmaster pid recorded in the pid file, the
// first line of <DataDir>/postmaster.pid.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Annotatef(err, "could not open pid file %s", path)
	}

	var pid int
	if _, err = fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, errors.Annotatef(err, "could not scan pid from pid file %s", path)
	}

	if pid <= 0 {
		return 0, errors.Errorf("invalid pid %d in pid file %s", pid, path)
	}

	return pid, nil
}
