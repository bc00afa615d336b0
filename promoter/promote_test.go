package promoter

import (
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

func TestReadPIDFile(t *testing.T) {
	dir := t.TempDir()

	write := func(content string) string {
		path := filepath.Join(dir, "postmaster.pid")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	// postmaster.pid carries more lines after the pid, only the first matters
	pid, err := ReadPIDFile(write("4242\n/var/lib/pgsql/data\n1693400000\n"))
	require.NoError(t, err)
	require.Equal(t, 4242, pid)

	_, err = ReadPIDFile(write("not-a-pid\n"))
	require.Error(t, err)

	_, err = ReadPIDFile(write("-5\n"))
	require.Error(t, err)

	_, err = ReadPIDFile(filepath.Join(dir, "no-such-file"))
	require.Error(t, err)
}

func TestPromote(t *testing.T) {
	dir := t.TempDir()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGUSR1)
	defer signal.Stop(sc)

	err := Promote(dir, "promote", os.Getpid())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "promote"))
	require.NoError(t, err)

	select {
	case sig := <-sc:
		require.Equal(t, syscall.SIGUSR1, sig)
	case <-time.After(5 * time.Second):
		t.Fatal("promote signal was not delivered")
	}
}

func TestPromoteTriggerFileFailure(t *testing.T) {
	// data directory does not exist, phase one must fail and no signal
	// may be sent
	dir := filepath.Join(t.TempDir(), "missing")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGUSR1)
	defer signal.Stop(sc)

	err := Promote(dir, "promote", os.Getpid())
	require.Error(t, err)
	require.Equal(t, ErrTriggerFile, errors.Cause(err))

	_, err = os.Stat(filepath.Join(dir, "promote"))
	require.True(t, os.IsNotExist(err))

	select {
	case <-sc:
		t.Fatal("signal sent although the trigger file could not be created")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPromoteSignalFailure(t *testing.T) {
	dir := t.TempDir()

	err := Promote(dir, "promote", deadPID(t))
	require.Error(t, err)
	require.Equal(t, ErrPromoteSignal, errors.Cause(err))

	// the artifact stays behind, the caller must know it exists
	_, err = os.Stat(filepath.Join(dir, "promote"))
	require.NoError(t, err)
}

// deadPID returns the pid of an already reaped child process.
func deadPID(t *testing.T) int {
	t.Helper()

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())

	return cmd.Process.Pid
}
