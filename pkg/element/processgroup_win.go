//go:build windows
// +build windows

package element

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
)

func configureAsProcessGroup() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

func killProcessGroup(logger zerolog.Logger, cmd *exec.Cmd) {
	kill := exec.Command("TASKKILL", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid))
	kill.Stderr = os.Stderr
	kill.Stdout = os.Stdout

	if err := kill.Run(); err != nil {
		logger.Err(err).Msg("failed to kill process group")
		return
	}
	logger.Debug().Msg("killing process group")
}
