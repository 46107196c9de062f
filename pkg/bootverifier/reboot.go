package bootverifier

import (
	"context"
	"fmt"
	"os/exec"

	log "github.com/sirupsen/logrus"
)

// Rebooter restarts the device.
type Rebooter interface {
	Reboot(ctx context.Context) error
}

var DefaultRebootCommand = []string{"systemctl", "reboot"}

// CommandRebooter reboots by running Command, DefaultRebootCommand if empty.
type CommandRebooter struct {
	Command []string
}

func (c CommandRebooter) Reboot(ctx context.Context) error {
	command := c.Command
	if len(command) == 0 {
		command = DefaultRebootCommand
	}
	log.Warnf("rebooting with %q", command)
	out, err := exec.CommandContext(ctx, command[0], command[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("reboot command %q failed: %w: %s", command, err, out)
	}
	return nil
}
