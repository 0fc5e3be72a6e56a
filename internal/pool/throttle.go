package pool

import "github.com/yokitheyo/gobbler/internal/command"

// Throttle is level-triggered: it returns the command every collector gets
// after each directory check, whatever was sent before.
func Throttle(available, target int) command.Kind {
	if available < target {
		return command.CollectContinuously
	}
	return command.StopCollecting
}
