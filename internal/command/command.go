// Package command is the asynchronous control protocol shared by every
// long-running worker: a non-blocking FIFO inbox of commands and a guarded
// status value that can be polled from other goroutines.
package command

import "fmt"

type Kind int

const (
	Shutdown Kind = iota + 1
	CollectN
	CollectContinuously
	StopCollecting
	Superpose
)

func (k Kind) String() string {
	switch k {
	case Shutdown:
		return "shutdown"
	case CollectN:
		return "collect-n"
	case CollectContinuously:
		return "collect-continuously"
	case StopCollecting:
		return "stop-collecting"
	case Superpose:
		return "superpose"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Command is an order sent to a worker. N is the image count for CollectN
// and Superpose.
type Command struct {
	Kind Kind
	N    int
}
