package command

import "sync"

// Inbox is an unbounded FIFO of commands. Send and TryReceive never block.
// A Shutdown command is delivered before anything already queued.
type Inbox struct {
	mu       sync.Mutex
	queue    []Command
	shutdown bool
	notify   chan struct{}
}

func NewInbox() *Inbox {
	return &Inbox{notify: make(chan struct{}, 1)}
}

func (i *Inbox) Send(c Command) {
	i.mu.Lock()
	if c.Kind == Shutdown {
		i.shutdown = true
	} else {
		i.queue = append(i.queue, c)
	}
	i.mu.Unlock()

	select {
	case i.notify <- struct{}{}:
	default:
	}
}

func (i *Inbox) TryReceive() (Command, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.shutdown {
		i.shutdown = false
		return Command{Kind: Shutdown}, true
	}
	if len(i.queue) == 0 {
		return Command{}, false
	}
	c := i.queue[0]
	i.queue[0] = Command{}
	i.queue = i.queue[1:]
	return c, true
}

// Notify fires after Send. Workers select on it to wake up early from their
// polling sleep.
func (i *Inbox) Notify() <-chan struct{} {
	return i.notify
}

func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := len(i.queue)
	if i.shutdown {
		n++
	}
	return n
}
