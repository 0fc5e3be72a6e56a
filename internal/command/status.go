package command

import "sync"

type Phase string

const (
	PhaseStopped      Phase = "Stopped"
	PhaseQuerying     Phase = "Querying"
	PhaseDownloading  Phase = "Downloading"
	PhaseReadingDir   Phase = "Reading directory"
	PhaseCopying      Phase = "Copying file"
	PhaseWaiting      Phase = "Waiting"
	PhaseError        Phase = "Error"
	PhaseShuttingDown Phase = "Shutting down"
	PhaseSuperposing  Phase = "Superposing"
)

type Status struct {
	Phase  Phase  `json:"phase"`
	Detail string `json:"detail"`
}

// StatusBox holds the latest status of a worker.
type StatusBox struct {
	mu     sync.RWMutex
	status Status
}

func NewStatusBox(initial Phase) *StatusBox {
	return &StatusBox{status: Status{Phase: initial}}
}

func (b *StatusBox) Set(phase Phase, detail string) {
	b.mu.Lock()
	b.status = Status{Phase: phase, Detail: detail}
	b.mu.Unlock()
}

func (b *StatusBox) Get() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}
