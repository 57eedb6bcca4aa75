package checkinfakes

import (
	"context"
	"sync"

	"github.com/avvvet/gym-services/internal/comm"
)

// Notice is one recorded NotifyMember call.
type Notice struct {
	Kind   string
	Notice comm.VisitNotice
}

// Notifier records what would have been sent. Err makes every call fail
// after recording it.
type Notifier struct {
	mu       sync.Mutex
	Notices  []Notice
	Statuses []comm.TicketStatus
	Err      error
}

func (n *Notifier) NotifyMember(_ context.Context, kind string, notice comm.VisitNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Notices = append(n.Notices, Notice{Kind: kind, Notice: notice})
	return n.Err
}

func (n *Notifier) PublishTicketStatus(_ context.Context, status comm.TicketStatus) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Statuses = append(n.Statuses, status)
	return n.Err
}

// Kinds lists the recorded notice kinds in order.
func (n *Notifier) Kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]string, 0, len(n.Notices))
	for _, x := range n.Notices {
		kinds = append(kinds, x.Kind)
	}
	return kinds
}
