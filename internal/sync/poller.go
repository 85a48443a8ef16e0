package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/taskboard/internal/channel"
	"github.com/nhle/taskboard/internal/logging"
	"github.com/nhle/taskboard/internal/session"
	"github.com/nhle/taskboard/internal/taskview"
)

// Reason says what caused a refresh.
type Reason int

const (
	// ReasonDegraded is a periodic reload while live updates are down.
	ReasonDegraded Reason = iota
	// ReasonReconnected is the catch-up reload after the channel comes back.
	ReasonReconnected
	// ReasonManual is a reload the user asked for.
	ReasonManual
)

func (r Reason) String() string {
	switch r {
	case ReasonDegraded:
		return "degraded"
	case ReasonReconnected:
		return "reconnected"
	case ReasonManual:
		return "manual"
	default:
		return "unknown"
	}
}

// RefreshResultMsg is a tea.Msg sent when a reload completes.
type RefreshResultMsg struct {
	Reason Reason
	Count  int
	Error  error
	At     time.Time
}

// Target is what the poller reloads. *session.Session satisfies it.
type Target interface {
	Connectivity() channel.State
	OnConnectivity(fn func(channel.State)) *channel.Subscription
	Reload(ctx context.Context) (int, error)
}

// DefaultInterval is used when New is given a non-positive interval.
const DefaultInterval = 30 * time.Second

// fetchTimeout is the maximum time allowed for a single reload.
const fetchTimeout = 30 * time.Second

// Poller reloads the task view while the push channel is not open, and
// once right after it comes back, so the list does not silently go stale.
type Poller struct {
	target   Target
	interval time.Duration
	log      zerolog.Logger

	resultCh    chan RefreshResultMsg
	triggerCh   chan struct{}
	reconnectCh chan struct{}
	stopCh      chan struct{}

	mu       gosync.Mutex
	running  bool
	sub      *channel.Subscription
	seenOpen bool
	lost     bool
}

// New creates a Poller for target.
func New(target Target, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		target:      target,
		interval:    interval,
		log:         logging.WithComponent("sync"),
		resultCh:    make(chan RefreshResultMsg, 16),
		triggerCh:   make(chan struct{}, 1),
		reconnectCh: make(chan struct{}, 1),
	}
}

// Start launches the polling goroutine and returns a tea.Cmd that waits
// for the first result. It returns nil if the poller is already running.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.seenOpen = p.target.Connectivity() == channel.StateOpen
	stop := make(chan struct{})
	p.stopCh = stop
	p.mu.Unlock()

	sub := p.target.OnConnectivity(p.onState)
	p.mu.Lock()
	p.sub = sub
	p.mu.Unlock()

	go p.loop(stop)
	return p.waitForResult()
}

// Stop halts the polling goroutine. It is safe to call more than once, and
// a stopped poller can be started again.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	close(p.stopCh)
	p.sub.Close()
	p.running = false
}

// Refresh triggers an immediate reload.
func (p *Poller) Refresh() tea.Cmd {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
	return nil
}

func (p *Poller) onState(state channel.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state != channel.StateOpen {
		if p.seenOpen {
			p.lost = true
		}
		return
	}
	comeback := p.seenOpen && p.lost
	p.seenOpen = true
	p.lost = false
	if comeback {
		select {
		case p.reconnectCh <- struct{}{}:
		default:
		}
	}
}

func (p *Poller) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if p.target.Connectivity() != channel.StateOpen {
				p.reload(ReasonDegraded)
			}
		case <-p.reconnectCh:
			p.reload(ReasonReconnected)
		case <-p.triggerCh:
			p.reload(ReasonManual)
		}
	}
}

func (p *Poller) reload(reason Reason) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	n, err := p.target.Reload(ctx)
	// Signed-out and superseded reloads produce no result.
	if errors.Is(err, session.ErrNotSignedIn) || errors.Is(err, taskview.ErrSuperseded) {
		return
	}
	if err != nil {
		p.log.Warn().Err(err).Stringer("reason", reason).Msg("refresh failed")
	} else {
		p.log.Debug().Stringer("reason", reason).Int("count", n).Msg("refreshed")
	}
	p.sendResult(RefreshResultMsg{Reason: reason, Count: n, Error: err, At: time.Now()})
}

// sendResult sends a RefreshResultMsg without blocking.
func (p *Poller) sendResult(msg RefreshResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next refresh result.
// Call it after handling a RefreshResultMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
