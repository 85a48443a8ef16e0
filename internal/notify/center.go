// Package notify keeps the short-lived toasts shown at the bottom of the screen.
package notify

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/taskboard/internal/model"
)

// DisplayWindow is how long a toast stays visible.
const DisplayWindow = 5 * time.Second

// Option configures a Center.
type Option func(*Center)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Center) { c.now = now }
}

// WithWindow overrides DisplayWindow.
func WithWindow(d time.Duration) Option {
	return func(c *Center) { c.window = d }
}

// Center holds the active toasts. Expired toasts are pruned on read.
type Center struct {
	now    func() time.Time
	window time.Duration

	mu       sync.Mutex
	items    []model.Notification
	onChange func()
}

// NewCenter creates an empty Center.
func NewCenter(opts ...Option) *Center {
	c := &Center{now: time.Now, window: DisplayWindow}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange registers fn to run after every Push and Dismiss.
func (c *Center) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Push adds a toast and returns its id.
func (c *Center) Push(message string, severity model.Severity) string {
	n := model.Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Severity:  severity,
		CreatedAt: c.now(),
	}

	c.mu.Lock()
	c.items = append(c.items, n)
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
	return n.ID
}

func (c *Center) Info(message string) string    { return c.Push(message, model.SeverityInfo) }
func (c *Center) Success(message string) string { return c.Push(message, model.SeveritySuccess) }
func (c *Center) Warn(message string) string    { return c.Push(message, model.SeverityWarning) }
func (c *Center) Error(message string) string   { return c.Push(message, model.SeverityError) }

// Dismiss removes the toast with id and reports whether it was present.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	before := len(c.items)
	c.items = slices.DeleteFunc(c.items, func(n model.Notification) bool { return n.ID == id })
	removed := len(c.items) != before
	fn := c.onChange
	c.mu.Unlock()

	if removed && fn != nil {
		fn()
	}
	return removed
}

// Active returns the unexpired toasts, oldest first.
func (c *Center) Active() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	return slices.Clone(c.items)
}

// NextExpiry returns when the oldest active toast disappears.
func (c *Center) NextExpiry() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	if len(c.items) == 0 {
		return time.Time{}, false
	}
	return c.items[0].CreatedAt.Add(c.window), true
}

func (c *Center) pruneLocked() {
	cutoff := c.now().Add(-c.window)
	c.items = slices.DeleteFunc(c.items, func(n model.Notification) bool {
		return !n.CreatedAt.After(cutoff)
	})
}
