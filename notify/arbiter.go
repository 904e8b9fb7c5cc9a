package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/op/go-logging"

	"chatsync/models"
)

var log = logging.MustGetLogger("notify")

const DefaultDismiss = 5 * time.Second

// Alerter is the presentation side of notifications. Implementations must not
// block; the arbiter calls them from timer goroutines as well. They must not
// call Notify, Dismiss or SetVisible synchronously.
type Alerter interface {
	PlaySound()
	ShowBanner(ev models.NotificationEvent)
	DismissBanner(id string)
	SetTitle(title string)
	SetBadge(pulsing bool)
	// SystemAlertsPermitted reports a permission granted earlier. The arbiter
	// never asks for it.
	SystemAlertsPermitted() bool
	SystemAlert(ev models.NotificationEvent)
	CloseSystemAlert(id string)
}

type Option func(*Arbiter)

func WithDismissAfter(d time.Duration) Option {
	return func(a *Arbiter) {
		if d > 0 {
			a.dismiss = d
		}
	}
}

func WithEnabled(enabled bool) Option {
	return func(a *Arbiter) { a.enabled = enabled }
}

type pending struct {
	timer  *time.Timer
	system bool
}

// Arbiter decides how an incoming message is surfaced, based on the user
// toggle and whether the app is visible.
type Arbiter struct {
	alerter  Alerter
	baseline string
	dismiss  time.Duration
	now      func() time.Time

	// effects orders alerter calls so that a visibility change never lands
	// between the state update and the effects of a notification.
	effects sync.Mutex

	mu      sync.Mutex
	enabled bool
	hidden  bool
	unread  int
	active  map[string]*pending
}

func New(alerter Alerter, appName string, opts ...Option) *Arbiter {
	a := &Arbiter{
		alerter:  alerter,
		baseline: appName,
		dismiss:  DefaultDismiss,
		now:      time.Now,
		enabled:  true,
		active:   make(map[string]*pending),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Notify surfaces one incoming message. It returns nil when notifications are
// switched off.
func (a *Arbiter) Notify(contact models.Contact, excerpt string) *models.NotificationEvent {
	a.effects.Lock()
	defer a.effects.Unlock()

	permitted := a.alerter.SystemAlertsPermitted()
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return nil
	}
	ev := models.NotificationEvent{
		ID:        uuid.NewString(),
		Contact:   contact,
		Excerpt:   excerpt,
		Hidden:    a.hidden,
		CreatedAt: a.now(),
	}
	title := ""
	if ev.Hidden {
		a.unread++
		title = a.title()
	}
	system := ev.Hidden && permitted
	p := &pending{system: system}
	a.active[ev.ID] = p
	p.timer = time.AfterFunc(a.dismiss, func() { a.Dismiss(ev.ID) })
	a.mu.Unlock()

	log.Debugf("notify %s hidden=%v system=%v", contact.ID, ev.Hidden, system)
	a.alerter.PlaySound()
	a.alerter.ShowBanner(ev)
	if ev.Hidden {
		a.alerter.SetTitle(title)
		a.alerter.SetBadge(true)
	}
	if system {
		a.alerter.SystemAlert(ev)
	}
	return &ev
}

// Dismiss closes the alerts of one notification, either on timeout or on user
// interaction. Unknown ids are ignored.
func (a *Arbiter) Dismiss(id string) {
	a.effects.Lock()
	defer a.effects.Unlock()

	a.mu.Lock()
	p, ok := a.active[id]
	if !ok {
		a.mu.Unlock()
		return
	}
	p.timer.Stop()
	delete(a.active, id)
	last := len(a.active) == 0
	a.mu.Unlock()

	a.alerter.DismissBanner(id)
	if last {
		a.alerter.SetBadge(false)
	}
	if p.system {
		a.alerter.CloseSystemAlert(id)
	}
}

// SetVisible records whether the app is in the foreground. Becoming visible
// clears the unread counter and restores the title.
func (a *Arbiter) SetVisible(visible bool) {
	a.effects.Lock()
	defer a.effects.Unlock()

	a.mu.Lock()
	wasHidden := a.hidden
	a.hidden = !visible
	restore := visible && (wasHidden || a.unread > 0)
	if restore {
		a.unread = 0
	}
	a.mu.Unlock()

	if restore {
		a.alerter.SetTitle(a.baseline)
		a.alerter.SetBadge(false)
	}
}

func (a *Arbiter) Visible() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.hidden
}

func (a *Arbiter) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()
}

// Toggle flips the notification switch and returns the new value.
func (a *Arbiter) Toggle() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = !a.enabled
	return a.enabled
}

func (a *Arbiter) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

func (a *Arbiter) Unread() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unread
}

// Title is the current window title.
func (a *Arbiter) Title() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unread == 0 {
		return a.baseline
	}
	return a.title()
}

func (a *Arbiter) title() string {
	return fmt.Sprintf("(%d) New Message - %s", a.unread, a.baseline)
}

// Stop cancels pending dismissals without touching the alerter.
func (a *Arbiter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, p := range a.active {
		p.timer.Stop()
		delete(a.active, id)
	}
}
