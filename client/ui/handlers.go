package ui

import (
	"chatsync/engine"
	"chatsync/models"
)

// pumpUpdates forwards engine hints to the UI goroutine.
func (a *App) pumpUpdates() {
	updates := a.engine.Updates()
	for {
		select {
		case <-a.done:
			return
		case u := <-updates:
			a.app.QueueUpdateDraw(func() {
				a.applyUpdate(u)
			})
		}
	}
}

func (a *App) applyUpdate(u engine.Update) {
	switch u.Kind {
	case engine.UpdateTimeline:
		if conv, ok := a.engine.Active(); ok && conv.ID == u.ConversationID {
			a.refreshChatView()
		}
	case engine.UpdateContacts:
		a.updateContactsList()
		a.updateChatTitle()
	case engine.UpdatePresence:
		a.updateContactsList()
		if u.PeerID == a.chatPeer {
			a.updateChatTitle()
			a.refreshChatView()
		}
	case engine.UpdateConnection:
		a.updateConnectionStatus()
	case engine.UpdateNotice:
		a.setNotice(u.Notice)
	}
}

// The methods below implement notify.Alerter. They run on engine goroutines.

func (a *App) PlaySound() {
	a.mu.Lock()
	screen := a.screen
	a.mu.Unlock()
	if screen != nil {
		screen.Beep()
	}
}

func (a *App) ShowBanner(ev models.NotificationEvent) {
	a.mu.Lock()
	a.banner = ev
	a.notice = ""
	a.mu.Unlock()
	a.redraw(a.updateChrome)
}

func (a *App) DismissBanner(id string) {
	a.mu.Lock()
	if a.banner.ID == id {
		a.banner = models.NotificationEvent{}
	}
	a.mu.Unlock()
	a.redraw(a.updateChrome)
}

func (a *App) SetTitle(title string) {
	a.mu.Lock()
	a.title = title
	a.mu.Unlock()
	a.redraw(a.updateChrome)
}

func (a *App) SetBadge(on bool) {
	a.mu.Lock()
	a.badge = on
	a.mu.Unlock()
	a.redraw(a.updateChrome)
}

func (a *App) SystemAlertsPermitted() bool {
	return a.cfg.SystemAlerts
}

func (a *App) SystemAlert(ev models.NotificationEvent) {
	a.redraw(func() { a.showSystemAlert(ev) })
}

func (a *App) CloseSystemAlert(id string) {
	a.redraw(func() { a.closeSystemAlert(id) })
}
