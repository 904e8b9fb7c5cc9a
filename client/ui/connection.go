package ui

import (
	"fmt"
	"time"
)

const statusRefresh = 30 * time.Second

func (a *App) updateConnectionStatus() {
	if a.connectionView == nil {
		return
	}
	if a.engine.Connected() {
		a.connectionView.SetText(fmt.Sprintf("[green]● Live channel up[-] [gray]│ %s[-]", a.cfg.WebsocketURL))
	} else {
		a.connectionView.SetText(fmt.Sprintf("[red]○ Reconnecting to %s[-] [gray]│ retry every %s[-]",
			a.cfg.WebsocketURL, a.cfg.ReconnectDelay))
	}
}

// startStatusTicker refreshes relative labels ("5 min ago", "15:04") that
// depend on the current time.
func (a *App) startStatusTicker() {
	if a.statusTicker != nil {
		return
	}
	done := make(chan struct{})
	ticker := time.NewTicker(statusRefresh)
	a.statusTicker, a.statusTickerDone = ticker, done
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				a.app.QueueUpdateDraw(func() {
					a.updateConnectionStatus()
					a.updateContactsList()
					a.refreshChatView()
				})
			}
		}
	}()
}

func (a *App) stopStatusTicker() {
	if a.statusTicker != nil {
		a.statusTicker.Stop()
		close(a.statusTickerDone)
		a.statusTicker = nil
	}
}

func (a *App) updateStatusBarText() {
	if a.statusBar == nil {
		return
	}
	away := "F7:Away"
	if !a.engine.Visible() {
		away = "F7:Back"
	}
	alerts := "F9:Mute"
	if !a.engine.NotificationsEnabled() {
		alerts = "F9:Unmute"
	}
	a.statusBar.SetText(fmt.Sprintf(" F1:Help | F5:Refresh | F6:Logout | %s | %s | F10:Quit ", away, alerts))
}

// updateChrome renders the title line and the banner line.
func (a *App) updateChrome() {
	if a.titleView == nil {
		return
	}
	a.mu.Lock()
	title, badge, banner, notice := a.title, a.badge, a.banner, a.notice
	a.mu.Unlock()

	flags := ""
	if badge {
		flags += " [red]●[-]"
	}
	if !a.engine.Visible() {
		flags += " [yellow]away[-]"
	}
	if !a.engine.NotificationsEnabled() {
		flags += " [gray]muted[-]"
	}
	a.titleView.SetText(" " + escape(title) + flags)

	switch {
	case banner.ID != "":
		a.bannerView.SetText(fmt.Sprintf(" [white]%s:[-] %s", escape(banner.Contact.Name), escape(banner.Excerpt)))
	case notice != "":
		a.bannerView.SetText(" [red]" + escape(notice) + "[-]")
	default:
		a.bannerView.SetText("")
	}
}

// setNotice shows an error line until the next banner or notice.
func (a *App) setNotice(text string) {
	a.mu.Lock()
	a.notice = text
	a.mu.Unlock()
	a.updateChrome()
}
