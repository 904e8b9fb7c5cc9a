package ui

import (
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

func (a *App) showMainScreen() {
	a.pages.RemovePage("auth")
	a.pages.RemovePage("background")

	mainPage := a.createMainPage()
	a.pages.AddPage("main", mainPage, true, true)

	if s := a.engine.Session(); s != nil {
		a.contactsList.SetTitle(fmt.Sprintf(" Contacts [%s] ", s.UserID))
	}

	a.startStatusTicker()
	a.updateConnectionStatus()
	a.updateStatusBarText()
	a.loadContacts()

	a.app.SetFocus(a.contactsList)
}

func (a *App) createMainPage() tview.Primitive {
	a.contactsList = tview.NewList()
	a.contactsList.SetBorder(true)
	a.contactsList.SetBorderColor(ColorBorder)
	a.contactsList.SetBackgroundColor(ColorBg)
	a.contactsList.SetTitle(" Contacts ")
	a.contactsList.SetTitleColor(ColorTitle)
	a.contactsList.SetMainTextColor(ColorFg)
	a.contactsList.SetMainTextStyle(tcell.StyleDefault.Foreground(ColorFg).Background(ColorBg))
	a.contactsList.SetSelectedTextColor(ColorTitle)
	a.contactsList.SetSelectedBackgroundColor(ColorBar)
	a.contactsList.SetHighlightFullLine(true)
	a.contactsList.ShowSecondaryText(false)

	a.contactsList.SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
		if index < len(a.contactIDs) {
			a.openChat(a.contactIDs[index])
		}
	})

	a.connectionView = tview.NewTextView()
	a.connectionView.SetBorder(true)
	a.connectionView.SetBorderColor(ColorBorder)
	a.connectionView.SetBackgroundColor(ColorBg)
	a.connectionView.SetTitle(" Connection ")
	a.connectionView.SetTitleColor(ColorTitle)
	a.connectionView.SetTextColor(ColorFg)
	a.connectionView.SetDynamicColors(true)
	a.connectionView.SetTextAlign(tview.AlignCenter)

	a.statusBar = newStatusBar("")

	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.contactsList, 0, 1, true).
		AddItem(a.connectionView, 3, 0, false).
		AddItem(a.statusBar, 1, 0, false)
	mainFlex.SetBackgroundColor(ColorBg)

	mainFlex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if a.handleGlobalKey(event) {
			return nil
		}
		switch event.Key() {
		case tcell.KeyF1:
			a.showHelp()
			return nil
		case tcell.KeyF5:
			a.loadContacts()
			return nil
		case tcell.KeyF6:
			a.showLogoutDialog()
			return nil
		case tcell.KeyF10, tcell.KeyEsc:
			a.quit()
			return nil
		}
		return event
	})

	return mainFlex
}

// handleGlobalKey handles keys shared by the contacts and chat screens.
func (a *App) handleGlobalKey(event *tcell.EventKey) bool {
	switch event.Key() {
	case tcell.KeyF7:
		a.engine.SetVisible(!a.engine.Visible())
		a.updateStatusBarText()
		a.updateChrome()
		return true
	case tcell.KeyF9:
		a.engine.ToggleNotifications()
		a.updateStatusBarText()
		a.updateChrome()
		return true
	}
	return false
}

func (a *App) loadContacts() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
		defer cancel()
		// Failures arrive as engine notices.
		a.engine.LoadContacts(ctx)
	}()
}

func (a *App) logout() {
	a.stopStatusTicker()
	a.engine.Logout()

	a.chatPeer = ""
	a.chatView = nil
	a.messageInput = nil
	a.contactsList = nil
	a.contactIDs = nil
	a.connectionView = nil
	a.statusBar = nil
	a.pages.RemovePage("chat")
	a.pages.RemovePage("main")

	a.mu.Lock()
	a.notice = ""
	a.banner.ID = ""
	a.mu.Unlock()
	a.updateChrome()

	background := tview.NewBox()
	background.SetBackgroundColor(tcell.NewRGBColor(64, 64, 64))
	a.pages.AddPage("background", background, true, true)
	a.showAuthDialog()
}
