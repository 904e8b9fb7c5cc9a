package ui

import (
	"fmt"

	"github.com/rivo/tview"

	"chatsync/models"
)

const alertPagePrefix = "alert-"

func (a *App) showLogoutDialog() {
	modal := tview.NewModal()
	modal.SetText("Log out and close the live channel?")
	styleModal(modal)
	modal.AddButtons([]string{"Logout", "Cancel"})
	modal.SetDoneFunc(func(buttonIndex int, buttonLabel string) {
		a.pages.RemovePage("dialog")
		if buttonLabel == "Logout" {
			a.logout()
			return
		}
		a.restoreFocus()
	})

	a.pages.AddPage("dialog", modal, true, true)
}

// showSystemAlert raises a modal for a message that arrived while away.
func (a *App) showSystemAlert(ev models.NotificationEvent) {
	modal := tview.NewModal()
	modal.SetText(fmt.Sprintf("New message from %s\n\n%s", ev.Contact.Name, ev.Excerpt))
	styleModal(modal)
	modal.AddButtons([]string{"Open", "Dismiss"})
	modal.SetDoneFunc(func(buttonIndex int, buttonLabel string) {
		a.engine.DismissNotification(ev.ID)
		a.pages.RemovePage(alertPagePrefix + ev.ID)
		if buttonLabel == "Open" && a.pages.HasPage("main") {
			a.engine.SetVisible(true)
			if a.chatPeer != "" {
				a.closeChat()
			}
			a.openChat(ev.Contact.ID)
			return
		}
		a.restoreFocus()
	})

	a.pages.AddPage(alertPagePrefix+ev.ID, modal, true, true)
}

func (a *App) closeSystemAlert(id string) {
	if !a.pages.HasPage(alertPagePrefix + id) {
		return
	}
	a.pages.RemovePage(alertPagePrefix + id)
	a.restoreFocus()
}

// showErrorDialog shows a simple error dialog
func (a *App) showErrorDialog(title, message string) {
	modal := tview.NewModal()
	modal.SetText(title + "\n\n" + message)
	styleModal(modal)
	modal.AddButtons([]string{"OK"})
	modal.SetDoneFunc(func(buttonIndex int, buttonLabel string) {
		a.pages.RemovePage("errordialog")
		a.restoreFocus()
	})

	a.pages.AddPage("errordialog", modal, true, true)
}

func (a *App) restoreFocus() {
	switch {
	case a.messageInput != nil:
		a.app.SetFocus(a.messageInput)
	case a.contactsList != nil:
		a.app.SetFocus(a.contactsList)
	}
}
