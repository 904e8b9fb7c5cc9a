package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"chatsync/engine"
)

func (a *App) updateContactsList() {
	if a.contactsList == nil {
		return
	}

	currentIdx := a.contactsList.GetCurrentItem()
	a.contactsList.Clear()
	a.contactIDs = a.contactIDs[:0]

	now := time.Now()
	for _, contact := range a.engine.Contacts() {
		var sb strings.Builder
		if contact.Online {
			sb.WriteString("[green]●[white] ")
		} else {
			sb.WriteString("[gray]○[white] ")
		}
		sb.WriteString(tview.Escape(contact.Name))

		switch {
		case contact.Typing:
			sb.WriteString(" [yellow]typing…")
		case !contact.Online:
			if seen := formatLastSeen(contact.LastSeen, now); seen != "" {
				fmt.Fprintf(&sb, " [gray]— %s", seen)
			}
		}
		if contact.Unread > 0 {
			fmt.Fprintf(&sb, " [red](%d)", contact.Unread)
		}

		a.contactsList.AddItem(sb.String(), "", 0, nil)
		a.contactIDs = append(a.contactIDs, contact.ID)
	}

	if currentIdx >= 0 && currentIdx < a.contactsList.GetItemCount() {
		a.contactsList.SetCurrentItem(currentIdx)
	}
}

func (a *App) contactView(id string) (engine.ContactView, bool) {
	for _, c := range a.engine.Contacts() {
		if c.ID == id {
			return c, true
		}
	}
	return engine.ContactView{}, false
}
