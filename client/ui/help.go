package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

func (a *App) showHelp() {
	helpText := `
 [yellow]Contacts[-]
 ───────────────────────────────────────────────────────────────
   [white]F1[-]       Show this help
   [white]F5[-]       Reload the directory
   [white]F6[-]       Log out
   [white]F7[-]       Toggle away (messages count as unread)
   [white]F9[-]       Mute / unmute notifications
   [white]F10/Esc[-]  Quit application
   [white]Enter[-]    Open conversation
   [white]↑ ↓[-]      Navigate contacts

 [yellow]Conversation[-]
 ───────────────────────────────────────────────────────────────
   [white]Enter[-]    Send message
   [white]F2[-]       Attach a file
   [white]F5[-]       Reload history
   [white]Tab[-]      Switch between input and scroll mode
   [white]Esc[-]      Back to contacts (from input mode)

   [white]/upload <path>[-]  Send a file from the input line

 [yellow]Scroll Mode (after pressing Tab)[-]
 ───────────────────────────────────────────────────────────────
   [white]↑ ↓[-]      Scroll one line
   [white]PgUp/Dn[-]  Scroll page (10 lines)
   [white]Home[-]     Scroll to beginning
   [white]End[-]      Scroll to end
   [white]Tab/Esc[-]  Return to input mode

 [yellow]Status Icons[-]
 ───────────────────────────────────────────────────────────────
   [green]●[-] online   User is connected
   [gray]○[-] offline  User is disconnected
   [gray]○[-]          Sending
   [gray]✓[-]          Sent
   [gray]✓✓[-]         Delivered
   [green]✓✓[-]         Seen

 [yellow]Notifications[-]
 ───────────────────────────────────────────────────────────────
   Incoming messages ring the terminal bell and show on the bottom line.
   While away the title counts unread messages.
   Typing indicators clear two seconds after the last keystroke.
`

	helpView := tview.NewTextView()
	helpView.SetText(helpText)
	helpView.SetBackgroundColor(ColorBg)
	helpView.SetTextColor(ColorFg)
	helpView.SetDynamicColors(true)
	helpView.SetBorder(true)
	helpView.SetBorderColor(ColorBorder)
	helpView.SetTitle(" Help ")
	helpView.SetTitleColor(ColorTitle)
	helpView.SetScrollable(true)

	statusBar := newStatusBar(" ↑↓/PgUp/PgDn: Scroll | Esc/Enter/F1: Close ")

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(helpView, 0, 1, true).
		AddItem(statusBar, 1, 0, false)
	flex.SetBackgroundColor(ColorBg)

	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc, tcell.KeyEnter, tcell.KeyF1:
			a.pages.RemovePage("help")
			a.restoreFocus()
			return nil
		case tcell.KeyUp:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row-1, col)
			return nil
		case tcell.KeyDown:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row+1, col)
			return nil
		case tcell.KeyPgUp:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row-10, col)
			return nil
		case tcell.KeyPgDn:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row+10, col)
			return nil
		case tcell.KeyHome:
			helpView.ScrollToBeginning()
			return nil
		case tcell.KeyEnd:
			helpView.ScrollToEnd()
			return nil
		}
		return event
	})

	a.pages.AddPage("help", flex, true, true)
}
