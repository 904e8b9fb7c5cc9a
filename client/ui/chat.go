package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"chatsync/config"
	"chatsync/engine"
	"chatsync/models"
)

const (
	uploadCommand = "/upload "
	chatHints     = " Enter:Send | F2:Attach | Tab:Scroll | F5:Reload | F7:Away | F9:Mute | Esc:Back "
	scrollHints   = " ↑↓/PgUp/PgDn:Scroll | Home:Top | End:Bottom | Tab/Esc:Input "
)

func (a *App) openChat(peerID string) {
	a.chatPeer = peerID

	chatPage := a.createChatPage(peerID)
	a.pages.AddPage("chat", chatPage, true, true)
	a.pages.SwitchToPage("chat")
	a.refreshChatView()
	a.loadHistory(peerID)
}

func (a *App) chatTitle(peerID string) string {
	c, ok := a.contactView(peerID)
	if !ok {
		return fmt.Sprintf(" %s ", peerID)
	}
	status := "○ offline"
	switch {
	case c.Typing:
		status = "✎ typing…"
	case c.Online:
		status = "● online"
	}
	return fmt.Sprintf(" %s ─ %s ", c.Name, status)
}

func (a *App) updateChatTitle() {
	if a.chatView != nil && a.chatPeer != "" {
		a.chatView.SetTitle(a.chatTitle(a.chatPeer))
	}
}

func (a *App) createChatPage(peerID string) tview.Primitive {
	a.chatView = tview.NewTextView()
	a.chatView.SetBorder(true)
	a.chatView.SetBorderColor(ColorBorder)
	a.chatView.SetBackgroundColor(ColorBg)
	a.chatView.SetTitle(a.chatTitle(peerID))
	a.chatView.SetTitleColor(ColorTitle)
	a.chatView.SetTextColor(ColorFg)
	a.chatView.SetDynamicColors(true)
	a.chatView.SetScrollable(true)

	a.messageInput = tview.NewInputField()
	a.messageInput.SetLabel("> ")
	a.messageInput.SetFieldWidth(0)
	a.messageInput.SetBackgroundColor(ColorBg)
	a.messageInput.SetFieldBackgroundColor(ColorField)
	a.messageInput.SetFieldTextColor(ColorFg)
	a.messageInput.SetLabelColor(ColorHighlight)
	a.messageInput.SetBorder(true)
	a.messageInput.SetBorderColor(ColorBorder)
	a.messageInput.SetTitle(" Message ")
	a.messageInput.SetTitleColor(ColorTitle)

	a.messageInput.SetChangedFunc(func(text string) {
		if text != "" && !strings.HasPrefix(text, "/") {
			go a.engine.InputChanged()
		}
	})

	a.messageInput.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := strings.TrimSpace(a.messageInput.GetText())
		if text == "" {
			return
		}
		a.messageInput.SetText("")
		if strings.HasPrefix(text, uploadCommand) {
			a.uploadFile(strings.TrimSpace(strings.TrimPrefix(text, uploadCommand)))
			return
		}
		a.sendMessage(text)
	})

	chatStatus := newStatusBar(chatHints)

	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.chatView, 0, 1, false).
		AddItem(a.messageInput, 3, 0, true).
		AddItem(chatStatus, 1, 0, false)
	mainFlex.SetBackgroundColor(ColorBg)

	chatViewFocused := false

	mainFlex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if a.handleGlobalKey(event) {
			return nil
		}
		switch event.Key() {
		case tcell.KeyEsc:
			if chatViewFocused {
				chatViewFocused = false
				a.app.SetFocus(a.messageInput)
				chatStatus.SetText(chatHints)
				return nil
			}
			a.closeChat()
			return nil
		case tcell.KeyTab:
			chatViewFocused = !chatViewFocused
			if chatViewFocused {
				a.app.SetFocus(a.chatView)
				chatStatus.SetText(scrollHints)
			} else {
				a.app.SetFocus(a.messageInput)
				chatStatus.SetText(chatHints)
			}
			return nil
		case tcell.KeyF2:
			a.showFileBrowser("", func(path string) {
				a.uploadFile(path)
			})
			return nil
		case tcell.KeyF5:
			a.loadHistory(peerID)
			return nil
		case tcell.KeyPgUp:
			row, col := a.chatView.GetScrollOffset()
			a.chatView.ScrollTo(row-10, col)
			return nil
		case tcell.KeyPgDn:
			row, col := a.chatView.GetScrollOffset()
			a.chatView.ScrollTo(row+10, col)
			return nil
		case tcell.KeyUp:
			if chatViewFocused {
				row, col := a.chatView.GetScrollOffset()
				a.chatView.ScrollTo(row-1, col)
				return nil
			}
		case tcell.KeyDown:
			if chatViewFocused {
				row, col := a.chatView.GetScrollOffset()
				a.chatView.ScrollTo(row+1, col)
				return nil
			}
		case tcell.KeyHome:
			if chatViewFocused {
				a.chatView.ScrollToBeginning()
				return nil
			}
		case tcell.KeyEnd:
			if chatViewFocused {
				a.chatView.ScrollToEnd()
				return nil
			}
		}
		return event
	})

	return mainFlex
}

// loadHistory selects the conversation with peerID. The engine reports
// progress through timeline updates.
func (a *App) loadHistory(peerID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
		defer cancel()
		a.engine.Select(ctx, peerID)
	}()
}

func (a *App) refreshChatView() {
	if a.chatView == nil {
		return
	}
	conv, ok := a.engine.Active()
	if !ok || conv.PeerID != a.chatPeer {
		a.chatView.SetText("[gray]Loading…[-]")
		return
	}

	var sb strings.Builder
	for _, msg := range a.engine.Timeline() {
		line := messageText(msg, a.cfg.BackendURL)
		if msg.Mine {
			fmt.Fprintf(&sb, "[gray]%s[-] [white]→ %s[-] %s\n", msg.Label, line, statusIcon(msg))
		} else {
			fmt.Fprintf(&sb, "[gray]%s[-] [yellow]← %s[-]\n", msg.Label, line)
		}
	}
	if c, ok := a.contactView(a.chatPeer); ok && c.Typing {
		fmt.Fprintf(&sb, "[gray]%s is typing…[-]\n", escape(c.Name))
	}

	a.chatView.SetText(sb.String())
	a.chatView.ScrollToEnd()
}

func (a *App) sendMessage(text string) {
	_, err := a.engine.Send(text)
	switch {
	case errors.Is(err, engine.ErrEmptyMessage):
	case errors.Is(err, models.ErrMissingContext):
		a.setNotice("Conversation is still opening")
	case err != nil:
		a.setNotice(err.Error())
	default:
		a.refreshChatView()
	}
}

// uploadFile sends the file at path to the open conversation. The message
// shows up once the backend pushes it back.
func (a *App) uploadFile(path string) {
	if path == "" {
		a.setNotice("Usage: /upload <path>")
		return
	}
	path, err := config.ExpandPath(path)
	if err != nil {
		a.setNotice(err.Error())
		return
	}
	go func() {
		f, err := os.Open(path)
		if err != nil {
			a.redraw(func() { a.showErrorDialog("Upload", err.Error()) })
			return
		}
		defer f.Close()

		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
		defer cancel()
		// Failures arrive as engine notices.
		if err := a.engine.Upload(ctx, path, f); err == nil {
			log.Infof("uploaded %s", path)
		}
	}()
}

func (a *App) closeChat() {
	a.chatPeer = ""
	a.engine.Deselect()
	a.chatView = nil
	a.messageInput = nil
	a.pages.RemovePage("chat")
	a.pages.SwitchToPage("main")
	a.updateContactsList()
	a.app.SetFocus(a.contactsList)
}
