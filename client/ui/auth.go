package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"chatsync/api"
	"chatsync/engine"
	"chatsync/models"
)

func (a *App) showAuthDialog() {
	form := tview.NewForm()
	styleForm(form, fmt.Sprintf(" %s Sign In ", a.cfg.AppName))

	statusText := tview.NewTextView()
	statusText.SetBackgroundColor(ColorBg)
	statusText.SetTextColor(tcell.ColorRed)
	statusText.SetTextAlign(tview.AlignCenter)
	statusText.SetDynamicColors(true)

	emailField := tview.NewInputField().SetLabel("Email: ").SetFieldWidth(30)
	passwordField := tview.NewInputField().SetLabel("Password: ").SetFieldWidth(30).SetMaskCharacter('*')
	firstField := tview.NewInputField().SetLabel("First name: ").SetFieldWidth(30)
	lastField := tview.NewInputField().SetLabel("Last name: ").SetFieldWidth(30)

	form.AddFormItem(emailField)
	form.AddFormItem(passwordField)
	form.AddFormItem(firstField)
	form.AddFormItem(lastField)

	form.AddButton("Login", func() {
		email, password := emailField.GetText(), passwordField.GetText()
		if strings.TrimSpace(email) == "" || password == "" {
			statusText.SetText("[red]Please enter email and password[-]")
			return
		}
		a.doAuth(statusText, func(ctx context.Context) error {
			return a.engine.Login(ctx, email, password)
		})
	})

	form.AddButton("Register", func() {
		reg := api.Registration{
			FirstName: firstField.GetText(),
			LastName:  lastField.GetText(),
			Email:     emailField.GetText(),
			Password:  passwordField.GetText(),
		}
		a.doAuth(statusText, func(ctx context.Context) error {
			return a.engine.Register(ctx, reg)
		})
	})

	form.AddButton("Quit", func() {
		a.quit()
	})

	formFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(form, 0, 1, true).
		AddItem(statusText, 2, 0, false)

	a.pages.AddPage("auth", centered(formFlex, 56, 16), true, true)
	a.app.SetFocus(form)
}

// doAuth runs fn off the UI goroutine and switches to the main screen on
// success.
func (a *App) doAuth(statusText *tview.TextView, fn func(ctx context.Context) error) {
	statusText.SetText("[yellow]Signing in...[-]")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
		defer cancel()

		err := fn(ctx)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				statusText.SetText("[red]" + tview.Escape(authError(err)) + "[-]")
				return
			}
			a.showMainScreen()
		})
	}()
}

func authError(err error) string {
	var verr *engine.ValidationError
	var apiErr *api.Error
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, models.ErrUnauthorized):
		return "Invalid email or password"
	case errors.As(err, &apiErr) && apiErr.Detail != "":
		return apiErr.Detail
	default:
		log.Warningf("authentication failed: %v", err)
		return "Server unreachable"
	}
}
