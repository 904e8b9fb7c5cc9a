package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Colors - Midnight Commander style
var (
	ColorBg        = tcell.NewRGBColor(0, 0, 128)     // Dark blue background
	ColorFg        = tcell.NewRGBColor(192, 192, 192) // Light gray text
	ColorField     = tcell.NewRGBColor(0, 0, 64)      // Input fields
	ColorBar       = tcell.NewRGBColor(0, 128, 128)   // Status bars and buttons
	ColorBorder    = tcell.NewRGBColor(0, 255, 255)   // Cyan borders
	ColorTitle     = tcell.NewRGBColor(255, 255, 255) // White titles
	ColorHighlight = tcell.NewRGBColor(0, 255, 255)   // Cyan highlight
)

func styleForm(form *tview.Form, title string) {
	form.SetBackgroundColor(ColorBg)
	form.SetFieldBackgroundColor(ColorField)
	form.SetFieldTextColor(ColorFg)
	form.SetLabelColor(ColorHighlight)
	form.SetButtonBackgroundColor(ColorBar)
	form.SetButtonTextColor(ColorTitle)
	form.SetBorder(true)
	form.SetBorderColor(ColorBorder)
	form.SetTitle(title)
	form.SetTitleColor(ColorTitle)
}

func styleModal(modal *tview.Modal) {
	modal.SetBackgroundColor(ColorBg)
	modal.SetTextColor(ColorFg)
	modal.SetButtonBackgroundColor(ColorBar)
	modal.SetButtonTextColor(ColorTitle)
}

func newStatusBar(text string) *tview.TextView {
	bar := tview.NewTextView()
	bar.SetBackgroundColor(ColorBar)
	bar.SetTextColor(ColorTitle)
	bar.SetTextAlign(tview.AlignCenter)
	bar.SetText(text)
	return bar
}

// centered places p in the middle of the screen with a fixed size.
func centered(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(p, width, 0, true).
			AddItem(nil, 0, 1, false), height, 0, true).
		AddItem(nil, 0, 1, false)
}
