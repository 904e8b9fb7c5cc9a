package ui

import (
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/op/go-logging"
	"github.com/rivo/tview"

	"chatsync/config"
	"chatsync/engine"
	"chatsync/models"
)

var log = logging.MustGetLogger("ui")

// App is the terminal client. It renders engine state and receives
// notification effects as the engine's alerter.
type App struct {
	app    *tview.Application
	pages  *tview.Pages
	engine *engine.Engine
	cfg    *config.Config
	done   chan struct{}

	mu     sync.Mutex
	screen tcell.Screen
	title  string
	badge  bool
	banner models.NotificationEvent
	notice string

	titleView        *tview.TextView
	bannerView       *tview.TextView
	contactsList     *tview.List
	contactIDs       []string // list index -> contact id
	chatView         *tview.TextView
	messageInput     *tview.InputField
	statusBar        *tview.TextView
	connectionView   *tview.TextView
	chatPeer         string
	statusTicker     *time.Ticker
	statusTickerDone chan struct{}
}

// NewApp creates the client and its engine.
func NewApp(cfg *config.Config) *App {
	a := &App{
		cfg:   cfg,
		title: cfg.AppName,
		done:  make(chan struct{}),
	}
	a.engine = engine.New(cfg, a)
	return a
}

// Run starts the application and blocks until it quits.
func (a *App) Run() error {
	a.app = tview.NewApplication()
	a.pages = tview.NewPages()

	a.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		a.mu.Lock()
		a.screen = screen
		a.mu.Unlock()
		return false
	})

	a.titleView = tview.NewTextView()
	a.titleView.SetBackgroundColor(ColorBar)
	a.titleView.SetTextColor(ColorTitle)
	a.titleView.SetDynamicColors(true)

	a.bannerView = tview.NewTextView()
	a.bannerView.SetBackgroundColor(ColorBg)
	a.bannerView.SetTextColor(ColorHighlight)
	a.bannerView.SetDynamicColors(true)

	background := tview.NewBox()
	background.SetBackgroundColor(tcell.NewRGBColor(64, 64, 64))
	a.pages.AddPage("background", background, true, true)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.titleView, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.bannerView, 1, 0, false)

	a.updateChrome()
	a.showAuthDialog()
	go a.pumpUpdates()

	err := a.app.SetRoot(root, true).EnableMouse(false).Run()
	close(a.done)
	a.stopStatusTicker()
	a.engine.Close()
	return err
}

// quit exits the application
func (a *App) quit() {
	a.app.Stop()
}

// redraw schedules fn on the UI goroutine. Safe to call from any goroutine,
// including the UI goroutine itself.
func (a *App) redraw(fn func()) {
	if a.app == nil {
		return
	}
	go a.app.QueueUpdateDraw(fn)
}
