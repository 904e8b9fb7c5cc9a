package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const (
	dirPrefix  = "📁 "
	filePrefix = "📄 "
)

// showFileBrowser lets the user pick a file to attach. onSelect runs only
// when a file is chosen.
func (a *App) showFileBrowser(initialPath string, onSelect func(path string)) {
	startDir := initialPath
	if startDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			startDir = "/"
		} else {
			startDir = home
		}
	}
	if info, err := os.Stat(startDir); err == nil && !info.IsDir() {
		startDir = filepath.Dir(startDir)
	}

	currentDir := startDir

	fileList := tview.NewList()
	fileList.SetBorder(true)
	fileList.SetBorderColor(ColorBorder)
	fileList.SetBackgroundColor(ColorBg)
	fileList.SetMainTextColor(ColorFg)
	fileList.SetSecondaryTextColor(tcell.NewRGBColor(128, 128, 128))
	fileList.SetSelectedTextColor(ColorTitle)
	fileList.SetSelectedBackgroundColor(ColorBar)
	fileList.SetHighlightFullLine(true)
	fileList.ShowSecondaryText(true)

	pathInput := tview.NewInputField()
	pathInput.SetLabel(" Path: ")
	pathInput.SetFieldWidth(0)
	pathInput.SetBackgroundColor(ColorBg)
	pathInput.SetFieldBackgroundColor(ColorField)
	pathInput.SetFieldTextColor(ColorFg)
	pathInput.SetLabelColor(ColorHighlight)

	statusText := newStatusBar(" Enter:Attach | Backspace:Up | Tab:Path | Esc:Cancel ")

	closeBrowser := func() {
		a.pages.RemovePage("filebrowser")
		a.restoreFocus()
	}

	populateList := func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}

		fileList.Clear()
		if dir != "/" {
			fileList.AddItem(dirPrefix+"..", "", 0, nil)
		}

		var dirs, files []os.DirEntry
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			if entry.IsDir() {
				dirs = append(dirs, entry)
			} else {
				files = append(files, entry)
			}
		}
		byName := func(list []os.DirEntry) {
			sort.Slice(list, func(i, j int) bool {
				return strings.ToLower(list[i].Name()) < strings.ToLower(list[j].Name())
			})
		}
		byName(dirs)
		byName(files)

		for _, entry := range dirs {
			fileList.AddItem(dirPrefix+entry.Name()+"/", "", 0, nil)
		}
		for _, entry := range files {
			sizeStr := ""
			if info, err := entry.Info(); err == nil {
				sizeStr = formatFileSize(info.Size())
			}
			fileList.AddItem(filePrefix+entry.Name(), sizeStr, 0, nil)
		}

		currentDir = dir
		pathInput.SetText(dir)
		fileList.SetTitle(fmt.Sprintf(" Attach File - %s ", dir))
		return nil
	}

	changeDir := func(dir string) {
		if err := populateList(dir); err != nil {
			statusText.SetText(fmt.Sprintf(" Error: %v ", err))
		}
	}

	fileList.SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
		if name, ok := strings.CutPrefix(mainText, dirPrefix); ok {
			name = strings.TrimSuffix(name, "/")
			if name == ".." {
				changeDir(filepath.Dir(currentDir))
			} else {
				changeDir(filepath.Join(currentDir, name))
			}
			return
		}
		path := filepath.Join(currentDir, strings.TrimPrefix(mainText, filePrefix))
		closeBrowser()
		onSelect(path)
	})

	fileList.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc:
			closeBrowser()
			return nil
		case tcell.KeyBackspace, tcell.KeyBackspace2:
			if currentDir != "/" {
				changeDir(filepath.Dir(currentDir))
			}
			return nil
		case tcell.KeyTab:
			a.app.SetFocus(pathInput)
			return nil
		}
		return event
	})

	pathInput.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			newPath := pathInput.GetText()
			info, err := os.Stat(newPath)
			switch {
			case err != nil:
				statusText.SetText(" Invalid path ")
			case info.IsDir():
				changeDir(newPath)
			default:
				closeBrowser()
				onSelect(newPath)
				return
			}
			a.app.SetFocus(fileList)
		case tcell.KeyEsc, tcell.KeyTab:
			a.app.SetFocus(fileList)
		}
	})

	changeDir(currentDir)

	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(pathInput, 1, 0, false).
		AddItem(fileList, 0, 1, true).
		AddItem(statusText, 1, 0, false)
	mainFlex.SetBackgroundColor(ColorBg)

	a.pages.AddPage("filebrowser", centered(mainFlex, 60, 20), true, true)
	a.app.SetFocus(fileList)
}

// formatFileSize formats file size for display
func formatFileSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/float64(GB))
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/float64(MB))
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/float64(KB))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
