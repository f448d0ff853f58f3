package main

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"switchres/display"
	"switchres/logging"
	"switchres/modeline"
)

type gui struct {
	s *session
	w fyne.Window

	modes    []*modeline.Modeline
	selected *modeline.Modeline

	list                 *widget.List
	entry                *widget.Entry
	status               *widget.Label
	switchBtn, deleteBtn *widget.Button
	restoreBtn, addBtn   *widget.Button
}

func runGUI(s *session) error {
	a := app.New()

	g := newGUI(s)
	w := g.makeWindow(a)

	g.setupActions(w)
	w.ShowAndRun()

	logging.SetCallbacks(nil, nil, nil)
	return nil
}

func newGUI(s *session) *gui {
	return &gui{s: s}
}

func (g *gui) makeWindow(a fyne.App) fyne.Window {
	g.w = a.NewWindow("Switchres")

	g.list = widget.NewList(
		func() int {
			return len(g.modes)
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("0000x0000 000.000Hz")
		},
		func(id widget.ListItemID, o fyne.CanvasObject) {
			o.(*widget.Label).SetText(g.describe(g.modes[id]))
		})

	g.switchBtn = widget.NewButton("Switch", g.switchSelected)
	g.deleteBtn = widget.NewButton("Delete", g.deleteSelected)
	g.restoreBtn = widget.NewButton("Restore", g.restore)
	g.switchBtn.Disable()
	g.deleteBtn.Disable()

	g.entry = widget.NewEntry()
	g.entry.SetPlaceHolder("6.05 320 336 368 384 240 243 246 263")
	g.addBtn = widget.NewButton("Add", g.addEntry)

	g.status = widget.NewLabel("")

	buttons := container.NewHBox(g.switchBtn, g.deleteBtn, g.restoreBtn)
	adder := container.NewBorder(nil, nil, nil, g.addBtn, g.entry)
	g.w.SetContent(container.NewBorder(nil, container.NewVBox(buttons, adder, g.status), nil, nil, g.list))
	g.w.Resize(fyne.NewSize(520, 400))

	g.loadModes()
	return g.w
}

// here the list selection and log output are hooked up
func (g *gui) setupActions(w fyne.Window) {
	g.list.OnSelected = func(id widget.ListItemID) {
		if id < 0 || id >= len(g.modes) {
			return
		}
		g.selected = g.modes[id]

		// a server mode is used by adding its timing
		if display.Fixed(g.selected) {
			g.switchBtn.Disable()
			g.deleteBtn.Disable()
			g.entry.SetText(g.selected.String())
			return
		}

		g.switchBtn.Enable()
		if g.selected == g.s.mgr.Desktop() {
			g.deleteBtn.Disable()
		} else {
			g.deleteBtn.Enable()
		}
	}
	g.list.OnUnselected = func(widget.ListItemID) {
		g.selected = nil
		g.switchBtn.Disable()
		g.deleteBtn.Disable()
	}

	status := func(msg string) {
		fyne.Do(func() {
			g.status.SetText(msg)
		})
	}
	logging.SetCallbacks(status, status, nil)
}

func (g *gui) describe(m *modeline.Modeline) string {
	mark := ""
	switch m {
	case g.s.mgr.Current():
		mark = "> "
	case g.s.mgr.Desktop():
		mark = "* "
	}
	return fmt.Sprintf("%s%dx%d %.3fHz  %s", mark, m.HActive, m.VActive, m.VFreq, m.Name())
}

func (g *gui) loadModes() {
	g.modes = append(g.modes[:0], g.s.mgr.Modes()...)
	g.list.Refresh()
}

func (g *gui) showError(msg string, err error) {
	fyne.LogError(msg, err)
	dialog.ShowError(fmt.Errorf("%s: %w", msg, err), g.w)
}

func (g *gui) switchSelected() {
	if g.selected == nil {
		return
	}

	if err := g.s.mgr.SwitchTo(g.selected); err != nil {
		g.showError("Failed to switch mode", err)
	}
	g.loadModes()
}

func (g *gui) deleteSelected() {
	if g.selected == nil {
		return
	}

	err := g.s.mgr.Delete(g.selected)
	if err == nil {
		err = g.s.mgr.Flush()
	}
	if err != nil {
		g.showError("Failed to delete mode", err)
	}

	g.list.UnselectAll()
	g.loadModes()
}

func (g *gui) restore() {
	if err := g.s.mgr.Restore(); err != nil {
		g.showError("Failed to restore desktop mode", err)
	}
	g.list.Refresh()
}

func (g *gui) addEntry() {
	ml, err := modeline.Parse(g.entry.Text)
	if err != nil {
		g.showError("Invalid modeline", err)
		return
	}

	g.s.mgr.Add(ml)
	if err := g.s.mgr.Flush(); err != nil {
		g.showError("Failed to add mode", err)
	}

	g.entry.SetText("")
	g.loadModes()
}
