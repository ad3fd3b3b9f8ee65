// Package tui is the operator dashboard of the print server
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/thereceipt/ticketprint/internal/command"
	"github.com/thereceipt/ticketprint/internal/permission"
	"github.com/thereceipt/ticketprint/internal/service"
	"github.com/thereceipt/ticketprint/internal/tui/screens"
)

const (
	pageMain    = "main"
	pageDevices = "devices"
	pageJobs    = "jobs"

	promptPagePrefix = "prompt:"
	maxLogs          = 100
)

// TViewApp is the dashboard: devices, jobs, status, logs and a command line.
// Permission prompts pop up as modals on top of whatever screen is shown.
type TViewApp struct {
	App      *tview.Application
	svc      *service.Service
	executor *command.Executor

	pages *tview.Pages
	flex  *tview.Flex

	devicesList  *tview.List
	jobsTable    *tview.Table
	statusBox    *tview.TextView
	logsArea     *tview.TextView
	commandInput *tview.InputField

	devicesScreen *screens.DeviceEditor
	jobsScreen    *screens.JobsView

	currentScreen string
	startTime     time.Time
}

// NewTViewApp creates the dashboard
func NewTViewApp(svc *service.Service, executor *command.Executor) *TViewApp {
	t := &TViewApp{
		App:           tview.NewApplication(),
		svc:           svc,
		executor:      executor,
		currentScreen: pageMain,
		startTime:     time.Now(),
	}

	t.setupUI()
	return t
}

func (t *TViewApp) setupUI() {
	t.devicesList = tview.NewList()
	t.devicesList.SetBorder(true)
	t.devicesList.SetTitle("Vendor Printers")

	t.jobsTable = tview.NewTable()
	t.jobsTable.SetBorder(true)
	t.jobsTable.SetTitle("Jobs")

	t.statusBox = tview.NewTextView()
	t.statusBox.SetBorder(true)
	t.statusBox.SetTitle("Server Status")
	t.statusBox.SetDynamicColors(true)

	t.logsArea = tview.NewTextView()
	t.logsArea.SetBorder(true)
	t.logsArea.SetTitle("Server Logs")
	t.logsArea.SetDynamicColors(true)
	t.logsArea.SetScrollable(true)
	t.logsArea.SetMaxLines(maxLogs)
	t.logsArea.SetChangedFunc(func() {
		t.App.Draw()
	})

	t.commandInput = tview.NewInputField().
		SetLabel("> ").
		SetFieldWidth(0).
		SetPlaceholder("Type a command (e.g., 'help')")
	t.commandInput.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			t.executeCommand(t.commandInput.GetText())
			t.commandInput.SetText("")
		}
	})

	topRow := tview.NewFlex().
		AddItem(t.devicesList, 0, 1, false).
		AddItem(t.jobsTable, 0, 1, false).
		AddItem(t.statusBox, 0, 1, false)

	bottom := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(t.logsArea, 0, 3, false).
		AddItem(t.commandInput, 1, 0, true)

	t.flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 1, false).
		AddItem(bottom, 0, 1, false)

	t.devicesScreen = screens.NewDeviceEditor(t.App, t.svc)
	t.jobsScreen = screens.NewJobsView(t.App, t.svc.Jobs())

	t.pages = tview.NewPages().
		AddPage(pageMain, t.flex, true, true).
		AddPage(pageDevices, t.devicesScreen.GetRoot(), true, false).
		AddPage(pageJobs, t.jobsScreen.GetRoot(), true, false)

	t.App.SetInputCapture(t.handleKey)
	t.App.SetRoot(t.pages, true)
}

func (t *TViewApp) handleKey(event *tcell.EventKey) *tcell.EventKey {
	// modals own the keyboard
	if name, _ := t.pages.GetFrontPage(); strings.HasPrefix(name, promptPagePrefix) {
		return event
	}

	if t.currentScreen != pageMain {
		if event.Key() == tcell.KeyEsc {
			t.showScreen(pageMain)
			return nil
		}
		return event
	}

	if t.commandInput.HasFocus() {
		if event.Key() == tcell.KeyEsc {
			t.App.SetFocus(t.devicesList)
			return nil
		}
		return event
	}

	switch event.Key() {
	case tcell.KeyCtrlC, tcell.KeyEsc:
		t.App.Stop()
		return nil
	case tcell.KeyRune:
		switch event.Rune() {
		case ':':
			t.App.SetFocus(t.commandInput)
			return nil
		case 'q':
			t.App.Stop()
			return nil
		case 'd':
			t.showScreen(pageDevices)
			return nil
		case 'j':
			t.showScreen(pageJobs)
			return nil
		}
	}
	return event
}

// Run starts the dashboard and blocks until it quits
func (t *TViewApp) Run() error {
	t.refreshAll()
	go t.refreshTicker()
	return t.App.Run()
}

// Stop quits the dashboard
func (t *TViewApp) Stop() {
	t.App.Stop()
}

func (t *TViewApp) refreshTicker() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		t.App.QueueUpdateDraw(t.refreshAll)
	}
}

// Refresh redraws every panel from the event loop
func (t *TViewApp) Refresh() {
	go t.App.QueueUpdateDraw(t.refreshAll)
}

func (t *TViewApp) refreshAll() {
	t.refreshDevices()
	t.refreshJobs()
	t.refreshStatus()

	switch t.currentScreen {
	case pageDevices:
		t.devicesScreen.Refresh()
	case pageJobs:
		t.jobsScreen.Refresh()
	}
}

func (t *TViewApp) refreshDevices() {
	t.devicesList.Clear()

	devices, err := t.svc.Devices(context.Background())
	if err != nil {
		t.devicesList.AddItem("Error listing devices", err.Error(), 0, nil)
		return
	}

	vendorID := t.svc.Config().VendorID
	count := 0
	for _, d := range devices {
		if d.VendorID != vendorID {
			continue
		}
		count++
		t.devicesList.AddItem(
			fmt.Sprintf("%s %s", screens.StateIcon(d.State), screens.DisplayName(d)),
			fmt.Sprintf("%04X:%04X • %s • %s", d.VendorID, d.ProductID, d.Name, d.State),
			0, nil)
	}

	if count == 0 {
		t.devicesList.AddItem("No vendor printers attached", fmt.Sprintf("vendor %04X", vendorID), 0, nil)
	}
}

func (t *TViewApp) refreshJobs() {
	t.jobsTable.Clear()

	for col, title := range []string{"Status", "Kind", "Target", "Age"} {
		t.jobsTable.SetCell(0, col, tview.NewTableCell(title).SetAlign(tview.AlignCenter).SetSelectable(false))
	}

	jobs := t.svc.Jobs().GetAllJobs()
	counts := make(map[string]int)

	// newest first
	for i := range jobs {
		job := jobs[len(jobs)-1-i]
		row := i + 1
		t.jobsTable.SetCell(row, 0, tview.NewTableCell(screens.JobIcon(job.Status)+" "+job.Status))
		t.jobsTable.SetCell(row, 1, tview.NewTableCell(job.Kind))
		t.jobsTable.SetCell(row, 2, tview.NewTableCell(job.Target))
		t.jobsTable.SetCell(row, 3, tview.NewTableCell(time.Since(job.CreatedAt).Truncate(time.Second).String()))
		counts[job.Status]++
	}

	if len(jobs) > 0 {
		summary := fmt.Sprintf("[%d] Printing [%d] Completed [%d] Failed",
			counts["printing"], counts["completed"], counts["failed"])
		t.jobsTable.SetCell(len(jobs)+1, 0, tview.NewTableCell(summary).SetSelectable(false))
	}
}

func (t *TViewApp) refreshStatus() {
	uptime := time.Since(t.startTime)
	cfg := t.svc.Config()

	// no status query here, it would wait behind a running print
	connection := "[yellow]⚪ Not connected[white]"
	if target := t.svc.Target(); target != "" {
		connection = "[green]🟢 " + target + "[white]"
	}

	pending := "none"
	if d, ok := t.svc.Pending(); ok {
		pending = d.Name
	}

	t.statusBox.SetText(fmt.Sprintf(`[green]🟢 Running[white]

Printer: %s
Transport: %s
Pending permission: %s
Uptime: %dh %dm
API: :%s
Jobs: %d total`,
		connection, cfg.Transport, pending,
		int(uptime.Hours()), int(uptime.Minutes())%60,
		cfg.Port, len(t.svc.Jobs().GetAllJobs())))
}

// executeCommand runs a command line through the executor off the event
// loop, since permission requests block until answered
func (t *TViewApp) executeCommand(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	t.AddLog("> "+line, "command")

	switch strings.ToLower(line) {
	case "clear":
		t.logsArea.Clear()
		return
	case "refresh":
		t.refreshAll()
		return
	case "devices":
		t.showScreen(pageDevices)
		return
	case "jobs":
		t.showScreen(pageJobs)
		return
	case "quit":
		t.App.Stop()
		return
	}

	go func() {
		result := t.executor.Execute(context.Background(), line)
		if result.Success {
			if result.Message != "" {
				t.AddLog(result.Message, "info")
			}
		} else {
			msg := result.Error
			if result.Code != "" {
				msg = fmt.Sprintf("%s (%s)", msg, result.Code)
			}
			t.AddLog(msg, "error")
		}
		t.Refresh()
	}()
}

func (t *TViewApp) showScreen(name string) {
	t.currentScreen = name
	t.pages.SwitchToPage(name)

	switch name {
	case pageDevices:
		t.devicesScreen.Refresh()
		t.App.SetFocus(t.devicesScreen.GetRoot())
	case pageJobs:
		t.jobsScreen.Refresh()
		t.App.SetFocus(t.jobsScreen.GetRoot())
	default:
		t.App.SetFocus(t.devicesList)
	}
}

// ShowPrompt pops up an Allow/Deny dialog for a permission prompt. It is
// safe to call from any goroutine and never blocks.
func (t *TViewApp) ShowPrompt(p permission.Prompt) {
	t.AddLog(fmt.Sprintf("🔐 Permission requested for %s", p.Device.Name), "warning")

	go t.App.QueueUpdateDraw(func() {
		page := promptPagePrefix + p.Device.Name
		if t.pages.HasPage(page) {
			return
		}

		modal := tview.NewModal().
			SetText(fmt.Sprintf("Allow access to USB device %04X:%04X?\n\n%s\n%s",
				p.Device.VendorID, p.Device.ProductID,
				screens.DisplayName(p.Device), p.Device.Name)).
			AddButtons([]string{"Allow", "Deny"}).
			SetDoneFunc(func(index int, label string) {
				t.pages.RemovePage(page)
				t.showScreen(t.currentScreen)
				granted := label == "Allow"
				go func() {
					if err := t.svc.AnswerPermission(p.Device.Name, granted); err != nil {
						t.AddLog(fmt.Sprintf("Permission answer for %s: %v", p.Device.Name, err), "error")
					}
				}()
			})

		t.pages.AddPage(page, modal, false, true)
		t.App.SetFocus(modal)
	})
}

// DismissPrompt closes the dialog of a prompt decided elsewhere
func (t *TViewApp) DismissPrompt(deviceName string) {
	go t.App.QueueUpdateDraw(func() {
		page := promptPagePrefix + deviceName
		if !t.pages.HasPage(page) {
			return
		}
		t.pages.RemovePage(page)
		t.showScreen(t.currentScreen)
	})
}

// AddLog appends a log line. Safe for concurrent use.
func (t *TViewApp) AddLog(message string, level string) {
	var color, icon string

	switch level {
	case "error":
		color = "[red]"
		icon = "❌"
	case "warning":
		color = "[yellow]"
		icon = "⚠️"
	case "command":
		color = "[cyan]"
		icon = ">"
	default:
		color = "[white]"
		icon = "ℹ️"
	}

	fmt.Fprintf(t.logsArea, "%s[%s] %s %s[white]\n",
		color, time.Now().Format("15:04:05"), icon, tview.Escape(message))
}

// LogWriter creates an io.Writer that writes to the logs panel
func (t *TViewApp) LogWriter() io.Writer {
	return &tviewLogWriter{app: t}
}

type tviewLogWriter struct {
	app *TViewApp
}

func (w *tviewLogWriter) Write(p []byte) (n int, err error) {
	message := strings.TrimSpace(string(p))
	if message != "" {
		level := "info"
		if strings.Contains(message, "failed") || strings.Contains(message, "error") {
			level = "error"
		}
		w.app.AddLog(message, level)
	}
	return len(p), nil
}
