package command

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/thereceipt/ticketprint/internal/printer"
	"github.com/thereceipt/ticketprint/internal/service"
	"github.com/thereceipt/ticketprint/pkg/ticketformat"
)

// handlePermission handles permission commands
// Usage: permission request | check | answer <device> <allow|deny>
func (e *Executor) handlePermission(ctx context.Context, args []string) *Result {
	if len(args) == 0 {
		return usage("permission <request|check|answer>")
	}

	switch args[0] {
	case "request":
		outcome, err := e.svc.RequestPermission(ctx)
		if err != nil {
			r := failure(err)
			if outcome != "" {
				r.Data = map[string]interface{}{"outcome": outcome}
			}
			return r
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Permission %s", outcome),
			Data:    map[string]interface{}{"outcome": outcome},
		}

	case "check":
		outcome, err := e.svc.CheckPermission(ctx)
		if err != nil {
			return failure(err)
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Permission %s", outcome),
			Data:    map[string]interface{}{"outcome": outcome},
		}

	case "answer":
		if len(args) < 3 {
			return usage("permission answer <device> <allow|deny>")
		}
		var granted bool
		switch args[2] {
		case "allow", "yes", "grant":
			granted = true
		case "deny", "no":
		default:
			return usage("permission answer <device> <allow|deny>")
		}
		if err := e.svc.AnswerPermission(args[1], granted); err != nil {
			return failure(fmt.Errorf("%s: %w", args[1], err))
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Answered %s for %s", args[2], args[1]),
		}

	default:
		return usage("permission <request|check|answer>")
	}
}

func (e *Executor) handleConnect(ctx context.Context) *Result {
	target, err := e.svc.Connect(ctx)
	if err != nil {
		return failure(err)
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Connected to %s", target),
		Data:    map[string]interface{}{"target": target},
	}
}

func (e *Executor) handleDisconnect() *Result {
	if err := e.svc.Disconnect(); err != nil {
		return failure(err)
	}
	return &Result{Success: true, Message: "Disconnected"}
}

func (e *Executor) handleStatus(ctx context.Context) *Result {
	connected := e.svc.IsConnected(ctx)
	data := map[string]interface{}{
		"connected": connected,
		"target":    e.svc.Target(),
		"transport": e.svc.Config().Transport,
	}
	if d, ok := e.svc.Pending(); ok {
		data["pending"] = d.Name
	}

	msg := "Not connected"
	if connected {
		msg = "Connected to " + e.svc.Target()
	}
	return &Result{Success: true, Message: msg, Data: data}
}

// handlePrint handles print commands
// Usage: print test [order-id] | tickets <file> | receipt <file> | void <file> | barcode <value> [caption]
func (e *Executor) handlePrint(ctx context.Context, args []string) *Result {
	const text = "print <test|tickets|receipt|void|barcode> ..."
	if len(args) == 0 {
		return usage(text)
	}

	var job printer.PrintJob
	var err error

	switch args[0] {
	case service.KindTest:
		orderID := ""
		if len(args) > 1 {
			orderID = args[1]
		}
		job, err = e.svc.PrintTestPage(ctx, orderID)

	case service.KindTickets, service.KindReceipt, service.KindVoid:
		if len(args) < 2 {
			return usage(fmt.Sprintf("print %s <file|url>", args[0]))
		}
		data, loadErr := loadDocument(args[1])
		if loadErr != nil {
			return failure(loadErr)
		}
		job, err = e.svc.Print(ctx, args[0], data)

	case service.KindBarcode:
		if len(args) < 2 {
			return usage("print barcode <value> [caption]")
		}
		caption := ""
		if len(args) > 2 {
			caption = strings.Join(args[2:], " ")
		}
		job, err = e.svc.PrintBarcode(ctx, args[1], caption)

	default:
		return usage(text)
	}

	if err != nil {
		r := failure(err)
		if job.ID != "" {
			r.Data = map[string]interface{}{"job_id": job.ID}
		}
		return r
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Printed %s: job %s", job.Kind, job.ID),
		Data: map[string]interface{}{
			"job_id":    job.ID,
			"documents": job.Documents,
		},
	}
}

// handleDevice handles device commands
// Usage: device list | rename <id> <name>
func (e *Executor) handleDevice(ctx context.Context, args []string) *Result {
	if len(args) == 0 {
		return usage("device <list|rename>")
	}

	switch args[0] {
	case "list":
		devices, err := e.svc.Devices(ctx)
		if err != nil {
			return failure(err)
		}
		list := make([]map[string]interface{}, len(devices))
		for i, d := range devices {
			list[i] = map[string]interface{}{
				"id":          d.ID,
				"name":        d.Name,
				"alias":       d.Alias,
				"vendor_id":   fmt.Sprintf("%04X", d.VendorID),
				"product_id":  fmt.Sprintf("%04X", d.ProductID),
				"description": d.Description,
				"printer":     d.Printer,
				"state":       d.State,
			}
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Found %d device(s)", len(devices)),
			Data:    map[string]interface{}{"devices": list},
		}

	case "rename":
		if len(args) < 3 {
			return usage("device rename <id> <name>")
		}
		id, name := args[1], strings.Join(args[2:], " ")
		if err := e.svc.RenameDevice(id, name); err != nil {
			return failure(err)
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Renamed device %s to %s", id, name),
		}

	default:
		return usage("device <list|rename>")
	}
}

// handleJob handles job commands
// Usage: job list | status <id> | clear
func (e *Executor) handleJob(args []string) *Result {
	if len(args) == 0 {
		return usage("job <list|status|clear>")
	}

	jobs := e.svc.Jobs()

	switch args[0] {
	case "list":
		all := jobs.GetAllJobs()
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Found %d job(s)", len(all)),
			Data:    map[string]interface{}{"jobs": all},
		}

	case "status":
		if len(args) < 2 {
			return usage("job status <id>")
		}
		job := jobs.GetJob(args[1])
		if job == nil {
			return &Result{
				Success: false,
				Error:   fmt.Sprintf("job not found: %s", args[1]),
			}
		}
		data := map[string]interface{}{
			"id":         job.ID,
			"kind":       job.Kind,
			"target":     job.Target,
			"status":     job.Status,
			"documents":  job.Documents,
			"created_at": job.CreatedAt,
		}
		if job.Error != "" {
			data["error"] = job.Error
		}
		return &Result{Success: true, Data: data}

	case "clear":
		jobs.ClearCompleted()
		return &Result{Success: true, Message: "Cleared completed jobs"}

	default:
		return usage("job <list|status|clear>")
	}
}

func (e *Executor) handleHelp() *Result {
	helpText := `Available Commands:

  permission request
    Ask for access to the vendor printer and wait for the answer

  permission check
    Report whether every vendor printer is authorized

  permission answer <device> <allow|deny>
    Decide an outstanding permission prompt

  connect | disconnect | status
    Manage the printer connection

  print test [order-id]
  print tickets <file|url>
  print receipt <file|url>
  print void <file|url>
  print barcode <value> [caption]
    Print a document

  device list
  device rename <id> <name>
    List USB devices or name one

  job list | job status <id> | job clear
    Inspect print jobs

  help
    Show this help message

Examples:
  permission request
  permission answer /dev/bus/usb/001/004 allow
  print tickets ./tickets.json
  print barcode TKT-0042 "Gate 3"
`

	return &Result{
		Success: true,
		Message: helpText,
	}
}

// loadDocument reads a document from a file path or an http(s) URL
func loadDocument(pathOrURL string) ([]byte, error) {
	if !strings.HasPrefix(pathOrURL, "http://") && !strings.HasPrefix(pathOrURL, "https://") {
		return ticketformat.ReadFile(pathOrURL)
	}

	resp, err := http.Get(pathOrURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document from URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch document: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read document from URL: %w", err)
	}
	return data, nil
}
