package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	defaultServerURL = "http://localhost:12212"
)

func main() {
	var serverURL string
	var dryRun, quiet bool
	flag.StringVar(&serverURL, "server", defaultServerURL, "Server URL")
	flag.StringVar(&serverURL, "s", defaultServerURL, "Server URL (short)")
	flag.BoolVar(&dryRun, "dry-run", false, "Print the directives instead of printing")
	flag.BoolVar(&quiet, "q", false, "No spinner")
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}

	req := buildRequest(serverURL, flag.Args(), dryRun)

	var result *CommandResult
	if quiet || !isTerminal(os.Stderr) {
		result = req.do(context.Background())
	} else {
		result = runWithSpinner(req)
	}

	if result.Success {
		printSuccess(result)
		os.Exit(0)
	}
	printError(result)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Ticket Print CLI

Usage:
  ticketprint-cli [flags] <command>

Flags:
  -s, -server <url>    Server URL (default: %s)
  -dry-run             Show printer directives instead of printing
  -q                   Do not show a spinner

Commands:
  permission request
    Ask for access to the vendor printer (waits for the operator)

  permission check
  permission answer <device> <allow|deny>

  connect | disconnect | status

  print test [order-id]
  print tickets <file>
  print receipt <file>
  print void <file>
  print barcode <value> [caption]
    Local files are uploaded; URLs are fetched by the server

  device list
  device rename <id> <name>

  job list | job status <id> | job clear

Examples:
  ticketprint-cli permission request
  ticketprint-cli connect
  ticketprint-cli print tickets ./tickets.json
  ticketprint-cli -dry-run print receipt ./receipt.json
  ticketprint-cli -s http://localhost:8080 device list

`, defaultServerURL)
}

// CommandResult is the reply of the command endpoint
type CommandResult struct {
	Success    bool                   `json:"success"`
	Message    string                 `json:"message,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Code       string                 `json:"code,omitempty"`
	Error      string                 `json:"error,omitempty"`
	JobID      string                 `json:"job_id,omitempty"`
	Directives []json.RawMessage      `json:"directives,omitempty"`
}

type request struct {
	label string
	url   string
	body  []byte
}

// buildRequest sends document prints with a local file straight to the
// print endpoint; everything else goes through the command endpoint
func buildRequest(serverURL string, args []string, dryRun bool) request {
	base := strings.TrimSuffix(serverURL, "/")
	line := strings.Join(args, " ")

	if len(args) >= 3 && args[0] == "print" {
		switch args[1] {
		case "tickets", "receipt", "void":
			if data, err := os.ReadFile(args[2]); err == nil {
				url := base + "/print/" + args[1]
				if dryRun {
					url += "?dry_run=true"
				}
				return request{label: line, url: url, body: data}
			}
		}
	}

	body, _ := json.Marshal(map[string]string{"command": line})
	return request{label: line, url: base + "/command", body: body}
}

func (r request) do(ctx context.Context) *CommandResult {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(r.body))
	if err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to connect to server: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to read response: %v", err)}
	}

	var result CommandResult
	if err := json.Unmarshal(body, &result); err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to parse response (HTTP %d): %v", resp.StatusCode, err)}
	}
	return &result
}

type resultMsg struct{ result *CommandResult }

// spinnerModel shows a spinner until the server answers
type spinnerModel struct {
	spinner spinner.Model
	req     request
	ctx     context.Context
	cancel  context.CancelFunc
	result  *CommandResult
	started time.Time
}

func newSpinnerModel(req request) spinnerModel {
	ctx, cancel := context.WithCancel(context.Background())
	return spinnerModel{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(SpinnerStyle)),
		req:     req,
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now(),
	}
}

func (m spinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		return resultMsg{result: m.req.do(m.ctx)}
	})
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case resultMsg:
		m.result = msg.result
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancel()
			m.result = &CommandResult{Error: "cancelled"}
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	if m.result != nil {
		return ""
	}
	hint := ""
	if strings.HasPrefix(m.req.label, "permission request") {
		hint = MutedStyle.Render("  waiting for the operator to answer")
	}
	elapsed := time.Since(m.started).Truncate(time.Second)
	return fmt.Sprintf("%s %s %s%s\n", m.spinner.View(), m.req.label, MutedStyle.Render(elapsed.String()), hint)
}

func runWithSpinner(req request) *CommandResult {
	model := newSpinnerModel(req)
	defer model.cancel()

	final, err := tea.NewProgram(model, tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		return &CommandResult{Error: fmt.Sprintf("terminal error: %v", err)}
	}
	if m, ok := final.(spinnerModel); ok && m.result != nil {
		return m.result
	}
	return &CommandResult{Error: "no response"}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func printSuccess(result *CommandResult) {
	if result.Message != "" {
		fmt.Println(SuccessStyle.Render("✓ ") + result.Message)
	}
	if result.JobID != "" {
		fmt.Printf("%s %s\n", KeyStyle.Render("Job ID:"), result.JobID)
	}
	if len(result.Directives) > 0 {
		fmt.Println(HeaderStyle.Render("Directives:"))
		for _, d := range result.Directives {
			fmt.Printf("  %s\n", string(d))
		}
	}

	if result.Data == nil {
		return
	}

	if devices, ok := result.Data["devices"].([]interface{}); ok {
		fmt.Println(HeaderStyle.Render("\nDevices:"))
		for _, d := range devices {
			if dev, ok := d.(map[string]interface{}); ok {
				name := fmt.Sprint(dev["alias"])
				if name == "" || name == "<nil>" {
					name = fmt.Sprint(dev["description"])
				}
				fmt.Printf("  %s  %s:%s  %-28s %s\n",
					KeyStyle.Render(fmt.Sprint(dev["id"])),
					dev["vendor_id"], dev["product_id"],
					Truncate(name, 28), MutedStyle.Render(fmt.Sprint(dev["state"])))
			}
		}
	}

	if jobs, ok := result.Data["jobs"].([]interface{}); ok {
		fmt.Println(HeaderStyle.Render("\nJobs:"))
		for _, j := range jobs {
			if job, ok := j.(map[string]interface{}); ok {
				fmt.Printf("  %s  %-8s %-10s %s\n",
					KeyStyle.Render(fmt.Sprint(job["id"])), job["kind"], job["status"],
					MutedStyle.Render(Truncate(fmt.Sprint(job["target"]), 30)))
			}
		}
	}

	// everything else as key: value
	keys := make([]string, 0, len(result.Data))
	for k := range result.Data {
		if k != "devices" && k != "jobs" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s %v\n", KeyStyle.Render(k+":"), result.Data[k])
	}
}

func printError(result *CommandResult) {
	msg := result.Error
	if msg == "" {
		msg = result.Message
	}
	if result.Code != "" {
		msg = fmt.Sprintf("%s %s", msg, MutedStyle.Render("("+result.Code+")"))
	}
	fmt.Fprintln(os.Stderr, ErrorStyle.Render("✗ Error: ")+msg)
}
