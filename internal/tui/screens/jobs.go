package screens

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/thereceipt/ticketprint/internal/printer"
)

// JobsView shows the job history
type JobsView struct {
	app     *tview.Application
	jobs    *printer.JobLog
	table   *tview.Table
	details *tview.TextView
	layout  *tview.Flex
}

// NewJobsView creates a new jobs view screen
func NewJobsView(app *tview.Application, jobs *printer.JobLog) *JobsView {
	j := &JobsView{
		app:  app,
		jobs: jobs,
	}

	j.setupUI()
	return j
}

func (j *JobsView) setupUI() {
	j.table = tview.NewTable()
	j.table.SetBorder(true)
	j.table.SetTitle("Print Jobs")
	j.table.SetSelectable(true, false)
	j.table.SetSelectedFunc(func(row, column int) {
		j.selectJob(row)
	})

	j.details = tview.NewTextView()
	j.details.SetBorder(true)
	j.details.SetTitle("Job Details")
	j.details.SetDynamicColors(true)

	j.layout = tview.NewFlex().
		AddItem(j.table, 0, 2, true).
		AddItem(j.details, 0, 1, false)

	j.table.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() != tcell.KeyRune {
			return event
		}
		switch event.Rune() {
		case 'r':
			j.Refresh()
			return nil
		case 'c':
			j.jobs.ClearCompleted()
			j.Refresh()
			return nil
		}
		return event
	})

	j.Refresh()
}

// Refresh redraws the job table
func (j *JobsView) Refresh() {
	j.table.Clear()

	for col, title := range []string{"ID", "Kind", "Target", "Status", "Docs", "Age"} {
		j.table.SetCell(0, col, tview.NewTableCell(title).SetAlign(tview.AlignCenter).SetSelectable(false))
	}

	jobs := j.jobs.GetAllJobs()
	for i, job := range jobs {
		row := i + 1
		j.table.SetCell(row, 0, tview.NewTableCell(job.ID))
		j.table.SetCell(row, 1, tview.NewTableCell(job.Kind))
		j.table.SetCell(row, 2, tview.NewTableCell(job.Target))
		j.table.SetCell(row, 3, tview.NewTableCell(JobIcon(job.Status)+" "+job.Status))
		j.table.SetCell(row, 4, tview.NewTableCell(fmt.Sprintf("%d", job.Documents)))
		j.table.SetCell(row, 5, tview.NewTableCell(time.Since(job.CreatedAt).Truncate(time.Second).String()))
	}

	if len(jobs) == 0 {
		j.details.SetText("[yellow]No jobs yet[white]")
	}
}

func (j *JobsView) selectJob(row int) {
	if row == 0 {
		return
	}

	jobs := j.jobs.GetAllJobs()
	if row-1 >= len(jobs) {
		return
	}
	job := jobs[row-1]

	var details strings.Builder
	fmt.Fprintf(&details, "[yellow]Job ID:[white] %s\n", job.ID)
	fmt.Fprintf(&details, "[yellow]Kind:[white] %s\n", job.Kind)
	fmt.Fprintf(&details, "[yellow]Target:[white] %s\n", job.Target)
	fmt.Fprintf(&details, "[yellow]Status:[white] %s %s\n", JobIcon(job.Status), job.Status)
	fmt.Fprintf(&details, "[yellow]Documents:[white] %d\n", job.Documents)
	fmt.Fprintf(&details, "[yellow]Created:[white] %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
	if !job.CompletedAt.IsZero() {
		fmt.Fprintf(&details, "[yellow]Finished:[white] %s\n", job.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if job.Error != "" {
		fmt.Fprintf(&details, "\n[red]Error:[white] %s\n", job.Error)
	}
	details.WriteString("\n[yellow]Press 'r' to refresh, 'c' to clear finished jobs[white]")

	j.details.SetText(details.String())
}

// JobIcon marks the status of a job
func JobIcon(status string) string {
	switch status {
	case printer.JobPrinting:
		return "🟡"
	case printer.JobCompleted:
		return "✅"
	case printer.JobFailed:
		return "❌"
	default:
		return "⚪"
	}
}

// GetRoot returns the root primitive for this screen
func (j *JobsView) GetRoot() tview.Primitive {
	return j.layout
}
