package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Rorqualx/adscanner-go/internal/scan"
	"github.com/Rorqualx/adscanner-go/internal/security"
	"github.com/Rorqualx/adscanner-go/pkg/version"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	headStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)
)

// printBanner prints the startup banner.
func printBanner(w io.Writer, subtitle string) {
	fmt.Fprintln(w, titleStyle.Render("adscanner")+" "+dimStyle.Render(version.Full()+" · "+subtitle))
}

// scanOutcome is one URL's result for the summary table.
type scanOutcome struct {
	URL    string
	Result *scan.Result
	Err    error
}

// printSummary renders one table row per scanned URL.
func printSummary(w io.Writer, outcomes []scanOutcome) {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		status := okStyle.Render("ok")
		if o.Err != nil {
			status = errStyle.Render(o.Err.Error())
		}
		r := o.Result
		if r == nil {
			r = &scan.Result{}
		}
		rows = append(rows, []string{
			security.RedactURL(o.URL),
			strconv.Itoa(r.Candidates),
			strconv.Itoa(r.Screenshots),
			strconv.Itoa(r.Dispatched),
			strconv.Itoa(r.Failed),
			r.Duration.Round(time.Millisecond).String(),
			status,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("URL", "Ads", "Shots", "Sent", "Failed", "Time", "Status").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.String())
}
