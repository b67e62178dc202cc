// Package digest renders a Markdown summary of the ads a collector has
// stored: totals, ads per registrable domain and the most recent ads.
package digest

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/Rorqualx/adscanner-go/internal/security"
	"github.com/Rorqualx/adscanner-go/internal/store"
)

const (
	// chartSlices is how many domains get their own pie slice.
	chartSlices = 8
	maxCellLen  = 80
	unknownETLD = "(unknown)"
)

// Source is the read side of the ads store.
type Source interface {
	Count(ctx context.Context) (int64, error)
	CountWithScreenshots(ctx context.Context) (int64, error)
	CountByDomain(ctx context.Context) ([]store.DomainCount, error)
	Latest(ctx context.Context, limit int) ([]store.Ad, error)
}

// Summary is the data a digest is rendered from.
type Summary struct {
	Database        string
	GeneratedAt     time.Time
	Total           int64
	WithScreenshots int64
	Domains         []store.DomainCount
	Latest          []store.Ad
}

// Collect reads a Summary from src with up to latest recent ads.
func Collect(ctx context.Context, src Source, latest int) (*Summary, error) {
	total, err := src.Count(ctx)
	if err != nil {
		return nil, err
	}
	shots, err := src.CountWithScreenshots(ctx)
	if err != nil {
		return nil, err
	}
	domains, err := src.CountByDomain(ctx)
	if err != nil {
		return nil, err
	}
	ads, err := src.Latest(ctx, latest)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Total:           total,
		WithScreenshots: shots,
		Domains:         domains,
		Latest:          ads,
	}, nil
}

// Write renders s as Markdown to out.
func Write(out io.Writer, s *Summary) error {
	md := markdown.NewMarkdown(out)

	md.H1("Ad Digest")
	md.PlainText("")
	writeOverview(md, s)

	if s.Total == 0 {
		md.Note("No ads have been collected yet.")
		md.PlainText("")
		return md.Build()
	}

	writeDomains(md, s)
	writeLatest(md, s)

	md.HorizontalRule()
	md.PlainText(fmt.Sprintf("_Generated %s_", s.GeneratedAt.UTC().Format(time.RFC3339)))
	return md.Build()
}

func writeOverview(md *markdown.Markdown, s *Summary) {
	rows := [][]string{
		{"Ads collected", strconv.FormatInt(s.Total, 10)},
		{"With screenshot", fmt.Sprintf("%d (%s)", s.WithScreenshots, percent(s.WithScreenshots, s.Total))},
		{"Distinct domains", strconv.Itoa(len(s.Domains))},
	}
	if s.Database != "" {
		rows = append([][]string{{"Database", "`" + s.Database + "`"}}, rows...)
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if s.Total > 0 && s.WithScreenshots == 0 {
		md.Warningf("None of the %d ads has a screenshot. Check that scanners run with a visible viewport.", s.Total)
		md.PlainText("")
	}
}

func writeDomains(md *markdown.Markdown, s *Summary) {
	md.H2("Ads by Domain")
	md.PlainText("")

	rows := make([][]string, 0, len(s.Domains))
	for _, d := range s.Domains {
		rows = append(rows, []string{
			cell(domainLabel(d.ETLD)),
			strconv.FormatInt(d.Count, 10),
			percent(d.Count, s.Total),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Domain", "Ads", "Share"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(s.Domains) > 1 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Ads by Domain"),
			piechart.WithShowData(true),
		)
		var rest int64
		for i, d := range s.Domains {
			if i < chartSlices {
				chart.LabelAndIntValue(domainLabel(d.ETLD), uint64(d.Count))
			} else {
				rest += d.Count
			}
		}
		if rest > 0 {
			chart.LabelAndIntValue("other", uint64(rest))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}
}

func writeLatest(md *markdown.Markdown, s *Summary) {
	md.H2("Latest Ads")
	md.PlainText("")

	rows := make([][]string, 0, len(s.Latest))
	for _, ad := range s.Latest {
		shot := "no"
		if ad.ScreenshotPath != "" {
			shot = "yes"
		}
		seen := ""
		if !ad.CreatedAt.IsZero() {
			seen = ad.CreatedAt.UTC().Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{
			strconv.FormatInt(ad.ID, 10),
			cell(ad.AdID),
			cell(domainLabel(ad.ETLD)),
			cell(security.RedactURL(ad.HTTPRequest)),
			cell(security.RedactURL(ad.Context)),
			shot,
			seen,
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Ad ID", "Domain", "Ad URL", "Page", "Screenshot", "Seen (UTC)"},
		Rows:   rows,
	})
	md.PlainText("")
}

func domainLabel(etld string) string {
	if etld == "" {
		return unknownETLD
	}
	return etld
}

func percent(n, total int64) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}

// cell makes s safe for a table cell: one line, no bare pipes, bounded.
func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxCellLen {
		s = s[:maxCellLen-3] + "..."
	}
	return strings.ReplaceAll(s, "|", `\|`)
}
