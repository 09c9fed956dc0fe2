package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/perfguard/internal/guard"
)

// pageTitle turns "summer-menu.html" into "Summer Menu".
func pageTitle(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	return cases.Title(language.English).String(stem)
}

func writeTraceText(w io.Writer, page string, report guard.Report) {
	fmt.Fprintf(w, "Mutation trace: %s\n", pageTitle(page))
	fmt.Fprintf(w, "Session %s\n", report.SessionID)
	fmt.Fprintln(w, reportSummary(report))

	for _, g := range report.Groups {
		fmt.Fprintf(w, "\n%s (%d calls, %d blocked)\n", g.Origin, len(g.Records), g.Blocked)
		for _, r := range g.Records {
			status := "allowed"
			if r.Blocked {
				status = "BLOCKED"
			} else if r.Trusted {
				status = "trusted"
			}
			fmt.Fprintf(w, "  %-8s %-16s %s in %s", status, r.Method, r.TargetTag, r.Zone)
			if r.Property != "" {
				fmt.Fprintf(w, " %s=%q", r.Property, r.Value)
			}
			fmt.Fprintln(w)
		}
	}
}

// traceReportHTML renders a self-contained HTML page for a guard report.
func traceReportHTML(page string, report guard.Report) templ.Component {
	return traceReport(pageTitle(page), report)
}

func reportSummary(report guard.Report) string {
	s := fmt.Sprintf("%d modifications, %d blocked", report.Total, report.Blocked)
	if report.Dropped > 0 {
		s += fmt.Sprintf(", %d dropped", report.Dropped)
	}
	return s
}

func groupSummary(g guard.Group) string {
	return fmt.Sprintf("%d calls, %d blocked", len(g.Records), g.Blocked)
}
