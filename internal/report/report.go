// Package report renders batch results as grouped plain text for the
// terminal and for the serve-mode text endpoint.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/packtrack/internal/dispatch"
	"github.com/noah-isme/packtrack/internal/tracker"
)

// Render groups a batch into Delivered, In transit and Failed sections, in
// that order. Within a section results keep their input order. Empty
// sections are left out entirely; an empty batch renders as an empty
// string.
func Render(results []dispatch.Result) string {
	var delivered, inTransit, failed []dispatch.Result
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed = append(failed, r)
		case r.Package.Status() == tracker.StatusDelivered:
			delivered = append(delivered, r)
		default:
			inTransit = append(inTransit, r)
		}
	}

	var b strings.Builder
	writePackages(&b, "Delivered", delivered)
	writePackages(&b, "In transit", inTransit)
	writeFailures(&b, failed)
	return b.String()
}

func writeHeading(b *strings.Builder, title string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", len(title)))
	b.WriteString("\n")
}

func writePackages(b *strings.Builder, title string, results []dispatch.Result) {
	if len(results) == 0 {
		return
	}
	writeHeading(b, title)
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		writePackage(b, r.Package)
	}
}

func writePackage(b *strings.Builder, p *tracker.Package) {
	fmt.Fprintf(b, "[%s] %s\n", p.Channel, p.Barcode)
	if p.Sender != nil {
		fmt.Fprintf(b, "  from: %s\n", *p.Sender)
	}
	if p.Recipient != nil {
		fmt.Fprintf(b, "  to: %s\n", *p.Recipient)
	}
	if p.Eta != nil {
		fmt.Fprintf(b, "  ETA: %s\n", stamp(*p.Eta))
	}
	if p.EtaWindow != nil {
		fmt.Fprintf(b, "  ETA window: %s .. %s\n", stamp(p.EtaWindow.Start), stamp(p.EtaWindow.End))
	}
	if p.Delivered != nil {
		fmt.Fprintf(b, "  delivered: %s\n", stamp(*p.Delivered))
	}
	for _, ev := range p.Events {
		fmt.Fprintf(b, "  %s  %s\n", stamp(ev.Timestamp), ev.Text)
	}
}

func writeFailures(b *strings.Builder, results []dispatch.Result) {
	if len(results) == 0 {
		return
	}
	writeHeading(b, "Failed")
	for _, r := range results {
		fmt.Fprintf(b, "%s: %v\n", r.URL, r.Err)
	}
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
