// Package report renders compliance results and repair logs as Markdown,
// and Markdown as HTML through goldmark.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/wudi/pdfremedy/compliance"
	"github.com/wudi/pdfremedy/pipeline"
)

// Validation renders a single report as a checklist table followed by the
// reasons of every failed check.
func Validation(name string, r compliance.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: %s\n\n", r.Standard, escape(name))
	fmt.Fprintf(&b, "%d of %d checks pass.\n\n", r.PassCount(), len(r.Checks))
	b.WriteString("| Check | Requirement | Result |\n|---|---|---|\n")
	for _, c := range r.Checks {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", c.ID, escape(c.Requirement), mark(c.Passed))
	}
	for _, c := range r.Failures() {
		fmt.Fprintf(&b, "\n## %s %s\n\n", c.ID, escape(c.Requirement))
		bullets(&b, c.Reasons)
	}
	return b.String()
}

// Comparison renders a before/after table.
func Comparison(c compliance.Comparison) string {
	var b strings.Builder
	verdict := "Rejected"
	if c.Accepted {
		verdict = "Accepted"
	}
	fmt.Fprintf(&b, "**%s**: %d of %d checks pass after repair (%d before).\n\n", verdict, c.AfterPassed, c.Total, c.BeforePassed)
	b.WriteString("| Check | Requirement | Before | After |\n|---|---|---|---|\n")
	for _, e := range c.Entries {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", e.ID, escape(e.Requirement), mark(e.Before), mark(e.After))
	}
	var failed []compliance.ComparisonEntry
	for _, e := range c.Entries {
		if !e.After {
			failed = append(failed, e)
		}
	}
	if len(failed) > 0 {
		b.WriteString("\n## Remaining failures\n")
		for _, e := range failed {
			fmt.Fprintf(&b, "\n### %s %s\n\n", e.ID, escape(e.Requirement))
			bullets(&b, e.AfterReasons)
		}
	}
	return b.String()
}

// Run renders the outcome of a repair run: the comparison and the repair
// log explaining defaulted metadata, unresolved directives and pruned
// elements.
func Run(res *pipeline.Result) string {
	var b strings.Builder
	name := res.Name
	if name == "" {
		name = res.RunID
	}
	fmt.Fprintf(&b, "# Repair of %s\n\n", escape(name))
	fmt.Fprintf(&b, "Run `%s` ended %s.\n\n", res.RunID, res.Status)
	if res.Report != nil {
		b.WriteString(Comparison(*res.Report))
	}

	l := res.Log
	b.WriteString("\n## Repair log\n\n")
	fmt.Fprintf(&b, "- Directives applied: %d\n", len(l.Applied))
	fmt.Fprintf(&b, "- Uncovered drawing operations wrapped: %d\n", l.CoverageGaps)
	fmt.Fprintf(&b, "- Unclaimed regions tagged as paragraphs: %d\n", l.OrphanParagraphs)
	if len(l.Defaulted) > 0 {
		b.WriteString("\n### Defaulted metadata\n\n")
		for _, d := range l.Defaulted {
			fmt.Fprintf(&b, "- %s set to `%s`\n", d.Field, d.Value)
		}
	}
	if len(l.Supplied) > 0 {
		b.WriteString("\n### Supplied metadata\n\n")
		for _, d := range l.Supplied {
			fmt.Fprintf(&b, "- %s set to `%s` (%s)\n", d.Field, d.Value, d.Source)
		}
	}
	if len(l.Unresolved) > 0 {
		b.WriteString("\n### Unresolved directives\n\n")
		for _, o := range l.Unresolved {
			fmt.Fprintf(&b, "- #%d %s at %s: %s\n", o.Index, o.Kind, escape(o.Locator), escape(o.Reason))
		}
	}
	if len(l.Pruned) > 0 {
		b.WriteString("\n### Pruned elements\n\n")
		bullets(&b, l.Pruned)
	}
	if len(l.HeadingFixes) > 0 {
		b.WriteString("\n### Inserted headings\n\n")
		bullets(&b, l.HeadingFixes)
	}
	if len(l.HeadingSkips) > 0 {
		b.WriteString("\n### Heading skips\n\n")
		bullets(&b, l.HeadingSkips)
	}
	if len(l.CrossCheck) > 0 {
		b.WriteString("\n### Second reader findings\n\n")
		bullets(&b, l.CrossCheck)
	}
	return b.String()
}

// HTML converts Markdown produced by this package into a standalone page.
func HTML(title, markdown string) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.Table),
		goldmark.WithRendererOptions(html.WithXHTML()),
	)
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("report: render html: %w", err)
	}
	var out bytes.Buffer
	fmt.Fprintf(&out, "<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\"/>\n<title>%s</title>\n</head>\n<body>\n", htmlEscaper.Replace(title))
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

func mark(ok bool) string {
	if ok {
		return "pass"
	}
	return "FAIL"
}

func bullets(b *strings.Builder, items []string) {
	for _, s := range items {
		fmt.Fprintf(b, "- %s\n", escape(s))
	}
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "|", `\|`, "*", `\*`, "_", `\_`, "`", "\\`",
	"[", `\[`, "]", `\]`, "<", "&lt;", ">", "&gt;", "#", `\#`,
)

// escape keeps document-supplied text from being read as Markdown or raw
// HTML.
func escape(s string) string { return mdEscaper.Replace(s) }

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
