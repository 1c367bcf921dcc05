package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"ai-datalab/internal/dataset"
)

// Renderer turns preview Markdown into the HTML fragments carried by
// preview events. Raw HTML inside the Markdown, e.g. from CSV cells, is
// omitted by goldmark rather than passed through.
type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	return &Renderer{md: goldmark.New(goldmark.WithExtensions(extension.Table))}
}

func (r *Renderer) HTML(markdown string) string {
	var buf bytes.Buffer
	buf.WriteString(`<div class="datalab-preview">`)
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		buf.Reset()
		buf.WriteString(`<div class="datalab-preview"><pre>`)
		buf.WriteString(html.EscapeString(markdown))
		buf.WriteString(`</pre>`)
	}
	buf.WriteString(`</div>`)
	return buf.String()
}

func summaryMarkdown(s dataset.Summary) string {
	var b strings.Builder
	b.WriteString("## Data Summary\n\n")
	fmt.Fprintf(&b, "Rows: %d, Columns: %d\n\n", s.Shape[0], s.Shape[1])
	b.WriteString(jsonBlock(s))
	return b.String()
}

func sampleMarkdown(title string, columns []string, rows []dataset.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", title)
	b.WriteString(table(columns, rows))
	return b.String()
}

func overviewMarkdown(file string, s dataset.Summary, sample []dataset.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Data Analysis: %s\n\n", escapeInline(file))
	fmt.Fprintf(&b, "**Shape:** %d rows × %d columns\n\n", s.Shape[0], s.Shape[1])
	b.WriteString("### Columns:\n\n")
	for _, col := range s.Columns {
		fmt.Fprintf(&b, "- %s (%s)\n", escapeInline(col), s.Dtypes[col])
	}
	b.WriteString("\n### Sample Data:\n\n")
	b.WriteString(table(s.Columns, sample))
	return b.String()
}

func table(columns []string, rows []dataset.Record) string {
	if len(rows) == 0 {
		return "_No rows._\n"
	}
	var b strings.Builder
	b.WriteString("|")
	for _, col := range columns {
		fmt.Fprintf(&b, " %s |", escapeCell(col))
	}
	b.WriteString("\n|")
	for range columns {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString("|")
		for _, col := range columns {
			v := row[col]
			cell := ""
			if v != nil {
				cell = fmt.Sprint(v)
			}
			fmt.Fprintf(&b, " %s |", escapeCell(cell))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func jsonBlock(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf("%+v", v))
	}
	return "```json\n" + string(data) + "\n```\n"
}

var inlineEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "<", `\<`, "#", `\#`,
)

func escapeInline(s string) string {
	return inlineEscaper.Replace(strings.ReplaceAll(s, "\n", " "))
}

func escapeCell(s string) string {
	return strings.ReplaceAll(escapeInline(s), "|", `\|`)
}
