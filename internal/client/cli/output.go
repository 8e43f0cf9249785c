package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// printer writes user-facing output. Colors are used only when w is a
// terminal, so piped output and tests see plain text.
type printer struct {
	w    io.Writer
	ok   *color.Color
	warn *color.Color
	fail *color.Color
	head *color.Color
}

func newPrinter(w io.Writer) *printer {
	p := &printer{
		w:    w,
		ok:   color.New(color.FgGreen),
		warn: color.New(color.FgYellow),
		fail: color.New(color.FgRed, color.Bold),
		head: color.New(color.Bold),
	}
	colored := isTerminal(w)
	for _, c := range []*color.Color{p.ok, p.warn, p.fail, p.head} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *printer) Success(format string, args ...any) {
	p.ok.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) Warn(format string, args ...any) {
	p.warn.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) Error(err error) {
	p.fail.Fprintf(p.w, "error: %v\n", err)
}

func (p *printer) Println(args ...any) {
	fmt.Fprintln(p.w, args...)
}

// Table prints rows aligned in columns under a bold header.
func (p *printer) Table(header []string, rows [][]string) {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, p.head.Sprint(strings.Join(header, "\t")))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	_ = tw.Flush()
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return models.Time(ms).Local().Format(time.DateTime)
}

func tagNames(ids []string, names map[string]string) string {
	if len(ids) == 0 {
		return "-"
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := names[id]; ok {
			out = append(out, n)
		} else {
			out = append(out, id)
		}
	}
	return strings.Join(out, ",")
}
