package diag

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"koan/internal/source"
)

var (
	errColor  = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	infoColor = color.New(color.FgCyan)
)

// Renderer writes diagnostics as "file:line:col: SEVERITY[CODE]: message"
// lines. Colors follow the package-global color.NoColor switch, which the
// CLI resolves from --color and terminal detection.
type Renderer struct {
	Files *source.FileSet
}

// Render writes every diagnostic in the bag, sorted, followed by a summary
// line when anything was reported.
func (r *Renderer) Render(w io.Writer, bag *Bag) {
	if w == nil || bag == nil || bag.Len() == 0 {
		return
	}
	bag.Sort()
	errs, warns := 0, 0
	for _, d := range bag.Items() {
		r.renderOne(w, d)
		switch {
		case d.Severity >= SevError:
			errs++
		case d.Severity == SevWarning:
			warns++
		}
	}
	if errs > 0 || warns > 0 {
		fmt.Fprintf(w, "%d error(s), %d warning(s)\n", errs, warns)
	}
}

func (r *Renderer) renderOne(w io.Writer, d Diagnostic) {
	loc := r.location(d.Primary)
	sev := severityColor(d.Severity).Sprint(d.Severity.String())
	fmt.Fprintf(w, "%s: %s[%s]: %s\n", loc, sev, d.Code, d.Message)
	for _, n := range d.Notes {
		fmt.Fprintf(w, "  note: %s: %s\n", r.location(n.Span), n.Msg)
	}
}

func (r *Renderer) location(sp source.Span) string {
	if r == nil || r.Files == nil {
		return sp.String()
	}
	return r.Files.Position(sp).String()
}

func severityColor(s Severity) *color.Color {
	switch s {
	case SevError:
		return errColor
	case SevWarning:
		return warnColor
	default:
		return infoColor
	}
}
