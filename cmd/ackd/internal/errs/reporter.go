package errs

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Reporter dispatches errors by tier: recoverable errors are logged and
// swallowed, fatal errors produce an operator diagnostic.
type Reporter struct {
	log   *slog.Logger
	diag  io.Writer
	color bool
	name  string
}

// NewReporter returns a Reporter logging recoverable errors to log and
// writing fatal diagnostics to diag. Diagnostics are colored when diag is
// a terminal.
func NewReporter(name string, log *slog.Logger, diag io.Writer) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{
		log:   log,
		diag:  diag,
		color: isTerminal(diag),
		name:  name,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Report handles err according to its tier and returns true if the error
// is fatal. Callers decide how to terminate.
func (r *Reporter) Report(err error) bool {
	if err == nil {
		return false
	}
	if IsFatal(err) {
		r.Diagnose(err)
		return true
	}
	r.Recoverable(err)
	return false
}

// Recoverable logs err with its classification.
func (r *Reporter) Recoverable(err error) {
	args := []any{"error", err}
	var e *Error
	if errors.As(err, &e) {
		args = append(args, "kind", e.Kind.String(), "op", e.Op)
		if e.Conn != "" {
			args = append(args, "conn", e.Conn)
		}
		if e.Err != nil {
			args[1] = e.Err
		}
	}
	r.log.Error("Recoverable error", args...)
}

// Diagnose writes a one-line diagnostic for err to the error stream.
func (r *Reporter) Diagnose(err error) {
	if r.diag == nil {
		return
	}
	label := "error"
	if kind, ok := KindOf(err); ok {
		label = kind.String() + " error"
	}
	c := color.New(color.FgRed, color.Bold)
	if r.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	fmt.Fprintf(r.diag, "%s: %s %v\n", r.name, c.Sprint(label+":"), err)
}
