package weaver

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Sink receives generated source and load errors for display by the host.
// Delivery is strictly best effort: a sink that returns an error gets the
// error logged and nothing more — display problems must never change the
// outcome of a weave request.
type Sink interface {
	ShowSource(filename, source string) error
	ShowError(unit string, err error) error
}

// NopSink discards everything. The engine default.
type NopSink struct{}

func (NopSink) ShowSource(string, string) error { return nil }
func (NopSink) ShowError(string, error) error   { return nil }

// ConsoleSink prints generated source and errors to a writer, with ANSI
// color when the writer is a terminal.
type ConsoleSink struct {
	Out io.Writer
}

const (
	ansiDim = "\033[2m"
	ansiRed = "\033[31m"
	ansiOff = "\033[0m"
)

func (s ConsoleSink) writer() io.Writer {
	if s.Out == nil {
		return os.Stdout
	}
	return s.Out
}

func (s ConsoleSink) color() bool {
	f, ok := s.writer().(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func (s ConsoleSink) ShowSource(filename, source string) error {
	w := s.writer()
	if s.color() {
		_, err := fmt.Fprintf(w, "%s// %s%s\n%s\n", ansiDim, filename, ansiOff, source)
		return err
	}
	_, err := fmt.Fprintf(w, "// %s\n%s\n", filename, source)
	return err
}

func (s ConsoleSink) ShowError(unit string, err error) error {
	w := s.writer()
	if s.color() {
		_, werr := fmt.Fprintf(w, "%sweave %s: %v%s\n", ansiRed, unit, err, ansiOff)
		return werr
	}
	_, werr := fmt.Fprintf(w, "weave %s: %v\n", unit, err)
	return werr
}
