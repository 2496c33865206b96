package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/agentx-labs/mcpx/internal/events"
)

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// progressPrinter renders installation events. On a terminal a spinner
// shows the running step; otherwise every event is a plain line.
type progressPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	spin    *spinner.Spinner
	verbose bool
}

func newProgressPrinter(out io.Writer, interactive, verbose bool) *progressPrinter {
	p := &progressPrinter{out: out, verbose: verbose}
	if interactive {
		p.spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
		p.spin.Suffix = " Installing..."
		p.spin.Start()
	}
	return p
}

// Observe is an events.Observer.
func (p *progressPrinter) Observe(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev := e.(type) {
	case events.Progress:
		switch ev.Phase {
		case events.PhaseFailed:
			p.line("%s %s", text.FgRed.Sprint("✗"), ev.CurrentStepDescription)
		default:
			p.line("%s [%d/%d] %s", text.FgGreen.Sprint("✓"), ev.CompletedStepCount, ev.TotalStepCount, ev.CurrentStepDescription)
			if p.spin != nil && ev.Phase == events.PhaseRunning {
				p.spin.Suffix = fmt.Sprintf(" Step %d of %d...", ev.CompletedStepCount+1, ev.TotalStepCount)
			}
		}
	case events.Log:
		switch ev.Level {
		case events.LevelWarn:
			p.line("  %s %s", text.FgYellow.Sprint("!"), ev.Message)
		case events.LevelError:
			p.line("  %s %s", text.FgRed.Sprint("✗"), ev.Message)
		case events.LevelSuccess:
			if p.verbose {
				p.line("  %s", text.FgGreen.Sprint(ev.Message))
			}
		default:
			if p.verbose {
				p.line("  %s", text.Faint.Sprint(ev.Message))
			}
		}
	case events.Failed:
		p.line("%s step %s failed (%s): %s", text.FgRed.Sprint("✗"), ev.StepID, ev.Kind, ev.Message)
	}
}

// line prints one line without tearing the spinner.
func (p *progressPrinter) line(format string, args ...any) {
	if p.spin != nil {
		p.spin.Stop()
		defer p.spin.Start()
	}
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Stop halts the spinner.
func (p *progressPrinter) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spin != nil {
		p.spin.Stop()
		p.spin = nil
	}
}
