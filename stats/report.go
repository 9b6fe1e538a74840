package stats

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/text/message"
)

const reportRule = "==================================================="

// Printer writes human readable report blocks.
type Printer struct {
	mu      sync.Mutex
	w       io.Writer
	info    Info
	printer *message.Printer
}

func NewPrinter(w io.Writer, info Info) *Printer {
	return &Printer{
		w:       w,
		info:    info,
		printer: message.NewPrinter(message.MatchLanguage("en")),
	}
}

// Send writes the report block for s. It implements statssender.Sink.
func (p *Printer) Send(_ context.Context, s Snapshot) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	p.Format(buf, s)

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.w.Write(buf.B)
	return err
}

func (p *Printer) Format(w io.Writer, s Snapshot) {
	state := "running"
	if s.Label == Final {
		state = "finished"
	}
	pr := p.printer
	pr.Fprintf(w, "\n[%s] ========== stress test stats (%s) ==========\n", state, s.Label)
	pr.Fprintf(w, "Target:        %s\n", p.info.Target)
	pr.Fprintf(w, "Workers:       %d\n", p.info.Workers)
	pr.Fprintf(w, "Elapsed:       %ds\n", s.ElapsedSeconds())
	pr.Fprintf(w, "Total:         %d\n", s.Total)
	pr.Fprintf(w, "Succeeded:     %d (%.1f%%)\n", s.Succeeded, s.SuccessPct)
	pr.Fprintf(w, "Failed:        %d (%.1f%%)\n", s.Failed, s.FailurePct)
	pr.Fprintf(w, "Avg latency:   %dms\n", s.AvgLatencyMS)
	pr.Fprintf(w, "QPS:           %.1f\n", s.QPS)
	pr.Fprintf(w, "%s\n", reportRule)
}

// String renders s the way Send would.
func (p *Printer) String(s Snapshot) string {
	var sb strings.Builder
	p.Format(&sb, s)
	return sb.String()
}
