package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// progressInterval throttles redraws of the progress line.
const progressInterval = 200 * time.Millisecond

// progress renders a single self-overwriting status line for a download.
// It is a no-op unless stderr is a terminal and --quiet is not set.
type progress struct {
	w       io.Writer
	name    string
	enabled bool
	drawn   bool
	last    time.Time
	now     func() time.Time
}

func newProgress(name string) *progress {
	return &progress{
		w:       os.Stderr,
		name:    name,
		enabled: !flagQuiet && isatty.IsTerminal(os.Stderr.Fd()),
		now:     time.Now,
	}
}

// update matches retriever.ChunkFunc.
func (p *progress) update(_ []byte, retrieved, total int64) error {
	if !p.enabled {
		return nil
	}

	now := p.now()
	if p.drawn && now.Sub(p.last) < progressInterval && retrieved != total {
		return nil
	}

	p.last = now
	p.drawn = true

	fmt.Fprintf(p.w, "\r%s", progressLine(p.name, retrieved, total))

	return nil
}

// finish terminates the progress line.
func (p *progress) finish() {
	if p.enabled && p.drawn {
		fmt.Fprintln(p.w)
	}
}

// progressLine formats "name  1.5 MB / 3.0 MB (50%)", or without a total
// when the size is unknown.
func progressLine(name string, retrieved, total int64) string {
	if total <= 0 {
		return fmt.Sprintf("%s  %s", name, formatSize(retrieved))
	}

	return fmt.Sprintf("%s  %s / %s (%d%%)", name, formatSize(retrieved), formatSize(total), retrieved*100/total)
}
