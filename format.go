package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
)

// statusf prints a status message to stderr unless --quiet is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// formatSize renders a byte count in IEC units ("1.5 MiB"). Negative counts
// mean unknown and render as "-".
func formatSize(n int64) string {
	if n < 0 {
		return "-"
	}

	return humanize.IBytes(uint64(n))
}

// formatTime returns a compact timestamp, or "-" when the backend reported
// none.
func formatTime(t time.Time) string {
	return formatTimeAt(t, time.Now())
}

// formatTimeAt drops the year for timestamps in now's year and the clock
// otherwise, like ls -l.
func formatTimeAt(t, now time.Time) string {
	switch {
	case t.IsZero():
		return "-"
	case t.Year() == now.Year():
		return t.Format("Jan _2 15:04")
	default:
		return t.Format("Jan _2  2006")
	}
}

// printTable writes headers and rows as columns separated by two spaces.
func printTable(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}
