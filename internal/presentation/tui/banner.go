package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the Tapestry banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{" _____                     _              ", "#2dd4bf"},
		{"|_   _|_ _ _ __   ___  ___| |_ _ __ _   _ ", "#22d3ee"},
		{"  | |/ _` | '_ \\ / _ \\/ __| __| '__| | | |", "#38bdf8"},
		{"  | | (_| | |_) |  __/\\__ \\ |_| |  | |_| |", "#60a5fa"},
		{"  |_|\\__,_| .__/ \\___||___/\\__|_|   \\__, |", "#818cf8"},
		{"          |_|                       |___/ ", "#a78bfa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  workflow edit history "+version).Faint())
	fmt.Fprintln(w)
}
