package banner

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const logo = `
======================================================================
  ___        _      _ _       _
 / _ \ _   _| |_ __| (_) __ _| |
| | | | | | | __/ _` + "`" + ` | |/ _` + "`" + ` | |
| |_| | |_| | || (_| | | (_| | |
 \___/ \__,_|\__\__,_|_|\__,_|_|
----------------------------------------------------------------------`

const footer = `======================================================================`

// ConfigLine represents a single configuration line to display
type ConfigLine struct {
	Label string
	Value string
}

// Print displays the startup banner on stdout
func Print(serviceName string, config []ConfigLine) {
	Fprint(os.Stdout, serviceName, config)
}

// Fprint writes the startup banner with the service name and configuration to w.
// Empty values are shown as "(disabled)".
func Fprint(w io.Writer, serviceName string, config []ConfigLine) {
	fmt.Fprintln(w, logo)
	fmt.Fprintf(w, "%s\n", serviceName)

	maxLen := 0
	for _, c := range config {
		if len(c.Label) > maxLen {
			maxLen = len(c.Label)
		}
	}

	for _, c := range config {
		value := c.Value
		if value == "" {
			value = "(disabled)"
		}
		padding := strings.Repeat(" ", maxLen-len(c.Label))
		fmt.Fprintf(w, "  %s%s : %s\n", c.Label, padding, value)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Ready.")
	fmt.Fprintln(w, footer)
	fmt.Fprintln(w)
}
