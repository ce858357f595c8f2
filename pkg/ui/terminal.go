// Package ui renders crawl progress and results in the terminal.
package ui

import (
	"fmt"
	"io"
	"os"
)

// Banner is printed at the top of interactive commands
const Banner = `
   ┌─┐┬─┐ ┬┬┬  ┬┌─┐┬─┐┌─┐┬ ┬┬
   ├─┘│┌┴┬┘│└┐┌┘│  ├┬┘├─┤││││
   ┴  ┴┴ └─┴ └┘ └─┘┴└─┴ ┴└┴┘┴─┘
`

// Stdout receives everything the Print helpers write
var Stdout io.Writer = os.Stdout

var colorEnabled = os.Getenv("NO_COLOR") == ""

// SetColor turns ANSI colors on or off
func SetColor(enabled bool) {
	colorEnabled = enabled
}

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

func colorize(format string) func(string) string {
	return func(text string) string {
		if !colorEnabled {
			return text
		}
		return fmt.Sprintf(format, text)
	}
}

func PrintBanner() {
	fmt.Fprint(Stdout, Cyan(Banner))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprint(args[0])
	}
	fmt.Fprintln(Stdout, Red(msg))
}

func PrintSuccess(msg string) {
	fmt.Fprintln(Stdout, Green(msg))
}

// PrintInfo prints a label/value pair
func PrintInfo(label string, value string) {
	fmt.Fprintf(Stdout, "%s: %s\n", Cyan(label), Yellow(value))
}

func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprint(args[0])
	}
	fmt.Fprintln(Stdout, Yellow(msg))
}
