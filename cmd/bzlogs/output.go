package main

import "os"

const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
)

var noColor = os.Getenv("NO_COLOR") != ""

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}
