package console

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Terminal color codes
const (
	Reset   = "\033[0m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
)

// ColorSupported reports whether f is an interactive terminal
func ColorSupported(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Prompt returns the prompt string for the given context
func Prompt(text string, colored bool) string {
	if !colored {
		return text + " > "
	}
	return Yellow + text + " > " + Reset
}

func paint(colored bool, color, s string) string {
	if !colored {
		return s
	}
	return color + s + Reset
}

// renderBoard writes an ASCII board produced by board.ToASCII, coloring
// white pieces blue, black pieces red and coordinates cyan
func renderBoard(w io.Writer, asciiBoard string, colored bool) {
	var sb strings.Builder
	lines := strings.Split(asciiBoard, "\n")

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !colored {
			sb.WriteString(line)
			sb.WriteByte('\n')
			continue
		}

		isFileLine := i == 0 || i == len(lines)-1
		for _, char := range line {
			switch {
			case char >= 'a' && char <= 'h' && isFileLine:
				sb.WriteString(Cyan + string(char) + Reset)
			case char >= 'A' && char <= 'Z':
				sb.WriteString(Blue + string(char) + Reset)
			case char >= 'a' && char <= 'z':
				sb.WriteString(Red + string(char) + Reset)
			case char >= '1' && char <= '8':
				sb.WriteString(Cyan + string(char) + Reset)
			default:
				sb.WriteRune(char)
			}
		}
		sb.WriteByte('\n')
	}

	io.WriteString(w, sb.String())
}

func colorName(c string, colored bool) string {
	switch c {
	case "w":
		return paint(colored, Blue, "White")
	case "b":
		return paint(colored, Red, "Black")
	}
	return "-"
}
