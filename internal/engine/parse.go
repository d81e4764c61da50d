package engine

import (
	"strconv"
	"strings"
)

const mateScore = 100000

type infoLine struct {
	multiPV int
	move    string
	score   int
	depth   int
}

// parseInfo extracts the ranked candidate advertised by an info line.
// Lines without a principal variation are not candidates.
func parseInfo(line string) (infoLine, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "info" {
		return infoLine{}, false
	}

	info := infoLine{multiPV: 1}
	hasScore := false
	for i := 1; i < len(fields)-1; i++ {
		switch fields[i] {
		case "depth":
			info.depth, _ = strconv.Atoi(fields[i+1])
		case "multipv":
			if n, err := strconv.Atoi(fields[i+1]); err == nil && n > 0 {
				info.multiPV = n
			}
		case "score":
			if i+2 >= len(fields) {
				continue
			}
			n, err := strconv.Atoi(fields[i+2])
			if err != nil {
				continue
			}
			switch fields[i+1] {
			case "cp":
				info.score = n
				hasScore = true
			case "mate":
				// Convert mate distance to a centipawn-comparable value
				if n > 0 {
					info.score = mateScore - n
				} else {
					info.score = -mateScore - n
				}
				hasScore = true
			}
		case "pv":
			info.move = fields[i+1]
			i = len(fields)
		}
	}

	if info.move == "" || !hasScore {
		return infoLine{}, false
	}
	return info, true
}

// parseBestMove returns the chosen move of a terminal bestmove line.
// "(none)" is reported as an empty move.
func parseBestMove(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "bestmove" {
		return "", false
	}
	if len(fields) < 2 || fields[1] == "(none)" || fields[1] == "0000" {
		return "", true
	}
	return fields[1], true
}
