package sequence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Issue is one line-numbered validation finding.
type Issue struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("Line %d: %s", i.Line, i.Message)
}

// Result collects the findings of one validation run. Errors block
// persistence, warnings never do.
type Result struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Valid reports whether the script may be persisted.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Result) errorf(line int, format string, args ...interface{}) {
	r.Errors = append(r.Errors, Issue{Line: line, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) warnf(line int, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, Issue{Line: line, Message: fmt.Sprintf(format, args...)})
}

// callShape matches a single top-level call: identifier, parens, flat
// argument list. Validation never recurses into nested constructs.
var callShape = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*\(([^)]*)\)$`)

// Validate checks script text line by line. It is pure: identical text
// always yields identical findings.
func Validate(text string) Result {
	_, result := Compile(text)
	return result
}

// Compile validates and translates script text into a command list. On any
// error the command list is nil; warnings alone do not block compilation.
func Compile(text string) ([]Command, Result) {
	var result Result
	var commands []Command

	for n, raw := range strings.Split(strings.TrimSpace(text), "\n") {
		lineNo := n + 1
		line := stripComment(raw)
		if line == "" {
			continue
		}

		m := callShape.FindStringSubmatch(line)
		if m == nil {
			result.errorf(lineNo, "Invalid function call: %s", line)
			continue
		}
		name := line[:strings.IndexByte(line, '(')]
		args, err := splitArgs(m[1])
		if err != nil {
			result.errorf(lineNo, "Invalid function call: %s", line)
			continue
		}

		switch name {
		case "write_dmx":
			if cmd, ok := parseWriteDMX(args, lineNo, &result); ok {
				commands = append(commands, cmd)
			}
		case "sleep":
			if cmd, ok := parseSleep(args, lineNo, &result); ok {
				commands = append(commands, cmd)
			}
		case "play_sound":
			if cmd, ok := parsePlaySound(args, lineNo, &result); ok {
				commands = append(commands, cmd)
			}
		case "wait_for_sound":
			if len(args) != 0 {
				result.errorf(lineNo, "wait_for_sound() takes no arguments")
				continue
			}
			commands = append(commands, Command{Op: OpWaitForSound})
		case "stop_sound":
			if len(args) != 0 {
				result.errorf(lineNo, "stop_sound() takes no arguments")
				continue
			}
			commands = append(commands, Command{Op: OpStopSound})
		default:
			// Well-formed but unrecognized: preserved in the source, skipped
			// by the compiler.
			result.warnf(lineNo, "Unknown function: %s", line)
		}
	}

	if !result.Valid() {
		return nil, result
	}
	return commands, result
}

func parseWriteDMX(args []string, line int, r *Result) (Command, bool) {
	if len(args) != 2 {
		r.errorf(line, "write_dmx() requires exactly 2 arguments (address, value)")
		return Command{}, false
	}
	address, err := parseInt(args[0])
	if err != nil {
		r.errorf(line, "write_dmx() address must be an integer literal")
		return Command{}, false
	}
	value, err := parseInt(args[1])
	if err != nil {
		r.errorf(line, "write_dmx() value must be an integer literal")
		return Command{}, false
	}
	ok := true
	if address < 1 || address > 512 {
		r.errorf(line, "DMX address must be between 1 and 512")
		ok = false
	}
	if value < 0 || value > 255 {
		r.errorf(line, "DMX value must be between 0 and 255")
		ok = false
	}
	if !ok {
		return Command{}, false
	}
	return Command{Op: OpWriteDMX, Address: address, Value: value}, true
}

func parseSleep(args []string, line int, r *Result) (Command, bool) {
	if len(args) != 1 {
		r.errorf(line, "sleep() requires exactly 1 argument (seconds)")
		return Command{}, false
	}
	seconds, err := parseFloat(args[0])
	if err != nil {
		r.errorf(line, "sleep() duration must be a number")
		return Command{}, false
	}
	if seconds < 0 {
		r.errorf(line, "Sleep time cannot be negative")
		return Command{}, false
	}
	if seconds > 3600 {
		r.warnf(line, "Sleep time is very long (%gs)", seconds)
	}
	return Command{Op: OpSleep, Seconds: seconds}, true
}

func parsePlaySound(args []string, line int, r *Result) (Command, bool) {
	if len(args) < 1 || len(args) > 2 {
		r.errorf(line, "play_sound() requires 1-2 arguments (file, volume)")
		return Command{}, false
	}
	file, err := parseString(args[0])
	if err != nil {
		r.errorf(line, "Sound filename must be a string")
		return Command{}, false
	}
	volume := 1.0
	if len(args) == 2 {
		volume, err = parseFloat(args[1])
		if err != nil || volume < 0.0 || volume > 1.0 {
			r.errorf(line, "Volume must be between 0.0 and 1.0")
			return Command{}, false
		}
	}
	return Command{Op: OpPlaySound, File: file, Volume: volume}, true
}

// stripComment removes a trailing # comment (respecting string literals)
// and surrounding whitespace. Returns "" for blank and comment-only lines.
func stripComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '#':
			return strings.TrimSpace(line[:i])
		}
	}
	return strings.TrimSpace(line)
}

// splitArgs splits a flat argument list on commas outside string literals.
func splitArgs(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var args []string
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ',':
			args = append(args, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated string literal")
	}
	args = append(args, strings.TrimSpace(s[start:]))
	for _, a := range args {
		if a == "" {
			return nil, fmt.Errorf("empty argument")
		}
	}
	return args, nil
}

func parseInt(tok string) (int, error) {
	v, err := strconv.ParseInt(tok, 10, 64)
	return int(v), err
}

func parseFloat(tok string) (float64, error) {
	return strconv.ParseFloat(tok, 64)
}

func parseString(tok string) (string, error) {
	if len(tok) >= 2 {
		if (tok[0] == '\'' && tok[len(tok)-1] == '\'') || (tok[0] == '"' && tok[len(tok)-1] == '"') {
			return tok[1 : len(tok)-1], nil
		}
	}
	return "", fmt.Errorf("not a string literal: %s", tok)
}
