// Package diag formats the pass's diagnostics the way the teacher's
// internal/errors package formats compiler diagnostics: a bold level
// tag, a "-->" location line, colored notes and help text. There is no
// source text to quote here — the pass operates on an in-memory IR
// module, not tokens from a file — so the location line names a
// function/block/instruction instead of a line:column.
package diag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	pkgerrors "github.com/pkg/errors"
)

// Level is the severity of a diagnostic.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelNote    Level = "note"
)

// Location pins a diagnostic to a point in the IR.
type Location struct {
	Function string
	Block    string
	InstID   int
}

func (l Location) String() string {
	if l.Function == "" {
		return "<module>"
	}
	if l.Block == "" {
		return "@" + l.Function
	}
	return fmt.Sprintf("@%s/%s#%d", l.Function, l.Block, l.InstID)
}

// CompilerError is a structured diagnostic, analogous to the teacher's
// CompilerError but anchored to IR coordinates instead of source spans.
type CompilerError struct {
	Level    Level
	Code     string
	Message  string
	Location Location
	Notes    []string
	HelpText string
	// Cause carries a stack trace captured at construction time so the
	// CLI can print it in verbose mode (spec.md §7 aborts are fatal:
	// the stack shows which pass produced the abort).
	Cause error
}

func (e *CompilerError) Error() string {
	return fmt.Sprintf("%s[%s]: %s (%s)", e.Level, e.Code, e.Message, e.Location)
}

func (e *CompilerError) Unwrap() error { return e.Cause }

// Abort builds a fatal CompilerError and captures a stack trace via
// pkg/errors.WithStack, promoting the teacher's indirect pkg/errors
// dependency (pulled in transitively through testify) to a direct,
// exercised one.
func Abort(code, message string, loc Location) *CompilerError {
	return &CompilerError{
		Level:    LevelError,
		Code:     code,
		Message:  message,
		Location: loc,
		Cause:    pkgerrors.WithStack(errors.New(message)),
	}
}

// Warn builds a non-fatal diagnostic (permissive-mode downgrade of an
// abort, spec.md §6 --allow-unsafe-exceptions).
func Warn(code, message string, loc Location) *CompilerError {
	return &CompilerError{Level: LevelWarning, Code: code, Message: message, Location: loc}
}

// Reporter renders CompilerErrors for a terminal.
type Reporter struct {
	// Verbose, when true, prints the captured stack trace under the
	// diagnostic (driven by the CLI's -v flag).
	Verbose bool
}

// Format renders err the way the teacher's ErrorReporter renders a
// CompilerError: "level[code]: message", then a "-->" location line,
// then notes and help text.
func (r *Reporter) Format(err *CompilerError) string {
	var sb strings.Builder

	levelColor := levelColor(err.Level)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	if err.Code != "" {
		sb.WriteString(fmt.Sprintf("%s[%s]: %s\n", levelColor(string(err.Level)), err.Code, bold(err.Message)))
	} else {
		sb.WriteString(fmt.Sprintf("%s: %s\n", levelColor(string(err.Level)), bold(err.Message)))
	}
	sb.WriteString(fmt.Sprintf("  %s %s\n", dim("-->"), err.Location))

	for _, note := range err.Notes {
		noteColor := color.New(color.FgBlue).SprintFunc()
		sb.WriteString(fmt.Sprintf("  %s %s %s\n", dim("|"), noteColor("note:"), note))
	}
	if err.HelpText != "" {
		helpColor := color.New(color.FgGreen).SprintFunc()
		sb.WriteString(fmt.Sprintf("  %s %s %s\n", dim("|"), helpColor("help:"), err.HelpText))
	}
	if r.Verbose && err.Cause != nil {
		sb.WriteString(fmt.Sprintf("  %s %+v\n", dim("|"), err.Cause))
	}
	return sb.String()
}

func levelColor(l Level) func(a ...interface{}) string {
	switch l {
	case LevelError:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case LevelWarning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case LevelNote:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}
