// Package debug carries zerolog hooks shared by the CLI logger.
package debug

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// callerSkip is the frame depth from the hook invocation back to the
// logging call site.
const callerSkip = 3

// TimeHook stamps events with millisecond precision and no timezone, which
// keeps console output columns aligned.
type TimeHook struct {
	Format string
}

func (h TimeHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	format := h.Format
	if format == "" {
		format = "2006-01-02T15:04:05.0000Z"
	}
	e.Str("time", time.Now().Format(format))
}

// CallerHook annotates events with "pkg:file:line" of the logging call
// site.
type CallerHook struct {
	WithColor bool
}

func (h CallerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	pc, file, line, ok := runtime.Caller(callerSkip)
	if !ok {
		return
	}

	pkg, _ := splitFuncName(runtime.FuncForPC(pc).Name())
	e.Str("caller", FormatCaller(pkg, file, line, h.WithColor))
}

// splitFuncName splits a runtime function name like
// "github.com/walteh/semhl/pkg/lsp.(*Store).RequestTokens" into its package
// path and function parts.
func splitFuncName(name string) (pkg, function string) {
	lastSlash := strings.LastIndexByte(name, '/')
	if lastSlash < 0 {
		lastSlash = 0
	}
	firstDot := strings.IndexByte(name[lastSlash:], '.') + lastSlash

	pkg = name[:firstDot]
	function = name[firstDot+1:]

	if strings.Contains(pkg, ".(") {
		parts := strings.Split(pkg, ".(")
		pkg = parts[0]
		function = "(" + parts[1] + "." + function
	}
	return pkg, function
}

func FormatCaller(pkg, path string, line int, colorize bool) string {
	base := baseName(path)
	if colorize {
		base = color.New(color.Bold).Sprint(base)
		num := color.New(color.FgHiRed, color.Bold).Sprintf("%d", line)
		sep := color.New(color.Faint).Sprint(":")
		return fmt.Sprintf("%s%s%s%s%s", pkg, sep, base, sep, num)
	}
	return fmt.Sprintf("%s:%s:%d", pkg, base, line)
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
