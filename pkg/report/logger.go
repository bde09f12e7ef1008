package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/flowcheck/pkg/engine"
)

// LogLevel represents the console verbosity level
type LogLevel int

const (
	// LogLevelQuiet shows only critical information (errors, warnings, final summary)
	LogLevelQuiet LogLevel = iota
	// LogLevelNormal shows one line per scenario (default)
	LogLevelNormal
	// LogLevelVerbose adds the steps of every scenario
	LogLevelVerbose
	// LogLevelDebug shows all internal details for debugging
	LogLevelDebug
)

// ParseLogLevel converts a verbosity name to a LogLevel
func ParseLogLevel(level string) LogLevel {
	switch level {
	case "quiet":
		return LogLevelQuiet
	case "verbose":
		return LogLevelVerbose
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelNormal
	}
}

// Logger prints run progress for people. Scenarios finish concurrently, so every
// method is safe for concurrent use.
type Logger struct {
	level  LogLevel
	writer io.Writer
	mu     sync.Mutex

	// ANSI color codes
	colorReset     string
	colorCyan      string
	colorSalmon    string
	colorYellow    string
	colorRed       string
	colorGray      string
	colorBoldGreen string
	colorBoldRed   string
	colorBoldWhite string

	stepCount int
}

// NewLogger creates a logger writing to w. Colors are dropped when color is false.
func NewLogger(level LogLevel, w io.Writer, color bool) *Logger {
	l := &Logger{level: level, writer: w}
	if color {
		l.colorReset = "\033[0m"
		l.colorCyan = "\033[36m"
		l.colorSalmon = "\033[38;5;217m" // Salmon pink #FFB3BA
		l.colorYellow = "\033[33m"
		l.colorRed = "\033[31m"
		l.colorGray = "\033[90m"
		l.colorBoldGreen = "\033[1;32m"
		l.colorBoldRed = "\033[1;31m"
		l.colorBoldWhite = "\033[1;37m"
	}
	return l
}

func (l *Logger) printf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.writer, format, args...)
}

// Header prints a prominent header message
func (l *Logger) Header(message string) {
	if l.level >= LogLevelNormal {
		rule := strings.Repeat("=", 70)
		l.printf("\n%s%s%s\n%s  %s%s\n%s%s%s\n",
			l.colorBoldWhite, rule, l.colorReset,
			l.colorBoldWhite, message, l.colorReset,
			l.colorBoldWhite, rule, l.colorReset)
	}
}

// Section prints a section divider
func (l *Logger) Section(title string) {
	if l.level >= LogLevelNormal {
		l.printf("\n%s▶ %s%s\n%s%s%s\n", l.colorCyan, title, l.colorReset, l.colorGray, strings.Repeat("─", 50), l.colorReset)
	}
}

// Step prints a numbered step
func (l *Logger) Step(message string) {
	if l.level >= LogLevelNormal {
		l.mu.Lock()
		l.stepCount++
		fmt.Fprintf(l.writer, "\n%s[%d] %s%s\n", l.colorCyan, l.stepCount, message, l.colorReset)
		l.mu.Unlock()
	}
}

// Successf prints a success message with checkmark
func (l *Logger) Successf(format string, args ...interface{}) {
	if l.level >= LogLevelNormal {
		l.printf("%s✓ %s%s\n", l.colorBoldGreen, fmt.Sprintf(format, args...), l.colorReset)
	}
}

// Infof prints an informational message
func (l *Logger) Infof(format string, args ...interface{}) {
	if l.level >= LogLevelNormal {
		l.printf("%s%s%s\n", l.colorSalmon, fmt.Sprintf(format, args...), l.colorReset)
	}
}

// Warningf prints a warning message
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.printf("%s⚠ Warning: %s%s\n", l.colorYellow, fmt.Sprintf(format, args...), l.colorReset)
}

// Errorf prints an error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.printf("%s✗ Error: %s%s\n", l.colorBoldRed, fmt.Sprintf(format, args...), l.colorReset)
}

// Verbosef prints detailed information (only in verbose mode)
func (l *Logger) Verbosef(format string, args ...interface{}) {
	if l.level >= LogLevelVerbose {
		l.printf("%s→ %s%s\n", l.colorGray, fmt.Sprintf(format, args...), l.colorReset)
	}
}

// ScenarioFinished prints the verdict of one scenario and, in verbose mode, its steps.
func (l *Logger) ScenarioFinished(res *engine.Result) {
	var b strings.Builder
	duration := res.Duration().Round(time.Millisecond)

	switch res.Verdict.Status {
	case engine.StatusPass:
		if l.level < LogLevelNormal {
			return
		}
		fmt.Fprintf(&b, "%s✓ %s%s %s(%s)%s\n", l.colorBoldGreen, res.Scenario, l.colorReset, l.colorGray, duration, l.colorReset)
	case engine.StatusFail:
		fmt.Fprintf(&b, "%s✗ %s: %s%s %s(%s)%s\n", l.colorBoldRed, res.Scenario, res.Verdict.Reason, l.colorReset, l.colorGray, duration, l.colorReset)
	default:
		fmt.Fprintf(&b, "%s⚠ %s: %s%s %s(%s)%s\n", l.colorYellow, res.Scenario, res.Verdict, l.colorReset, l.colorGray, duration, l.colorReset)
	}

	if l.level >= LogLevelVerbose {
		for _, step := range res.Steps {
			marker := "•"
			if step.Alternate {
				marker = "↻"
			}
			fmt.Fprintf(&b, "%s    %s %d. %s (%s)%s\n", l.colorGray, marker, step.Index+1, step.Name, step.Duration.Round(time.Millisecond), l.colorReset)
			if step.Err != nil {
				fmt.Fprintf(&b, "%s      %s%s\n", l.colorRed, step.Err, l.colorReset)
			}
		}
	}
	if res.ReleaseErr != nil && l.level >= LogLevelNormal {
		fmt.Fprintf(&b, "%s    cleanup: %s%s\n", l.colorYellow, res.ReleaseErr, l.colorReset)
	}

	l.printf("%s", b.String())
}

// Summary prints a final run summary
func (l *Logger) Summary(summary *Summary) {
	var b strings.Builder
	rule := strings.Repeat("=", 70)

	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "%s%s%s\n", l.colorBoldWhite, rule, l.colorReset)
	fmt.Fprintf(&b, "%s  RUN SUMMARY%s\n", l.colorBoldWhite, l.colorReset)
	fmt.Fprintf(&b, "%s%s%s\n", l.colorBoldWhite, rule, l.colorReset)

	fmt.Fprint(&b, "  Status: ")
	switch summary.Status {
	case statusPassed:
		fmt.Fprintf(&b, "%s✓ PASSED%s\n", l.colorBoldGreen, l.colorReset)
	case statusFailed:
		fmt.Fprintf(&b, "%s✗ FAILED%s\n", l.colorBoldRed, l.colorReset)
	default:
		fmt.Fprintf(&b, "%s⚠ ERRORED%s\n", l.colorYellow, l.colorReset)
	}
	fmt.Fprintf(&b, "  Duration: %s\n", summary.Duration.Round(time.Millisecond))

	m := summary.Metrics
	fmt.Fprintf(&b, "\n  📊 Metrics:\n")
	fmt.Fprintf(&b, "    Scenarios: %d (%d passed, %d failed, %d errored)\n", m.Scenarios, m.Passed, m.Failed, m.Errored)
	fmt.Fprintf(&b, "    Steps: %d\n", m.Steps)
	if m.AlternatesUsed > 0 {
		fmt.Fprintf(&b, "    Alternates used: %d\n", m.AlternatesUsed)
	}
	if m.ReleaseErrors > 0 {
		fmt.Fprintf(&b, "    Cleanup errors: %d\n", m.ReleaseErrors)
	}

	fmt.Fprintf(&b, "%s%s%s\n\n", l.colorBoldWhite, rule, l.colorReset)
	l.printf("%s", b.String())
}

// Newline adds a blank line (respects log level)
func (l *Logger) Newline() {
	if l.level >= LogLevelNormal {
		l.printf("\n")
	}
}
