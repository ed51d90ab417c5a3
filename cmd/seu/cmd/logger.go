package cmd

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// cliLogger prints engine messages to stderr. Debug messages, such as the
// per-device initialization lines, only show with --verbose.
type cliLogger struct {
	verbose bool
	out     *log.Logger
}

func newCLILogger(verbose bool) *cliLogger {
	return &cliLogger{verbose: verbose, out: log.New(os.Stderr, "", log.LstdFlags)}
}

func (l *cliLogger) Debug(msg string, kv ...interface{}) {
	if l.verbose {
		l.out.Println(format(msg, kv))
	}
}

func (l *cliLogger) Info(msg string, kv ...interface{}) {
	if l.verbose {
		l.out.Println(format(msg, kv))
	}
}

func (l *cliLogger) Error(msg string, kv ...interface{}) {
	l.out.Println("error: " + format(msg, kv))
}

func format(msg string, kv []interface{}) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			fmt.Fprintf(&sb, " %v=%v", kv[i], kv[i+1])
		} else {
			fmt.Fprintf(&sb, " %v", kv[i])
		}
	}
	return sb.String()
}
