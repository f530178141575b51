// Package pclog provides the colorized logrus formatter used by the
// engine and the demo CLI, adapted from the teacher's own log
// formatter (util/log/logger.go's FancyLogFormatter) but trimmed of
// the syslog plumbing this package has no use for.
package pclog

import (
	"bytes"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var symbolTable = map[logrus.Level]string{
	logrus.DebugLevel: "·",
	logrus.InfoLevel:  "i",
	logrus.WarnLevel:  "!",
	logrus.ErrorLevel: "x",
	logrus.FatalLevel: "F",
	logrus.PanicLevel: "P",
}

var colorTable = map[logrus.Level]func(string, ...interface{}) string{
	logrus.DebugLevel: color.CyanString,
	logrus.InfoLevel:  color.GreenString,
	logrus.WarnLevel:  color.YellowString,
	logrus.ErrorLevel: color.RedString,
	logrus.FatalLevel: color.MagentaString,
	logrus.PanicLevel: color.MagentaString,
}

// Formatter renders log entries with a per-level symbol and color,
// the way a cache engine that logs page faults and eviction pressure
// wants its output to scan quickly.
type Formatter struct {
	UseColors bool
}

// New builds a Formatter, auto-detecting color support the way the
// demo CLI does for its own output (via mattn/go-isatty) rather than
// unconditionally forcing color on.
func New() *Formatter {
	return &Formatter{UseColors: isatty.IsTerminal(os.Stderr.Fd())}
}

func colorByLevel(level logrus.Level, msg string) string {
	fn, ok := colorTable[level]
	if !ok {
		return msg
	}
	return fn(msg)
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	buffer := &bytes.Buffer{}

	prefix := fmt.Sprintf("%s [%s]", entry.Time.Format("15:04:05.000"), symbolTable[entry.Level])
	if f.UseColors {
		buffer.WriteString(colorByLevel(entry.Level, prefix))
	} else {
		buffer.WriteString(prefix)
	}

	buffer.WriteByte(' ')
	buffer.WriteString(entry.Message)

	if len(entry.Data) > 0 {
		buffer.WriteString(" [")
		idx := 0
		for key, value := range entry.Data {
			keyStr := key
			if f.UseColors {
				keyStr = colorByLevel(entry.Level, key)
			}
			fmt.Fprintf(buffer, "%s=%v", keyStr, value)
			if idx != len(entry.Data)-1 {
				buffer.WriteByte(' ')
			}
			idx++
		}
		buffer.WriteByte(']')
	}

	buffer.WriteByte('\n')
	return buffer.Bytes(), nil
}
