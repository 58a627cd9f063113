// Package obslog provides leveled logging for CapiForge components.
//
// It wraps the standard library "log" package with a level threshold and
// a small structured-fields convention (component prefix + key=value
// suffix), matching the footprint of an APOC-style logging helper rather
// than pulling in a full structured-logging framework.
//
// Example:
//
//	logger := obslog.WithPrefix("hypergraph")
//	logger.Info("edge promoted", map[string]any{"edge": id, "count": 3})
package obslog

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

// Level represents a log severity threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu           sync.Mutex
	currentLevel = LevelInfo
	out          = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

// SetLevel adjusts the global log threshold. Messages below the threshold
// are dropped without formatting their fields.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = l
}

// Logger emits leveled, component-prefixed log lines.
type Logger struct {
	prefix string
}

// WithPrefix returns a Logger that tags every line with component.
func WithPrefix(component string) Logger {
	return Logger{prefix: component}
}

func (l Logger) Debug(msg string, fields map[string]any) { l.log(LevelDebug, "DEBUG", msg, fields) }
func (l Logger) Info(msg string, fields map[string]any)  { l.log(LevelInfo, "INFO", msg, fields) }
func (l Logger) Warn(msg string, fields map[string]any)  { l.log(LevelWarn, "WARN", msg, fields) }
func (l Logger) Error(msg string, fields map[string]any) { l.log(LevelError, "ERROR", msg, fields) }

func (l Logger) log(level Level, tag, msg string, fields map[string]any) {
	mu.Lock()
	threshold := currentLevel
	mu.Unlock()
	if level < threshold {
		return
	}
	out.Println(format(l.prefix, tag, msg, fields))
}

func format(prefix, tag, msg string, fields map[string]any) string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(tag)
	b.WriteByte(']')
	if prefix != "" {
		b.WriteByte(' ')
		b.WriteString(prefix)
		b.WriteByte(':')
	}
	b.WriteByte(' ')
	b.WriteString(msg)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	return b.String()
}
