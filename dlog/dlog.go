// Package dlog is the logging layer for dealerdb: printf-style logging to
// stdout and optional daily files, plus structured events encoded in toon
// format that can be shipped to a log server in the background.
package dlog

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/toon-format/toon-go"
)

var (
	log       *WriteDaily
	errorsLog *WriteDaily
	eventsLog *WriteDaily

	// if true, Verbosef() will log messages
	Verbose bool
)

type Config struct {
	// directory where log files are stored
	// each log type (regular, errors, events) has its own subdirectory
	Dir string
	// called for every Logf() call
	OnLog func(s string)
}

var onLog func(s string)

// Init initializes logging to daily files under config.Dir. Without Init,
// Logf and friends only print to stdout and Event is a no-op.
func Init(config *Config) {
	dir := config.Dir
	log = NewWriteDaily(filepath.Join(dir, "log"))
	errorsLog = NewWriteDaily(filepath.Join(dir, "errors"))
	eventsLog = NewWriteDaily(filepath.Join(dir, "events"))
	onLog = config.OnLog
}

// Close closes all daily log files.
func Close() {
	closeWriteDaily(&log)
	closeWriteDaily(&errorsLog)
	closeWriteDaily(&eventsLog)
	stopShipping()
}

func closeWriteDaily(wd **WriteDaily) {
	if *wd == nil {
		return
	}
	(*wd).Sync()
	(*wd).Close()
	*wd = nil
}

func Logf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	fmt.Print(s)
	log.WriteString(s)
	if onLog != nil {
		onLog(s)
	}
}

func Verbosef(format string, args ...any) {
	if !Verbose {
		return
	}
	Logf(format, args...)
}

func GetCallstack(skip int) string {
	var callers [32]uintptr
	n := runtime.Callers(skip+2, callers[:])
	frames := runtime.CallersFrames(callers[:n])
	var cs []string
	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		cs = append(cs, frame.File+":"+strconv.Itoa(frame.Line))
	}
	return strings.Join(cs, "\n")
}

// Errorf logs an error message along with the callstack
func Errorf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	cs := GetCallstack(1)
	Logf("%s\n%s\n", s, cs)
	errorsLog.WriteString(s + "\n")
}

// IfErrf logs err and returns true if err is not nil.
// IfErrf(err) => logs err.Error()
// IfErrf(err, "context: %v", v) => logs formatted message
func IfErrf(err error, a ...any) bool {
	if err == nil {
		return false
	}
	if len(a) == 0 {
		Errorf(err.Error())
		return true
	}
	s, ok := a[0].(string)
	if !ok {
		s = fmt.Sprintf("%s", a[0])
	}
	if len(a) > 1 {
		s = fmt.Sprintf(s, a[1:]...)
	}
	Errorf(s)
	return true
}

// marshalEventLine serializes an event as a size-prefixed record:
// "<size> <unix ms> <name>\n" header followed by the toon payload.
// Size prefix makes the events file safely parseable even though toon
// output spans multiple lines.
func marshalEventLine(name string, t time.Time, d []byte) []byte {
	hdr := fmt.Sprintf("%d %d %s\n", len(d), t.UnixMilli(), name)
	res := make([]byte, 0, len(hdr)+len(d)+1)
	res = append(res, hdr...)
	res = append(res, d...)
	if len(d) > 0 && d[len(d)-1] != '\n' {
		res = append(res, '\n')
	}
	return res
}

// Event logs a named event with key/value pairs, encoded in toon format.
// If a remote log server is configured (see Ship), the event is also sent
// there on a background goroutine.
func Event(name string, vals ...any) {
	n := len(vals)
	if n%2 != 0 {
		panic("Event: odd number of key/value args")
	}
	var d []byte
	if n > 0 {
		m := map[string]any{}
		for i := 0; i < n; i += 2 {
			k := fmt.Sprintf("%v", vals[i])
			m[k] = vals[i+1]
		}
		d, _ = toon.Marshal(m)
	}
	t := time.Now().UTC()
	rec := marshalEventLine(name, t, d)
	eventsLog.Write(rec)
	shipEvent(rec)
}
