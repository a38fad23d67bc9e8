// Package telemetry carries the engine's ambient observability: a
// structured logger, an OpenTelemetry trace bootstrap for pipeline spans,
// and in-memory counters for the error taxonomy. None of it sits on the
// synchronous decision path.
package telemetry

import (
	"fmt"
	"log"
	"os"
	"time"
)

// Level is the severity of a log line.
type Level string

const (
	DEBUG Level = "DEBUG"
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
)

// Sink receives log events for durable storage. A nil Sink means console
// only. Sinks are always called off the caller's goroutine.
type Sink interface {
	Write(level Level, service, message string, eventType string, data map[string]interface{})
}

// Logger is the centralized logger for AMAS.
type Logger struct {
	service     string
	sink        Sink
	enableDebug bool
}

// New creates a logger for the given service/component name.
func New(service string, sink Sink) *Logger {
	return &Logger{
		service:     service,
		sink:        sink,
		enableDebug: os.Getenv("AMAS_LOG_LEVEL") == "DEBUG",
	}
}

func (l *Logger) Debug(message string, keyvals ...interface{}) {
	if !l.enableDebug {
		return
	}
	l.log(DEBUG, message, keyvals...)
}

func (l *Logger) Info(message string, keyvals ...interface{}) { l.log(INFO, message, keyvals...) }
func (l *Logger) Warn(message string, keyvals ...interface{}) { l.log(WARN, message, keyvals...) }

func (l *Logger) Error(message string, err error, keyvals ...interface{}) {
	if err != nil {
		keyvals = append(keyvals, "error", err.Error())
	}
	l.log(ERROR, message, keyvals...)
}

func (l *Logger) log(level Level, message string, keyvals ...interface{}) {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	line := fmt.Sprintf("[%s][%s][%s] %s", timestamp, l.service, level, message)
	if len(keyvals) > 0 {
		line = fmt.Sprintf("%s %s", line, formatKeyVals(keyvals...))
	}
	log.Println(line)

	if l.sink != nil && level != DEBUG {
		go l.sink.Write(level, l.service, message, "", keyValsToMap(keyvals))
	}
}

// LogEvent logs a structured, typed event such as one of the error-taxonomy
// kinds (input_sanitised, numeric_instability, state_corruption,
// decision_timeout, persistence_failure). It does not touch the Metrics
// counters.
func (l *Logger) LogEvent(eventType string, data map[string]interface{}) {
	l.Info(fmt.Sprintf("event: %s", eventType), mapToKeyVals(data)...)
	if l.sink != nil {
		go l.sink.Write(INFO, l.service, eventType, eventType, data)
	}
}

func formatKeyVals(keyvals ...interface{}) string {
	result := ""
	for i := 0; i < len(keyvals)-1; i += 2 {
		if i > 0 {
			result += " "
		}
		result += fmt.Sprintf("%v=%v", keyvals[i], keyvals[i+1])
	}
	return result
}

func keyValsToMap(keyvals []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(keyvals)/2)
	for i := 0; i < len(keyvals)-1; i += 2 {
		out[fmt.Sprintf("%v", keyvals[i])] = keyvals[i+1]
	}
	return out
}

func mapToKeyVals(data map[string]interface{}) []interface{} {
	result := make([]interface{}, 0, len(data)*2)
	for k, v := range data {
		result = append(result, k, v)
	}
	return result
}

// Global is the process-wide logger, wired in main before anything else
// runs. Packages that can't take a *Logger by constructor (rare — most of
// AMAS is explicit dependency injection) fall back to this.
var Global *Logger

func SetGlobal(l *Logger) { Global = l }

func Info(message string, keyvals ...interface{}) {
	if Global != nil {
		Global.Info(message, keyvals...)
	} else {
		log.Printf("[INFO] %s", message)
	}
}

func Warn(message string, keyvals ...interface{}) {
	if Global != nil {
		Global.Warn(message, keyvals...)
	} else {
		log.Printf("[WARN] %s", message)
	}
}

func Error(message string, err error, keyvals ...interface{}) {
	if Global != nil {
		Global.Error(message, err, keyvals...)
	} else {
		log.Printf("[ERROR] %s: %v", message, err)
	}
}
