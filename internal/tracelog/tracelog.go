// Package tracelog implements the Tracer interface every layer of this
// client logs through: Print/Printf for session events, LogPacket for
// hex-dumped wire traffic, backed by logrus for structured, leveled
// output.
package tracelog

import (
	"encoding/hex"

	"github.com/sirupsen/logrus"
)

// Tracer is the logging contract used by the root package, internal/auth
// and internal/ttc. A nil-safe no-op implementation is
// provided by Discard() so callers can trace unconditionally.
type Tracer interface {
	Print(vs ...interface{})
	Printf(f string, args ...interface{})
	LogPacket(label string, payload []byte)
}

type logrusTracer struct {
	log *logrus.Entry
}

// New wraps a *logrus.Logger as a Tracer, attaching fields to every entry
// when fields is non-empty. Pass
// logrus.StandardLogger() for process-wide logging, or a dedicated logger
// per session when callers want per-connection log files.
func New(log *logrus.Logger, fields logrus.Fields) Tracer {
	entry := logrus.NewEntry(log)
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	return &logrusTracer{log: entry}
}

func (t *logrusTracer) Print(vs ...interface{}) {
	t.log.Debug(vs...)
}

func (t *logrusTracer) Printf(f string, args ...interface{}) {
	t.log.Debugf(f, args...)
}

func (t *logrusTracer) LogPacket(label string, payload []byte) {
	t.log.WithField("hex", hex.EncodeToString(payload)).Debug(label)
}

type discardTracer struct{}

func (discardTracer) Print(vs ...interface{})                {}
func (discardTracer) Printf(f string, args ...interface{})   {}
func (discardTracer) LogPacket(label string, payload []byte) {}

// Discard returns a Tracer that does nothing; the default when a caller
// does not configure logging.
func Discard() Tracer { return discardTracer{} }
