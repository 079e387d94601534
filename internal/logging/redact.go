package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const redacted = "[REDACTED]"

// redactingEncoder masks sensitive keys and scrubs string values.
type redactingEncoder struct {
	zapcore.Encoder
	fields map[string]bool
	scrub  func(string) string
}

func newRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) zapcore.Encoder {
	if !cfg.Enabled {
		return base
	}
	fields := make(map[string]bool, len(cfg.Fields))
	for _, f := range cfg.Fields {
		fields[strings.ToLower(f)] = true
	}
	return &redactingEncoder{Encoder: base, fields: fields, scrub: cfg.Scrub}
}

func (e *redactingEncoder) sensitive(key string) bool {
	return e.fields[strings.ToLower(key)]
}

// EncodeEntry covers per-call fields, which the wrapped encoder would
// otherwise write without going through the Add* methods below.
func (e *redactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if e.scrub != nil {
		ent.Message = e.scrub(ent.Message)
	}
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch {
		case e.sensitive(f.Key):
			f = zap.String(f.Key, redacted)
		case f.Type == zapcore.StringType && e.scrub != nil:
			f.String = e.scrub(f.String)
		}
		out[i] = f
	}
	return e.Encoder.EncodeEntry(ent, out)
}

func (e *redactingEncoder) AddString(key, val string) {
	switch {
	case e.sensitive(key):
		val = redacted
	case e.scrub != nil:
		val = e.scrub(val)
	}
	e.Encoder.AddString(key, val)
}

func (e *redactingEncoder) AddByteString(key string, val []byte) {
	if e.sensitive(key) {
		val = []byte(redacted)
	}
	e.Encoder.AddByteString(key, val)
}

func (e *redactingEncoder) AddReflected(key string, val interface{}) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *redactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *redactingEncoder) Clone() zapcore.Encoder {
	return &redactingEncoder{Encoder: e.Encoder.Clone(), fields: e.fields, scrub: e.scrub}
}
