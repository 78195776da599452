package logger

import (
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	// a full postcode next to a street name pinpoints a household
	postcodePattern = regexp.MustCompile(`\b\d{4}-\d{3}\b`)
)

// maskedKeys hold free text typed into the form and are always reduced to
// their first rune
var maskedKeys = map[string]bool{
	"name":           true,
	"address":        true,
	"address_detail": true,
	"street_name":    true,
	"email":          true,
	"ip":             true,
}

// maskingCore rewrites string fields and messages on their way to the
// wrapped core
type maskingCore struct {
	zapcore.Core
}

func (m maskingCore) With(fields []zapcore.Field) zapcore.Core {
	return maskingCore{Core: m.Core.With(maskFields(fields))}
}

func (m maskingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if m.Enabled(ent.Level) {
		return ce.AddCore(ent, m)
	}
	return ce
}

func (m maskingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = maskText(ent.Message)
	return m.Core.Write(ent, maskFields(fields))
}

func maskFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = f
		if f.Type != zapcore.StringType {
			continue
		}
		if maskedKeys[f.Key] {
			out[i].String = firstRune(f.String)
		} else {
			out[i].String = maskText(f.String)
		}
	}
	return out
}

// maskText hides e-mail addresses and postcodes inside free text
func maskText(s string) string {
	s = emailPattern.ReplaceAllStringFunc(s, func(email string) string {
		local, _, _ := strings.Cut(email, "@")
		if local == "" {
			return "***@***"
		}
		return local[:1] + "***@***"
	})
	// 1234-567 -> 12**-***
	return postcodePattern.ReplaceAllStringFunc(s, func(pc string) string {
		return pc[:2] + "**-***"
	})
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r) + "***"
	}
	return s
}
