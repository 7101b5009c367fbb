// Package vote decodes raw vote fields into the semantic values the engine works with.
//
// Vote documents are written by clients, so the value field arrives either as a
// small integer code or as a string token. Everything is decoded once here and
// the rest of the system only ever sees enum.VoteValue.
package vote

import (
	"encoding/json"
	"math"

	"github.com/bytedance/sonic"
)

// ValueField is the document field that holds the raw vote value.
const ValueField = "value"

type rawKind uint8

const (
	rawAbsent rawKind = iota
	rawCode
	rawToken
	rawOther
)

// Raw is a vote field as it was found on the document.
// The zero value is an absent field.
type Raw struct {
	kind  rawKind
	code  int64
	token string
}

// Absent returns a Raw for a missing field or a missing document.
func Absent() Raw {
	return Raw{}
}

// Code returns a Raw holding an integer vote code.
func Code(code int64) Raw {
	return Raw{kind: rawCode, code: code}
}

// Token returns a Raw holding a string vote token.
func Token(token string) Raw {
	return Raw{kind: rawToken, token: token}
}

// FromAny classifies a decoded JSON value.
func FromAny(v any) Raw {
	switch val := v.(type) {
	case nil:
		return Absent()
	case string:
		return Token(val)
	case int:
		return Code(int64(val))
	case int64:
		return Code(val)
	case int32:
		return Code(int64(val))
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || math.IsNaN(val) {
			return Raw{kind: rawOther}
		}
		return Code(int64(val))
	case json.Number:
		if code, err := val.Int64(); err == nil {
			return Code(code)
		}
		return Raw{kind: rawOther}
	default:
		return Raw{kind: rawOther}
	}
}

// FromDocument reads the value field from a decoded document.
// A nil document means the vote did not exist on that side of the write.
func FromDocument(doc map[string]any) Raw {
	if doc == nil {
		return Absent()
	}
	return FromAny(doc[ValueField])
}

// UnmarshalJSON accepts any JSON scalar. Values that cannot be a vote are kept
// as unrecognised rather than rejected.
func (r *Raw) UnmarshalJSON(data []byte) error {
	var v any
	if err := sonic.Unmarshal(data, &v); err != nil {
		*r = Raw{kind: rawOther}
		return nil //nolint:nilerr // malformed votes normalise to unset
	}
	*r = FromAny(v)
	return nil
}

// IsAbsent reports whether the field was missing.
func (r Raw) IsAbsent() bool {
	return r.kind == rawAbsent
}
