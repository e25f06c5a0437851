package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates the typed value variants a Record field may hold.
type Kind string

const (
	KindNull      Kind = "null"
	KindNumber    Kind = "number"
	KindString    Kind = "string"
	KindTimestamp Kind = "timestamp"
)

// Value is an immutable tagged variant: number, string, timestamp or null.
type Value struct {
	kind Kind
	num  float64
	str  string
	ts   time.Time
}

func Null() Value {
	return Value{kind: KindNull}
}

func Number(v float64) Value {
	return Value{kind: KindNumber, num: v}
}

func String(v string) Value {
	return Value{kind: KindString, str: v}
}

func Timestamp(v time.Time) Value {
	return Value{kind: KindTimestamp, ts: v.UTC()}
}

func (v Value) Kind() Kind {
	if v.kind == "" {
		return KindNull
	}
	return v.kind
}

func (v Value) IsNull() bool {
	return v.Kind() == KindNull
}

// AsNumber returns the numeric value and whether the variant is a number.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// AsString returns the string value and whether the variant is a string.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsTimestamp returns the timestamp value and whether the variant is a timestamp.
func (v Value) AsTimestamp() (time.Time, bool) {
	if v.kind != KindTimestamp {
		return time.Time{}, false
	}
	return v.ts, true
}

func (v Value) Equal(other Value) bool {
	if v.Kind() != other.Kind() {
		return false
	}
	switch v.Kind() {
	case KindNumber:
		return v.num == other.num
	case KindString:
		return v.str == other.str
	case KindTimestamp:
		return v.ts.Equal(other.ts)
	}
	return true
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind() {
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindTimestamp:
		return json.Marshal(v.ts.Format(time.RFC3339Nano))
	}
	return []byte("null"), nil
}

func (v Value) GoString() string {
	switch v.Kind() {
	case KindNumber:
		return fmt.Sprintf("Number(%v)", v.num)
	case KindString:
		return fmt.Sprintf("String(%q)", v.str)
	case KindTimestamp:
		return fmt.Sprintf("Timestamp(%s)", v.ts.Format(time.RFC3339Nano))
	}
	return "Null()"
}
