package record

import (
	"strconv"
	"strings"
	"time"
)

const (
	// FieldDelim separates the fields of one sample line.
	FieldDelim = ";"
	// ValueDelim separates a field name from its value.
	ValueDelim = ":"

	FieldTimeStamp = "timeStamp"

	// Unsupported is written in place of any metric the source cannot supply.
	Unsupported = -1

	// yyyyMMddhhmmsszzz; the dot is stripped before writing.
	timeStampLayout = "20060102150405.000"
)

// Field is one named value of a sample line.
type Field struct {
	Name  string
	Value string
}

// Fields is an ordered set of fields. Order is insertion order.
type Fields []Field

// Get returns the value of the first field called name.
func (f Fields) Get(name string) (string, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}

	return "", false
}

// Add appends a text field.
func (f Fields) Add(name, value string) Fields {
	return append(f, Field{Name: name, Value: value})
}

// AddFloat appends a floating point field using six significant digits.
func (f Fields) AddFloat(name string, value float64) Fields {
	return f.Add(name, FormatFloat(value))
}

// AddInt appends an integer field.
func (f Fields) AddInt(name string, value int64) Fields {
	return f.Add(name, strconv.FormatInt(value, 10))
}

// NewSample starts a sample line with the timeStamp field.
func NewSample(ts time.Time) Fields {
	return Fields{{Name: FieldTimeStamp, Value: FormatTimeStamp(ts)}}
}

// FormatTimeStamp renders ts without any delimiter characters.
func FormatTimeStamp(ts time.Time) string {
	return strings.Replace(ts.Format(timeStampLayout), ".", "", 1)
}

// FormatFloat renders v the way sample values have always been written:
// at most six significant digits, no trailing zeros.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// Encode joins fields as name:value pairs separated by ';'. Values are
// written as is; they must not contain either delimiter.
func Encode(fields Fields) string {
	var b strings.Builder
	for i, field := range fields {
		if i > 0 {
			b.WriteString(FieldDelim)
		}
		b.WriteString(field.Name)
		b.WriteString(ValueDelim)
		b.WriteString(field.Value)
	}

	return b.String()
}

// Decode splits a buffered line back into fields. It never fails.
//
// Empty segments and empty tokens are skipped. The name is the first
// ':'-separated token of a segment and the value is the last one, so a
// value that itself contained ':' only keeps its final token. Lines already
// on disk were written against this rule and must keep decoding the same.
func Decode(line string) Fields {
	var fields Fields
	for _, segment := range splitSkipEmpty(line, FieldDelim) {
		tokens := splitSkipEmpty(segment, ValueDelim)
		if len(tokens) == 0 {
			continue
		}
		fields = append(fields, Field{Name: tokens[0], Value: tokens[len(tokens)-1]})
	}

	return fields
}

func splitSkipEmpty(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
