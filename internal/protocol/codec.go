package protocol

import (
	"strconv"
	"strings"
)

// Wire grammar: TYPE|[#id|]payload. Fields inside the payload are separated
// by '~'; leaderboard-style payloads join repeated field groups with "||".
// A backslash escapes itself and both structural delimiters inside any field
// value, so '|' and '~' appearing in user text always survive a round trip.
const (
	Delimiter      = '|'
	FieldSeparator = '~'
	Escape         = '\\'

	// EntrySeparator joins repeated leaderboard entries. It can only occur
	// structurally: Encode escapes every pipe inside field values.
	EntrySeparator = "||"
)

// Message is the decoded form of one wire line.
type Message struct {
	Type    string
	ID      uint64
	HasID   bool
	Payload string // still field-escaped; use SplitFields
}

// Empty reports whether decoding produced nothing usable.
func (m Message) Empty() bool {
	return m.Type == ""
}

// Fields returns the unescaped payload fields.
func (m Message) Fields() []string {
	return SplitFields(m.Payload)
}

// EscapeField escapes backslash and both delimiters in a single field value.
func EscapeField(s string) string {
	if !strings.ContainsAny(s, "\\|~") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case Escape, byte(Delimiter), byte(FieldSeparator):
			b.WriteByte(Escape)
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// UnescapeField reverses EscapeField. A trailing lone backslash is dropped.
func UnescapeField(s string) string {
	if !strings.ContainsRune(s, rune(Escape)) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == Escape && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// JoinFields escapes and joins field values with the field separator.
func JoinFields(fields ...string) string {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = EscapeField(f)
	}
	return strings.Join(escaped, string(FieldSeparator))
}

// SplitFields walks the payload splitting on unescaped field separators and
// unescapes every field. It never uses a naive split.
func SplitFields(payload string) []string {
	if payload == "" {
		return nil
	}
	var fields []string
	var b strings.Builder
	for i := 0; i < len(payload); i++ {
		c := payload[i]
		switch {
		case c == Escape && i+1 < len(payload):
			b.WriteByte(payload[i+1])
			i++
		case c == byte(FieldSeparator):
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	fields = append(fields, b.String())
	return fields
}

// Encode builds a wire line from a type and raw field values.
func Encode(typ string, fields ...string) string {
	return typ + string(Delimiter) + JoinFields(fields...)
}

// EncodeWithID builds a wire line carrying a message id for ack tracking.
func EncodeWithID(typ string, id uint64, fields ...string) string {
	return typ + string(Delimiter) + "#" + strconv.FormatUint(id, 10) +
		string(Delimiter) + JoinFields(fields...)
}

// EncodeRaw frames an already-assembled payload (e.g. joined leaderboard
// entries) without re-escaping its structural separators.
func EncodeRaw(typ, payload string) string {
	return typ + string(Delimiter) + payload
}

// Decode parses one wire line. Empty or malformed input yields a zero
// Message rather than an error so one corrupt line cannot kill a connection.
func Decode(line string) Message {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Message{}
	}

	sep := indexUnescaped(line, byte(Delimiter))
	if sep < 0 {
		return Message{Type: line}
	}
	msg := Message{Type: line[:sep]}
	rest := line[sep+1:]

	// Optional id segment: "#<digits>|".
	if strings.HasPrefix(rest, "#") {
		if end := indexUnescaped(rest, byte(Delimiter)); end > 1 {
			if id, err := strconv.ParseUint(rest[1:end], 10, 64); err == nil {
				msg.ID = id
				msg.HasID = true
				rest = rest[end+1:]
			}
		}
	}
	msg.Payload = rest
	return msg
}

// SplitEntries splits a payload into leaderboard-style entries on unescaped
// entry separators.
func SplitEntries(payload string) []string {
	if payload == "" {
		return nil
	}
	var entries []string
	start := 0
	for i := 0; i+1 < len(payload); i++ {
		if payload[i] == Escape {
			i++
			continue
		}
		if payload[i] == byte(Delimiter) && payload[i+1] == byte(Delimiter) {
			entries = append(entries, payload[start:i])
			start = i + 2
			i++
		}
	}
	entries = append(entries, payload[start:])
	return entries
}

func indexUnescaped(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == Escape {
			i++
			continue
		}
		if s[i] == c {
			return i
		}
	}
	return -1
}
