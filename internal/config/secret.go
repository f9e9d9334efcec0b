package config

import "strconv"

const redacted = "[REDACTED]"

// Secret holds a bank token or marketplace API key. Every printing and marshaling path
// shows a placeholder; Value is the only way to get the credential back.
type Secret string

// Value returns the credential as sent on the wire
func (s Secret) Value() string { return string(s) }

// Set reports whether a credential was configured
func (s Secret) Set() bool { return s != "" }

func (s Secret) masked() string {
	if !s.Set() {
		return ""
	}
	return redacted
}

func (s Secret) String() string { return s.masked() }

func (s Secret) GoString() string { return strconv.Quote(s.masked()) }

func (s Secret) MarshalYAML() (interface{}, error) { return s.masked(), nil }

func (s Secret) MarshalJSON() ([]byte, error) { return []byte(strconv.Quote(s.masked())), nil }
