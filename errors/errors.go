// Package errors defines the error taxonomy shared by the certificate
// parsing packages, along with the advisory sink that construction uses to
// surface diagnostics. The sink is append-only: the parser writes entries
// and never reads them back.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind provides a coarse category for parse errors.
type Kind int

const (
	// Framing indicates a malformed or truncated TLV, including trailing
	// garbage after a complete element.
	Framing Kind = iota
	// Unsupported indicates a field value we refuse to represent, such as
	// a certificate version above v3.
	Unsupported
	// Semantic indicates DER that framed correctly but violates X.509
	// structural rules (duplicate extension, empty SEQUENCE OF where at
	// least one entry is required, and so on).
	Semantic
	// Normalization indicates a distinguished-name attribute of a
	// recognized directory-string type that could not be decoded.
	Normalization
	// Algorithm indicates an unparseable outer signature algorithm.
	Algorithm
)

func (k Kind) String() string {
	switch k {
	case Framing:
		return "framing"
	case Unsupported:
		return "unsupported"
	case Semantic:
		return "semantic"
	case Normalization:
		return "normalization"
	case Algorithm:
		return "algorithm"
	}
	return "unknown"
}

// Error is a parse failure with a machine-readable code. The Code is stable
// across releases; Detail is human-oriented and is not.
type Error struct {
	Kind   Kind
	Code   string
	Detail string
}

func (e *Error) Error() string {
	return e.Detail
}

// New creates an Error of the given kind and code.
func New(kind Kind, code string, format string, args ...any) error {
	return &Error{
		Kind:   kind,
		Code:   code,
		Detail: fmt.Sprintf(format, args...),
	}
}

// Is reports whether err wraps an Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// Severity distinguishes advisory sink entries from ones describing why
// construction failed.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Entry is a single diagnostic record.
type Entry struct {
	Severity Severity
	Kind     Kind
	Code     string
	Context  string
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s/%s: %s", e.Severity, e.Kind, e.Code, e.Context)
}

// Sink receives diagnostic entries during certificate construction. A nil
// Sink is legal everywhere one is accepted; callers must check for nil
// before calling Add.
type Sink interface {
	Add(Entry)
}

// Collector is the standard Sink: an append-only, in-memory collection.
// The zero value is ready to use. A construction call runs entirely on one
// goroutine, so Collector does no locking.
type Collector struct {
	entries []Entry
}

// Add appends an entry.
func (c *Collector) Add(e Entry) {
	c.entries = append(c.entries, e)
}

// Entries returns a copy of everything collected so far.
func (c *Collector) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Warnings returns only the entries with SeverityWarning.
func (c *Collector) Warnings() []Entry {
	var out []Entry
	for _, e := range c.entries {
		if e.Severity == SeverityWarning {
			out = append(out, e)
		}
	}
	return out
}

// EntryFromError converts an error returned by a parser into a sink entry
// with SeverityError. Errors that are not *Error are treated as framing
// problems, since that is the only way an external decoder fails.
func EntryFromError(err error) Entry {
	var e *Error
	if stderrors.As(err, &e) {
		return Entry{Severity: SeverityError, Kind: e.Kind, Code: e.Code, Context: e.Detail}
	}
	return Entry{Severity: SeverityError, Kind: Framing, Code: "parse", Context: err.Error()}
}
