package errors

import (
	"fmt"
	"testing"
)

func TestNewAndIs(t *testing.T) {
	err := New(Semantic, "duplicate_extension", "duplicate extension %s", "2.5.29.15")
	if err.Error() != "duplicate extension 2.5.29.15" {
		t.Errorf("unexpected detail: %q", err.Error())
	}
	if !Is(err, Semantic) {
		t.Error("Is failed to match the error's kind")
	}
	if Is(err, Framing) {
		t.Error("Is matched the wrong kind")
	}

	wrapped := fmt.Errorf("parsing extensions: %w", err)
	if !Is(wrapped, Semantic) {
		t.Error("Is failed to match a wrapped error")
	}

	if Is(fmt.Errorf("plain"), Semantic) {
		t.Error("Is matched a non-Error")
	}
}

func TestKindString(t *testing.T) {
	for kind, want := range map[Kind]string{
		Framing:       "framing",
		Unsupported:   "unsupported",
		Semantic:      "semantic",
		Normalization: "normalization",
		Algorithm:     "algorithm",
		Kind(42):      "unknown",
	} {
		if kind.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, kind.String(), want)
		}
	}
}

func TestCollector(t *testing.T) {
	var c Collector
	if len(c.Entries()) != 0 {
		t.Error("zero-value Collector is not empty")
	}

	c.Add(Entry{Severity: SeverityError, Kind: Framing, Code: "certificate", Context: "truncated"})
	c.Add(Entry{Severity: SeverityWarning, Kind: Semantic, Code: "negative_serial", Context: "serial is negative"})

	got := c.Entries()
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if len(c.Warnings()) != 1 || c.Warnings()[0].Code != "negative_serial" {
		t.Errorf("Warnings() = %v", c.Warnings())
	}

	// Entries returns a copy: mutating it must not affect the collector.
	got[0].Code = "clobbered"
	if c.Entries()[0].Code != "certificate" {
		t.Error("Entries() exposed internal state")
	}
}

func TestEntryFromError(t *testing.T) {
	e := EntryFromError(New(Algorithm, "signature_algorithm", "unknown OID"))
	if e.Severity != SeverityError || e.Kind != Algorithm || e.Code != "signature_algorithm" {
		t.Errorf("unexpected entry: %+v", e)
	}

	e = EntryFromError(fmt.Errorf("something else"))
	if e.Kind != Framing || e.Code != "parse" {
		t.Errorf("unexpected entry for plain error: %+v", e)
	}

	want := "[error] algorithm/signature_algorithm: unknown OID"
	got := EntryFromError(New(Algorithm, "signature_algorithm", "unknown OID")).String()
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
