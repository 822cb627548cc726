package bimage

import (
	"bytes"
	"errors"
	"testing"

	"github.com/coregx/rete/internal/atoms"
)

type fakeFunctions struct{ defined map[string]bool }

func (f fakeFunctions) Defined(name string) bool { return f.defined[name] }

func buildTables() *atoms.Tables {
	tables := atoms.NewTables()
	tables.Symbols.Intern("foo")
	tables.Symbols.Intern("bar")
	tables.Strings.Intern("hello world")
	tables.InstanceNames.Intern("[gen1]")
	tables.Floats.Intern(3.5)
	tables.Floats.Intern(-1.25)
	tables.Integers.Intern(42)
	tables.Integers.Intern(-7)
	tables.Bitmaps.Intern(string([]byte{0x01, 0x02, 0x03}))
	return tables
}

func TestBsaveBloadRoundTripsAtomTables(t *testing.T) {
	tables := buildTables()
	var buf bytes.Buffer

	err := Bsave(&buf, SaveOptions{
		Version:       "6.40",
		FunctionNames: []string{"+", "assert", "member$"},
		Tables:        tables,
	})
	if err != nil {
		t.Fatalf("Bsave failed: %v", err)
	}

	result, err := Bload(&buf, LoadOptions{
		Functions: fakeFunctions{defined: map[string]bool{"+": true, "assert": true, "member$": true}},
	})
	if err != nil {
		t.Fatalf("Bload failed: %v", err)
	}

	if result.Version != "6.40" {
		t.Fatalf("expected version 6.40, got %q", result.Version)
	}
	if len(result.FunctionNames) != 3 {
		t.Fatalf("expected 3 function names, got %d", len(result.FunctionNames))
	}

	if got, want := result.Tables.Symbols.Value(0), "foo"; got != want {
		t.Fatalf("symbol 0 = %q, want %q", got, want)
	}
	if got, want := result.Tables.Symbols.Value(1), "bar"; got != want {
		t.Fatalf("symbol 1 = %q, want %q", got, want)
	}
	if got, want := result.Tables.Floats.Value(0), 3.5; got != want {
		t.Fatalf("float 0 = %v, want %v", got, want)
	}
	if got, want := result.Tables.Integers.Value(1), int64(-7); got != want {
		t.Fatalf("integer 1 = %v, want %v", got, want)
	}
	if result.Tables.Bitmaps.Len() != 1 {
		t.Fatalf("expected 1 bitmap, got %d", result.Tables.Bitmaps.Len())
	}
}

func TestBloadRejectsUnresolvedFunction(t *testing.T) {
	var buf bytes.Buffer
	_ = Bsave(&buf, SaveOptions{
		Version:       "6.40",
		FunctionNames: []string{"some-undefined-func"},
		Tables:        atoms.NewTables(),
	})

	_, err := Bload(&buf, LoadOptions{Functions: fakeFunctions{defined: map[string]bool{}}})
	if !errors.Is(err, ErrUnresolvedFunction) {
		t.Fatalf("expected ErrUnresolvedFunction, got %v", err)
	}
}

func TestBloadRejectsBadPrefix(t *testing.T) {
	buf := bytes.NewBufferString("not a clips image at all")
	_, err := Bload(buf, LoadOptions{})
	if !errors.Is(err, ErrBadPrefix) {
		t.Fatalf("expected ErrBadPrefix, got %v", err)
	}
}

func TestBloadRejectsSizingMismatch(t *testing.T) {
	var buf bytes.Buffer
	_ = Bsave(&buf, SaveOptions{Version: "6.40", Tables: atoms.NewTables()})

	raw := buf.Bytes()
	// The sizing tag is a length-prefixed string right after the
	// version string; flip one digit to simulate a foreign host.
	idx := bytes.Index(raw, []byte("0808040808"))
	if idx < 0 {
		t.Fatal("could not locate sizing tag in the written image")
	}
	raw[idx] = '9'

	_, err := Bload(bytes.NewReader(raw), LoadOptions{})
	if !errors.Is(err, ErrSizingMismatch) {
		t.Fatalf("expected ErrSizingMismatch, got %v", err)
	}
}

func TestBsaveRejectsWhileImageActive(t *testing.T) {
	var buf bytes.Buffer
	err := Bsave(&buf, SaveOptions{ImageActive: true, Tables: atoms.NewTables()})
	if !errors.Is(err, ErrImageActive) {
		t.Fatalf("expected ErrImageActive, got %v", err)
	}
}

func TestBloadRejectsTruncatedFooter(t *testing.T) {
	var buf bytes.Buffer
	_ = Bsave(&buf, SaveOptions{Version: "6.40", Tables: atoms.NewTables()})

	truncated := buf.Bytes()[:buf.Len()-len(prefix)]
	_, err := Bload(bytes.NewReader(truncated), LoadOptions{})
	if err == nil {
		t.Fatal("expected an error reading a truncated footer")
	}
}

func TestRetryWithHalvedBatchSucceedsAfterShrinking(t *testing.T) {
	attempts := 0
	err := RetryWithHalvedBatch(64, 10, nil, func(batch int) error {
		attempts++
		if batch > 8 {
			return ErrAllocationFailed
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 4 { // 64 -> 32 -> 16 -> 8
		t.Fatalf("expected 4 attempts, got %d", attempts)
	}
}

func TestRetryWithHalvedBatchStopsOnOOMCallback(t *testing.T) {
	calls := 0
	err := RetryWithHalvedBatch(16, 10, func(next int) bool {
		calls++
		return false
	}, func(batch int) error {
		return ErrAllocationFailed
	})
	if !errors.Is(err, ErrAllocationFailed) {
		t.Fatalf("expected ErrAllocationFailed, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected the oom callback to run once before aborting, got %d", calls)
	}
}

func TestRetryWithHalvedBatchPropagatesOtherErrors(t *testing.T) {
	sentinel := errors.New("disk full")
	err := RetryWithHalvedBatch(16, 10, nil, func(batch int) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected the non-allocation error to propagate, got %v", err)
	}
}
