// Package bimage implements the binary image format spec.md §6 describes:
// a fixed on-disk layout for bload/bsave that lets a compiled network be
// restored without re-parsing rule source, provided the two environments
// agree on pointer/int/float sizing.
package bimage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/coregx/rete/internal/atoms"
)

var (
	// ErrBadPrefix is returned when a stream doesn't open with the expected
	// four-byte marker plus "CLIPS".
	ErrBadPrefix = errors.New("bimage: bad file prefix")
	// ErrSizingMismatch is returned when the image's pointer/double/int/
	// long/long-long sizing tag doesn't match the loading environment's.
	ErrSizingMismatch = errors.New("bimage: sizing tag does not match target environment")
	// ErrUnresolvedFunction is returned when a needed function name has no
	// definition in the loading environment's function directory.
	ErrUnresolvedFunction = errors.New("bimage: unresolved function name")
	// ErrFooterMismatch is returned when the trailing marker doesn't equal
	// the header prefix, meaning the stream was truncated or corrupt.
	ErrFooterMismatch = errors.New("bimage: footer does not match header prefix")
	// ErrImageActive is returned by Bsave when a binary image load is still
	// in progress on this environment (spec.md §7 "attempting bsave while a
	// binary image is active").
	ErrImageActive = errors.New("bimage: cannot bsave while a binary image load is active")
)

var prefix = []byte{0x01, 0x02, 0x03, 0x04, 'C', 'L', 'I', 'P', 'S'}

// Sizing records the sizeof values the binary image's header tag encodes
// (spec.md §6 "a sizing tag encoding sizeof for pointer, double, int, long,
// long long"). A load fails outright if these don't match the target, since
// the image's atom and construct sections are otherwise unreadable.
type Sizing struct {
	Pointer  int
	Double   int
	Int      int
	Long     int
	LongLong int
}

// HostSizing is the sizing tag for this implementation: Go has no separate
// long/long long, so both follow int64's width, matching a 64-bit C host.
func HostSizing() Sizing {
	return Sizing{Pointer: 8, Double: 8, Int: 4, Long: 8, LongLong: 8}
}

func (s Sizing) tag() string {
	return fmt.Sprintf("%02d%02d%02d%02d%02d", s.Pointer, s.Double, s.Int, s.Long, s.LongLong)
}

func parseSizingTag(tag string) (Sizing, bool) {
	if len(tag) != 10 {
		return Sizing{}, false
	}
	var vals [5]int
	for i := range vals {
		var v int
		if _, err := fmt.Sscanf(tag[i*2:i*2+2], "%02d", &v); err != nil {
			return Sizing{}, false
		}
		vals[i] = v
	}
	return Sizing{Pointer: vals[0], Double: vals[1], Int: vals[2], Long: vals[3], LongLong: vals[4]}, true
}

// FunctionDirectory resolves a function name to whether it is defined in the
// loading environment, spec.md §6's "FunctionDefinition directory: looked up
// by interned name when restoring a binary image."
type FunctionDirectory interface {
	Defined(name string) bool
}

// ConstructWriter lets a host serialize its own per-construct sections
// (compiled rules, pattern-node headers, joins) after the atom tables have
// been written. The core doesn't know a construct's byte layout itself,
// since compiling rules from source text is out of its scope (NON-GOALS);
// it only fixes the envelope (header, atom sections, footer) around
// whatever the host writes here.
type ConstructWriter interface {
	WriteConstructs(w io.Writer) error
}

// ConstructReader is ConstructWriter's load-side counterpart. tables is the
// just-rebuilt atom table set, so construct bodies can resolve the dense
// indices the writer emitted.
type ConstructReader interface {
	ReadConstructs(r io.Reader, tables *atoms.Tables) error
}

// SaveOptions configures Bsave.
type SaveOptions struct {
	Version       string
	FunctionNames []string
	Tables        *atoms.Tables
	Constructs    ConstructWriter // optional
	ImageActive   bool            // true rejects the save (spec.md §7)
}

// Bsave writes a complete binary image to w.
func Bsave(w io.Writer, opts SaveOptions) error {
	if opts.ImageActive {
		return ErrImageActive
	}
	if err := writeHeader(w, opts.Version, HostSizing()); err != nil {
		return err
	}
	if err := writeFunctionSection(w, opts.FunctionNames); err != nil {
		return err
	}
	if err := writeAtomSections(w, opts.Tables); err != nil {
		return err
	}
	if opts.Constructs != nil {
		if err := opts.Constructs.WriteConstructs(w); err != nil {
			return err
		}
	}
	return writeFooter(w)
}

// LoadOptions configures Bload.
type LoadOptions struct {
	Functions  FunctionDirectory // optional; nil skips the resolution check
	Constructs ConstructReader   // optional
}

// LoadResult is what a successful Bload materializes: spec.md §6's "atom and
// function tables are materialized first... then constructs."
type LoadResult struct {
	Version       string
	FunctionNames []string
	Tables        *atoms.Tables
}

// Bload reads a complete binary image from r, validating the prefix,
// version-independent sizing tag, and footer, and resolving every needed
// function name against opts.Functions.
func Bload(r io.Reader, opts LoadOptions) (*LoadResult, error) {
	version, sizing, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if sizing != HostSizing() {
		return nil, ErrSizingMismatch
	}

	names, err := readFunctionSection(r)
	if err != nil {
		return nil, err
	}
	if opts.Functions != nil {
		for _, name := range names {
			if !opts.Functions.Defined(name) {
				return nil, fmt.Errorf("%w: %s", ErrUnresolvedFunction, name)
			}
		}
	}

	tables, err := readAtomSections(r)
	if err != nil {
		return nil, err
	}

	if opts.Constructs != nil {
		if err := opts.Constructs.ReadConstructs(r, tables); err != nil {
			return nil, err
		}
	}

	if err := readFooter(r); err != nil {
		return nil, err
	}

	return &LoadResult{Version: version, FunctionNames: names, Tables: tables}, nil
}

func writeHeader(w io.Writer, version string, sizing Sizing) error {
	if _, err := w.Write(prefix); err != nil {
		return err
	}
	if err := writeString(w, version); err != nil {
		return err
	}
	return writeString(w, sizing.tag())
}

func readHeader(r io.Reader) (string, Sizing, error) {
	got := make([]byte, len(prefix))
	if _, err := io.ReadFull(r, got); err != nil {
		return "", Sizing{}, err
	}
	if !bytes.Equal(got, prefix) {
		return "", Sizing{}, ErrBadPrefix
	}
	version, err := readString(r)
	if err != nil {
		return "", Sizing{}, err
	}
	tag, err := readString(r)
	if err != nil {
		return "", Sizing{}, err
	}
	sizing, ok := parseSizingTag(tag)
	if !ok {
		return "", Sizing{}, ErrSizingMismatch
	}
	return version, sizing, nil
}

func writeFooter(w io.Writer) error {
	_, err := w.Write(prefix)
	return err
}

func readFooter(r io.Reader) error {
	got := make([]byte, len(prefix))
	if _, err := io.ReadFull(r, got); err != nil {
		return err
	}
	if !bytes.Equal(got, prefix) {
		return ErrFooterMismatch
	}
	return nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// writeString writes a length-prefixed string: a byte count followed by the
// raw bytes. Used for every section spec.md §6 describes as "a count
// followed by the payload" (the header's version/sizing tag and the atom
// table payloads), as opposed to the function-needed section's explicitly
// zero-terminated packing.
func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
