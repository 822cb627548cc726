package bimage

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/coregx/rete/internal/atoms"
)

// writeAtomSections writes spec.md §6's atom sections — symbols, strings,
// instance-names, floats, integers, bitmaps — each a count followed by its
// payload, in the fixed order readAtomSections expects back. Values are
// written in dense-ID order, so the IDs the loading side assigns on re-intern
// reproduce exactly the IDs the saving side had (atoms.Table's Intern is a
// bijection that only ever appends, so replaying All() in order regenerates
// the same index assignment).
func writeAtomSections(w io.Writer, tables *atoms.Tables) error {
	if err := writeStringTable(w, tables.Symbols.All()); err != nil {
		return err
	}
	if err := writeStringTable(w, tables.Strings.All()); err != nil {
		return err
	}
	if err := writeStringTable(w, tables.InstanceNames.All()); err != nil {
		return err
	}
	if err := writeFloatTable(w, tables.Floats.All()); err != nil {
		return err
	}
	if err := writeIntTable(w, tables.Integers.All()); err != nil {
		return err
	}
	return writeStringTable(w, tables.Bitmaps.All())
}

func readAtomSections(r io.Reader) (*atoms.Tables, error) {
	tables := atoms.NewTables()

	symbols, err := readStringTable(r)
	if err != nil {
		return nil, err
	}
	for _, s := range symbols {
		tables.Symbols.Intern(s)
	}

	strs, err := readStringTable(r)
	if err != nil {
		return nil, err
	}
	for _, s := range strs {
		tables.Strings.Intern(s)
	}

	instances, err := readStringTable(r)
	if err != nil {
		return nil, err
	}
	for _, s := range instances {
		tables.InstanceNames.Intern(s)
	}

	floats, err := readFloatTable(r)
	if err != nil {
		return nil, err
	}
	for _, f := range floats {
		tables.Floats.Intern(f)
	}

	ints, err := readIntTable(r)
	if err != nil {
		return nil, err
	}
	for _, i := range ints {
		tables.Integers.Intern(i)
	}

	bitmaps, err := readStringTable(r)
	if err != nil {
		return nil, err
	}
	for _, b := range bitmaps {
		tables.Bitmaps.Intern(b)
	}

	return tables, nil
}

func writeStringTable(w io.Writer, vals []string) error {
	if err := writeUint32(w, uint32(len(vals))); err != nil {
		return err
	}
	for _, v := range vals {
		if err := writeString(w, v); err != nil {
			return err
		}
	}
	return nil
}

func readStringTable(r io.Reader) ([]string, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	vals := make([]string, count)
	for i := range vals {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		vals[i] = s
	}
	return vals, nil
}

func writeFloatTable(w io.Writer, vals []float64) error {
	if err := writeUint32(w, uint32(len(vals))); err != nil {
		return err
	}
	for _, v := range vals {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

func readFloatTable(r io.Reader) ([]float64, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	vals := make([]float64, count)
	for i := range vals {
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[:]))
	}
	return vals, nil
}

func writeIntTable(w io.Writer, vals []int64) error {
	if err := writeUint32(w, uint32(len(vals))); err != nil {
		return err
	}
	for _, v := range vals {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

func readIntTable(r io.Reader) ([]int64, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	vals := make([]int64, count)
	for i := range vals {
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		vals[i] = int64(binary.LittleEndian.Uint64(buf[:]))
	}
	return vals, nil
}
