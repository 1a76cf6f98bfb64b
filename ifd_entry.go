// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import (
	"encoding/binary"
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// FieldAccess exposes typed accessors over a Dir's entries that
// transparently handle fixed-size scalars, NUL-trimmed ASCII strings,
// numeric arrays with widening, and rational-to-float conversion. Every
// accessor returns (value, false) rather than an error when a tag is
// absent or its type doesn't match what was asked for; mismatches are
// logged through warnf instead of aborting the caller.
type FieldAccess struct {
	c      *IFDContainer
	dir    *Dir
	base   int64
	warnf  func(string, ...any)
}

// NewFieldAccess builds a FieldAccess over dir. base is the MakerNote base
// offset to apply when dereferencing out-of-line entries (0 for ordinary
// IFDs). warnf may be nil.
func NewFieldAccess(c *IFDContainer, dir *Dir, base int64, warnf func(string, ...any)) *FieldAccess {
	if warnf == nil {
		warnf = func(string, ...any) {}
	}
	return &FieldAccess{c: c, dir: dir, base: base, warnf: warnf}
}

func (f *FieldAccess) data(e *Entry) ([]byte, bool) {
	d, err := f.c.EntryData(e, f.base)
	if err != nil {
		f.warnf("tag 0x%x: %v", e.Tag, err)
		return nil, false
	}
	return d, true
}

func (f *FieldAccess) order() binary.ByteOrder { return f.dir.Endian.order() }

// U32 reads tag as a widened unsigned integer: Byte/SByte/Short/SShort/
// Long/SLong all widen to uint32. Rational tags return num/denom using
// integer division, per the spec's "rationals used as integers" rule.
func (f *FieldAccess) U32(tag uint16) (uint32, bool) {
	e, ok := f.dir.Get(tag)
	if !ok {
		return 0, false
	}
	d, ok := f.data(e)
	if !ok {
		return 0, false
	}
	order := f.order()
	switch e.Type {
	case TypeByte, TypeSByte, TypeUndefined, TypeAscii:
		if len(d) < 1 {
			return 0, false
		}
		return uint32(d[0]), true
	case TypeShort, TypeSShort:
		if len(d) < 2 {
			return 0, false
		}
		return uint32(order.Uint16(d)), true
	case TypeLong, TypeSLong:
		if len(d) < 4 {
			return 0, false
		}
		return order.Uint32(d), true
	case TypeRational, TypeSRational:
		if len(d) < 8 {
			return 0, false
		}
		num, den := order.Uint32(d[:4]), order.Uint32(d[4:])
		if den == 0 {
			return 0, false
		}
		return num / den, true
	default:
		f.warnf("tag 0x%x: unexpected type %d for U32", tag, e.Type)
		return 0, false
	}
}

// Float reads tag as a float64: Rational/SRational divide, Float/Double
// widen, and integer types widen through U32.
func (f *FieldAccess) Float(tag uint16) (float64, bool) {
	e, ok := f.dir.Get(tag)
	if !ok {
		return 0, false
	}
	d, ok := f.data(e)
	if !ok {
		return 0, false
	}
	order := f.order()
	switch e.Type {
	case TypeRational:
		if len(d) < 8 {
			return 0, false
		}
		num, den := order.Uint32(d[:4]), order.Uint32(d[4:])
		if den == 0 {
			return 0, false
		}
		return float64(num) / float64(den), true
	case TypeSRational:
		if len(d) < 8 {
			return 0, false
		}
		num, den := int32(order.Uint32(d[:4])), int32(order.Uint32(d[4:]))
		if den == 0 {
			return 0, false
		}
		return float64(num) / float64(den), true
	case TypeFloat:
		if len(d) < 4 {
			return 0, false
		}
		return float64(math.Float32frombits(order.Uint32(d))), true
	case TypeDouble:
		if len(d) < 8 {
			return 0, false
		}
		return math.Float64frombits(order.Uint64(d)), true
	default:
		v, ok := f.U32(tag)
		return float64(v), ok
	}
}

// FloatArray reads an array-of-rational tag as an array of float64.
func (f *FieldAccess) FloatArray(tag uint16) ([]float64, bool) {
	e, ok := f.dir.Get(tag)
	if !ok {
		return nil, false
	}
	d, ok := f.data(e)
	if !ok {
		return nil, false
	}
	order := f.order()
	unit := entryUnitSize[e.Type]
	if unit == 0 {
		return nil, false
	}
	n := int(e.Count)
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		off := i * int(unit)
		if off+int(unit) > len(d) {
			break
		}
		switch e.Type {
		case TypeRational:
			num, den := order.Uint32(d[off:]), order.Uint32(d[off+4:])
			if den == 0 {
				out = append(out, 0)
			} else {
				out = append(out, float64(num)/float64(den))
			}
		case TypeSRational:
			num, den := int32(order.Uint32(d[off:])), int32(order.Uint32(d[off+4:]))
			if den == 0 {
				out = append(out, 0)
			} else {
				out = append(out, float64(num)/float64(den))
			}
		case TypeShort, TypeSShort:
			out = append(out, float64(order.Uint16(d[off:])))
		case TypeLong, TypeSLong:
			out = append(out, float64(order.Uint32(d[off:])))
		case TypeByte, TypeSByte:
			out = append(out, float64(d[off]))
		default:
			f.warnf("tag 0x%x: unexpected type %d for FloatArray", tag, e.Type)
			return nil, false
		}
	}
	return out, true
}

// U32Array widens a Byte/Short/Long array to []uint32.
func (f *FieldAccess) U32Array(tag uint16) ([]uint32, bool) {
	e, ok := f.dir.Get(tag)
	if !ok {
		return nil, false
	}
	d, ok := f.data(e)
	if !ok {
		return nil, false
	}
	order := f.order()
	n := int(e.Count)
	out := make([]uint32, 0, n)
	switch e.Type {
	case TypeByte, TypeSByte, TypeUndefined:
		for i := 0; i < n && i < len(d); i++ {
			out = append(out, uint32(d[i]))
		}
	case TypeShort, TypeSShort:
		for i := 0; i < n; i++ {
			if (i+1)*2 > len(d) {
				break
			}
			out = append(out, uint32(order.Uint16(d[i*2:])))
		}
	case TypeLong, TypeSLong:
		for i := 0; i < n; i++ {
			if (i+1)*4 > len(d) {
				break
			}
			out = append(out, order.Uint32(d[i*4:]))
		}
	default:
		f.warnf("tag 0x%x: unexpected type %d for U32Array", tag, e.Type)
		return nil, false
	}
	return out, true
}

// Ascii reads tag as a NUL-trimmed ASCII string.
func (f *FieldAccess) Ascii(tag uint16) (string, bool) {
	e, ok := f.dir.Get(tag)
	if !ok {
		return "", false
	}
	if e.Type != TypeAscii {
		f.warnf("tag 0x%x: expected Ascii, got %d", tag, e.Type)
		return "", false
	}
	d, ok := f.data(e)
	if !ok {
		return "", false
	}
	s := string(trimBytesNulls(d))
	return strings.TrimRight(s, " "), true
}

// LegacyAscii reads tag as a string the same way Ascii does, but falls back
// to decoding the raw bytes as Windows-1252 when they aren't valid UTF-8.
// Some Pentax and Olympus MakerNote string fields (lens names, comment
// slots) were written on hardware that never considered encoding beyond
// the codepage its firmware shipped with.
func (f *FieldAccess) LegacyAscii(tag uint16) (string, bool) {
	e, ok := f.dir.Get(tag)
	if !ok {
		return "", false
	}
	d, ok := f.data(e)
	if !ok {
		return "", false
	}
	trimmed := trimBytesNulls(d)
	if utf8.Valid(trimmed) {
		return strings.TrimRight(string(trimmed), " "), true
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(trimmed)
	if err != nil {
		return "", false
	}
	return strings.TrimRight(string(decoded), " "), true
}

// Bytes reads tag as a raw byte slice, whatever its declared type.
func (f *FieldAccess) Bytes(tag uint16) ([]byte, bool) {
	e, ok := f.dir.Get(tag)
	if !ok {
		return nil, false
	}
	return f.data(e)
}

func trimBytesNulls(b []byte) []byte {
	var lo, hi int
	for lo = 0; lo < len(b) && b[lo] == 0; lo++ {
	}
	for hi = len(b) - 1; hi >= 0 && b[hi] == 0; hi-- {
	}
	if lo > hi {
		return nil
	}
	return b[lo : hi+1]
}
