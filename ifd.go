// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import (
	"path"
)

// EntryType is one of the recognized TIFF/Exif scalar types.
//
//go:generate stringer -type=EntryType
type EntryType uint16

const (
	TypeByte      EntryType = 1
	TypeAscii     EntryType = 2
	TypeShort     EntryType = 3
	TypeLong      EntryType = 4
	TypeRational  EntryType = 5
	TypeSByte     EntryType = 6
	TypeUndefined EntryType = 7
	TypeSShort    EntryType = 8
	TypeSLong     EntryType = 9
	TypeSRational EntryType = 10
	TypeFloat     EntryType = 11
	TypeDouble    EntryType = 12
	// TypeError sentinel-marks a parse failure without aborting the
	// directory it belongs to.
	TypeError EntryType = 0xffff
)

// entryUnitSize gives the natural unit size in bytes for each scalar type.
var entryUnitSize = map[EntryType]uint32{
	TypeByte:      1,
	TypeAscii:     1,
	TypeShort:     2,
	TypeLong:      4,
	TypeRational:  8,
	TypeSByte:     1,
	TypeUndefined: 1,
	TypeSShort:    2,
	TypeSLong:     4,
	TypeSRational: 8,
	TypeFloat:     4,
	TypeDouble:    8,
}

// IFDKind classifies what role a directory plays within a file.
//
//go:generate stringer -type=IFDKind
type IFDKind uint8

const (
	KindMain IFDKind = iota
	KindRaw
	KindExif
	KindMakerNote
	KindSubIfd
	KindGpsInfo
	KindOther
)

// Entry is one (tag, type, count, data) record of an IFD. data is either
// inline (when count*unitSize <= 4), materialized external bytes loaded on
// demand, or — for Undefined payloads whose semantics are vendor-specific
// — a raw, not-yet-dereferenced offset.
type Entry struct {
	Tag   uint16
	Type  EntryType
	Count uint32

	inline   [4]byte
	isOffset bool
	offset   uint32

	data   []byte
	loaded bool
}

// ValueLen returns the total byte length of the entry's value.
func (e *Entry) ValueLen() uint32 {
	return entryUnitSize[e.Type] * e.Count
}

// RawOffset returns the entry's raw 4-byte field interpreted as an offset
// under endian, for Undefined-typed entries whose payload a vendor-
// specific parser must dereference itself (e.g. a MakerNote sub-block).
func (e *Entry) RawOffset(endian Endian) uint32 {
	if e.isOffset {
		return e.offset
	}
	return endian.order().Uint32(e.inline[:])
}

// IsOffset reports whether the entry's value lives out-of-line (i.e. it
// did not fit the 4-byte inline field).
func (e *Entry) IsOffset() bool { return e.isOffset }

// Dir is an ordered TIFF-style Image File Directory: endian, kind, the
// offset of the next directory in its chain (0 terminates), MakerNote
// dialect/base bookkeeping, and lazily-populated sub-directories.
type Dir struct {
	Endian     Endian
	Kind       IFDKind
	NextOffset uint32

	// MakerNoteTag names the vendor dialect (e.g. "Nikon3") once sniffed;
	// empty until MakerNote dispatch has run.
	MakerNoteTag string
	// MakerNoteBase is added to inner offsets when dereferencing entries
	// found inside a MakerNote's inner directory.
	MakerNoteBase int64

	order   []uint16
	entries map[uint16]*Entry

	subDirs map[uint16][]*Dir

	// selfOffset is this directory's absolute offset within its
	// container, used to key (container, offset) identity per the
	// cyclic-graph design note: directories are copyable values, never
	// back-references.
	selfOffset int64
}

func newDir(kind IFDKind, endian Endian, selfOffset int64) *Dir {
	return &Dir{
		Kind:       kind,
		Endian:     endian,
		entries:    make(map[uint16]*Entry),
		selfOffset: selfOffset,
	}
}

// Get returns the entry for tag, if present.
func (d *Dir) Get(tag uint16) (*Entry, bool) {
	e, ok := d.entries[tag]
	return e, ok
}

// Set inserts or replaces the entry for tag. Re-inserting replaces, per
// the directory's uniqueness invariant.
func (d *Dir) Set(tag uint16, e *Entry) {
	if _, exists := d.entries[tag]; !exists {
		d.order = append(d.order, tag)
	}
	d.entries[tag] = e
}

// Tags returns the directory's tags in insertion order.
func (d *Dir) Tags() []uint16 {
	return d.order
}

// Len returns the number of entries in the directory.
func (d *Dir) Len() int { return len(d.entries) }

// Offset returns the directory's absolute offset within its container.
func (d *Dir) Offset() int64 { return d.selfOffset }

// IFDContainer reads TIFF-style Image File Directory chains: endianness
// detection, lazy entry-data loading, sub-IFD traversal, and nested
// MakerNote recognition by prefix sniffing.
type IFDContainer struct {
	view *View
}

// MagicCheck lets a caller inject a non-standard magic header recognizer,
// e.g. Panasonic RW2's "IIU\0". It receives the 4 magic bytes and
// returns the endian to use, or Unset to reject the file.
type MagicCheck func(magic [4]byte) Endian

// DefaultMagicCheck recognizes the two standard TIFF magics:
// "II\x2a\0" (Little) and "MM\0\x2a" (Big).
func DefaultMagicCheck(magic [4]byte) Endian {
	switch {
	case magic[0] == 'I' && magic[1] == 'I' && magic[2] == 0x2a && magic[3] == 0:
		return Little
	case magic[0] == 'M' && magic[1] == 'M' && magic[2] == 0 && magic[3] == 0x2a:
		return Big
	default:
		return Unset
	}
}

// LoadIFDContainer reads the 4-byte magic header at the front of view and
// returns a container positioned to read its directory chain. check
// defaults to DefaultMagicCheck when nil.
func LoadIFDContainer(view *View, check MagicCheck) (*IFDContainer, error) {
	if check == nil {
		check = DefaultMagicCheck
	}
	if err := view.Seek(0); err != nil {
		return nil, err
	}
	var magic [4]byte
	if err := view.ReadBytes(magic[:]); err != nil {
		return nil, newFormatError(err)
	}
	endian := check(magic)
	if endian == Unset {
		return nil, newFormatErrorf("ifd: unrecognized magic header % x", magic)
	}
	view.SetByteOrder(endian)
	return &IFDContainer{view: view}, nil
}

// View returns the container's underlying view.
func (c *IFDContainer) View() *View { return c.view }

// FirstOffset reads the pointer to the first directory, located at byte
// offset 4 in a standard TIFF header.
func (c *IFDContainer) FirstOffset() (uint32, error) {
	if err := c.view.Seek(4); err != nil {
		return 0, err
	}
	return c.view.ReadU32E()
}

// ReadDir parses a single directory at offset: count, then that many
// 12-byte entries, then the 4-byte next-pointer. kind is attached to the
// resulting Dir for later thumbnail/MakerNote dispatch decisions.
func (c *IFDContainer) ReadDir(offset int64, kind IFDKind) (dir *Dir, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && e == errStop {
				err = newFormatErrorf("ifd: truncated directory at offset %d", offset)
				return
			}
			panic(r)
		}
	}()

	if err := c.view.Seek(offset); err != nil {
		return nil, newFormatError(err)
	}

	dir = newDir(kind, c.view.ByteOrder(), offset)

	count := c.view.ReadU16()
	for range int(count) {
		e := c.readEntry()
		dir.Set(e.Tag, e)
	}

	next, err := c.view.ReadU32E()
	if err != nil {
		// A directory with no trailing next-pointer (truncated at EOF)
		// is still usable; it simply terminates the chain.
		next = 0
	}
	// Sony ARW legitimately points a "next" directory backward or at
	// itself in a couple of firmware revisions; it is stored as-is rather
	// than rejected, and nothing is logged about it.
	dir.NextOffset = next

	return dir, nil
}

func (c *IFDContainer) readEntry() *Entry {
	v := c.view
	tag := v.ReadU16()
	typ := EntryType(v.ReadU16())
	count := v.ReadU32()

	e := &Entry{Tag: tag, Type: typ, Count: count}

	size, ok := entryUnitSize[typ]
	if !ok {
		// Unknown type: keep the 4 raw bytes as an opaque offset and
		// mark the entry Error so directory parsing can continue.
		copy(e.inline[:], v.readN(4))
		e.Type = TypeError
		return e
	}

	valLen := size * count
	if valLen <= 4 {
		copy(e.inline[:], v.readN(4))
		e.loaded = true
		e.data = append([]byte(nil), e.inline[:valLen]...)
		return e
	}

	e.isOffset = true
	e.offset = v.ReadU32()
	return e
}

// Chain walks the directory chain starting at firstOffset, stopping when
// NextOffset is 0 or a directory fails to parse (in which case the chain
// so far is still returned, along with the error).
func (c *IFDContainer) Chain(firstOffset uint32, kind IFDKind) ([]*Dir, error) {
	var dirs []*Dir
	offset := int64(firstOffset)
	seen := map[int64]bool{}
	for offset != 0 {
		if seen[offset] {
			// A directory chain that loops back on itself; stop rather
			// than spin forever, keeping what's been read so far.
			break
		}
		seen[offset] = true
		dir, err := c.ReadDir(offset, kind)
		if err != nil {
			return dirs, err
		}
		dirs = append(dirs, dir)
		offset = int64(dir.NextOffset)
	}
	return dirs, nil
}

// LoadEntry materializes an out-of-line entry's data bytes from base+offset
// within the container's view. base is the MakerNote base offset (0 for
// ordinary IFD entries) added before dereferencing, per the design note
// that MakerNote base offsets are always passed explicitly. A failed load
// marks the entry Error and returns the error; the directory remains
// usable.
func (c *IFDContainer) LoadEntry(e *Entry, base int64) error {
	if e.loaded {
		return ErrAlreadyInited
	}
	if e.Type == TypeError {
		return newFormatErrorf("ifd: entry 0x%x previously failed to load", e.Tag)
	}
	valLen := e.ValueLen()
	data := make([]byte, valLen)
	err := c.view.PreservePos(func() error {
		if err := c.view.Seek(base + int64(e.offset)); err != nil {
			return err
		}
		return c.view.ReadBytes(data)
	})
	if err != nil {
		e.Type = TypeError
		return newFormatError(err)
	}
	e.data = data
	e.loaded = true
	return nil
}

// EntryData returns the entry's raw bytes, loading them on first access.
func (c *IFDContainer) EntryData(e *Entry, base int64) ([]byte, error) {
	if !e.loaded {
		if err := c.LoadEntry(e, base); err != nil {
			return nil, err
		}
	}
	return e.data, nil
}

// subIFDsTag is the standard TIFF SubIFDs tag (0x14A).
const subIFDsTag = 0x014a

// SubIFDs returns the sub-directories referenced by tag SubIFDs, parsing
// them lazily on first call and caching the result on dir. A bad sub-IFD
// offset terminates the sub-IFD walk but keeps dir itself usable, per the
// error-propagation policy.
func (c *IFDContainer) SubIFDs(dir *Dir, skip bool) ([]*Dir, error) {
	if skip {
		return nil, nil
	}
	if dir.subDirs == nil {
		dir.subDirs = map[uint16][]*Dir{}
	}
	if cached, ok := dir.subDirs[subIFDsTag]; ok {
		return cached, nil
	}
	e, ok := dir.Get(subIFDsTag)
	if !ok {
		return nil, ErrNotFound
	}
	data, err := c.EntryData(e, 0)
	if err != nil {
		return nil, err
	}
	order := dir.Endian.order()
	n := int(e.Count)
	var dirs []*Dir
	for i := 0; i < n; i++ {
		if (i+1)*4 > len(data) {
			break
		}
		off := order.Uint32(data[i*4:])
		d, err := c.ReadDir(int64(off), KindSubIfd)
		if err != nil {
			// Keep whatever sub-IFDs parsed before the bad offset.
			break
		}
		dirs = append(dirs, d)
	}
	dir.subDirs[subIFDsTag] = dirs
	return dirs, nil
}

// namespaceFor joins parent and kindName into a diagnostic namespace path,
// mirroring the teacher's path.Join-based namespace construction for
// nested IFDs (Exif, GPSInfo, Interop).
func namespaceFor(parent string, kindName string) string {
	return path.Join(parent, kindName)
}
