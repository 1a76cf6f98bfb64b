// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import "time"

// CIFFTag identifies a CIFF record's meaning. Only the tags this engine
// consumes (camera identification, raw/JPEG location, Exif-surface
// synthesis) are named; everything else reads back as CIFFTagOther.
type CIFFTag uint16

const (
	ciffStorageLocMask = 0xc000
	ciffFormatMask     = 0x3800
	ciffTagCodeMask    = 0x3fff
)

const (
	CIFFTagNullRecord           CIFFTag = 0x0000
	CIFFTagColourInfo1          CIFFTag = 0x0032
	CIFFTagFileDescription      CIFFTag = 0x0805
	CIFFTagRawMakeModel         CIFFTag = 0x080a
	CIFFTagFirmwareVersion      CIFFTag = 0x080b
	CIFFTagOwnerName            CIFFTag = 0x0810
	CIFFTagImageType            CIFFTag = 0x0815
	CIFFTagOriginalFileName     CIFFTag = 0x0816
	CIFFTagThumbnailFileName    CIFFTag = 0x0817
	CIFFTagFocalLength          CIFFTag = 0x1029
	CIFFTagShotInfo             CIFFTag = 0x102a
	CIFFTagCameraSettings       CIFFTag = 0x102d
	CIFFTagWhiteSample          CIFFTag = 0x1030
	CIFFTagSensorInfo           CIFFTag = 0x1031
	CIFFTagWhiteBalanceTable    CIFFTag = 0x10a9
	CIFFTagTargetDistanceSet    CIFFTag = 0x1807
	CIFFTagSerialNumber         CIFFTag = 0x180b
	CIFFTagCapturedTime         CIFFTag = 0x180e
	CIFFTagCanonModelID         CIFFTag = 0x1834
	CIFFTagDecoderTable         CIFFTag = 0x1835
	CIFFTagRawImageData         CIFFTag = 0x2005
	CIFFTagJpegImage            CIFFTag = 0x2007
	CIFFTagJpegThumbnail        CIFFTag = 0x2008
	CIFFTagExifInformation      CIFFTag = 0x300b
	CIFFTagOther                CIFFTag = 0xffff
)

// CIFFRecordType is the scalar storage format encoded in a record's middle
// bits.
type CIFFRecordType int

const (
	CIFFByte CIFFRecordType = iota
	CIFFAscii
	CIFFWord
	CIFFDWord
	CIFFByte2
	CIFFHeap1
	CIFFHeap2
	CIFFUnknownRecordType
)

func ciffRecordTypeOf(typeCode uint16) CIFFRecordType {
	switch typeCode & ciffFormatMask {
	case 0x0000:
		return CIFFByte
	case 0x0800:
		return CIFFAscii
	case 0x1000:
		return CIFFWord
	case 0x1800:
		return CIFFDWord
	case 0x2000:
		return CIFFByte2
	case 0x2800:
		return CIFFHeap1
	case 0x3000:
		return CIFFHeap2
	default:
		return CIFFUnknownRecordType
	}
}

func (t CIFFRecordType) isHeap() bool {
	return t == CIFFHeap1 || t == CIFFHeap2
}

// CIFFRecord is one entry of a CIFF heap: either 8 bytes stored inline
// (InRec) or a (offset, length) pointer into the heap region (InHeap).
type CIFFRecord struct {
	Tag      CIFFTag
	Type     CIFFRecordType
	inline   [8]byte
	inRec    bool
	heapPos  uint32
	heapLen  uint32
}

// IsInline reports whether the record's value is stored inline (≤8 bytes).
func (r *CIFFRecord) IsInline() bool { return r.inRec }

// HeapLocation returns the (offset, length) pair for a non-inline record.
func (r *CIFFRecord) HeapLocation() (offset, length uint32) { return r.heapPos, r.heapLen }

// CIFFHeap is a two-level record structure keyed by tag. Records whose type
// is Heap1/Heap2 are themselves recursively-parsed sub-heaps, resolved on
// demand via (*CIFFContainer).SubHeap.
type CIFFHeap struct {
	Pos     uint32
	Len     uint32
	records map[CIFFTag]*CIFFRecord
}

func (h *CIFFHeap) Get(tag CIFFTag) (*CIFFRecord, bool) {
	r, ok := h.records[tag]
	return r, ok
}

func (h *CIFFHeap) Records() map[CIFFTag]*CIFFRecord { return h.records }

// CIFFContainer reads Canon's CRW heap format: a small fixed header
// ("II"/"MM" + "HEAP" + "CCDR" + version), followed by a root heap whose
// directory sits at the 4-byte trailer-pointed offset from the heap's end.
type CIFFContainer struct {
	view   *View
	Endian Endian
	Root   *CIFFHeap
}

// LoadCIFFContainer reads the CRW file header and the root heap's record
// directory. view must be positioned over the whole file (offset 0 = byte
// order sigil).
func LoadCIFFContainer(view *View) (c *CIFFContainer, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && e == errStop {
				err = newFormatErrorf("ciff: truncated header")
				return
			}
			panic(r)
		}
	}()

	if err := view.Seek(0); err != nil {
		return nil, newFormatError(err)
	}
	var sigil [2]byte
	if err := view.ReadBytes(sigil[:]); err != nil {
		return nil, newFormatError(err)
	}
	var endian Endian
	switch {
	case sigil[0] == 'I' && sigil[1] == 'I':
		endian = Little
	case sigil[0] == 'M' && sigil[1] == 'M':
		endian = Big
	default:
		return nil, newFormatErrorf("ciff: bad byte-order sigil")
	}
	view.SetByteOrder(endian)

	heapOffset := view.ReadU32()

	var typ, sub [4]byte
	if err := view.ReadBytes(typ[:]); err != nil {
		return nil, newFormatError(err)
	}
	if err := view.ReadBytes(sub[:]); err != nil {
		return nil, newFormatError(err)
	}
	if string(typ[:]) != "HEAP" || string(sub[:]) != "CCDR" {
		return nil, newFormatErrorf("ciff: not a HEAP/CCDR file")
	}
	_ = view.ReadU32() // version, unused

	c = &CIFFContainer{view: view, Endian: endian}
	root, err := c.readHeap(heapOffset, view.Length()-int64(heapOffset))
	if err != nil {
		return nil, err
	}
	c.Root = root
	return c, nil
}

// View returns the container's underlying view.
func (c *CIFFContainer) View() *View { return c.view }

// readHeap parses the heap at (pos, len): the directory lives at
// pos + heapStart, where heapStart is a u32 trailer stored at the heap's
// last 4 bytes.
func (c *CIFFContainer) readHeap(pos, length int64) (h *CIFFHeap, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && e == errStop {
				err = newFormatErrorf("ciff: truncated heap at %d", pos)
				return
			}
			panic(r)
		}
	}()

	if length < 4 {
		return nil, newFormatErrorf("ciff: heap length too short")
	}
	if pos+length > c.view.Length() {
		return nil, newFormatErrorf("ciff: heap too big")
	}

	if err := c.view.Seek(pos + length - 4); err != nil {
		return nil, newFormatError(err)
	}
	heapStart := c.view.ReadU32()
	if int64(heapStart) > length-4 {
		return nil, newFormatErrorf("ciff: heap start out of range")
	}

	if err := c.view.Seek(pos + int64(heapStart)); err != nil {
		return nil, newFormatError(err)
	}
	numRecords := c.view.ReadU16()

	h = &CIFFHeap{Pos: uint32(pos), Len: uint32(length), records: make(map[CIFFTag]*CIFFRecord, numRecords)}
	for range int(numRecords) {
		rec := c.readRecord(uint32(pos))
		h.records[rec.Tag] = rec
	}
	return h, nil
}

func (c *CIFFContainer) readRecord(base uint32) *CIFFRecord {
	v := c.view
	typeCode := v.ReadU16()
	rec := &CIFFRecord{
		Tag:  ciffTagFromCode(typeCode),
		Type: ciffRecordTypeOf(typeCode),
	}
	if typeCode&ciffStorageLocMask != 0 {
		copy(rec.inline[:], v.readN(8))
		rec.inRec = true
	} else {
		length := v.ReadU32()
		offset := v.ReadU32() + base
		rec.heapPos, rec.heapLen = offset, length
	}
	return rec
}

func ciffTagFromCode(typeCode uint16) CIFFTag {
	code := CIFFTag(typeCode & ciffTagCodeMask)
	switch code {
	case CIFFTagNullRecord, CIFFTagColourInfo1, CIFFTagFileDescription, CIFFTagRawMakeModel,
		CIFFTagFirmwareVersion, CIFFTagOwnerName, CIFFTagImageType, CIFFTagOriginalFileName,
		CIFFTagThumbnailFileName, CIFFTagFocalLength, CIFFTagShotInfo, CIFFTagCameraSettings,
		CIFFTagWhiteSample, CIFFTagSensorInfo, CIFFTagWhiteBalanceTable, CIFFTagTargetDistanceSet,
		CIFFTagSerialNumber, CIFFTagCapturedTime, CIFFTagCanonModelID, CIFFTagDecoderTable,
		CIFFTagRawImageData, CIFFTagJpegImage, CIFFTagJpegThumbnail, CIFFTagExifInformation:
		return code
	default:
		return CIFFTagOther
	}
}

// SubHeap resolves a Heap1/Heap2 record into its parsed sub-heap.
func (c *CIFFContainer) SubHeap(rec *CIFFRecord) (*CIFFHeap, error) {
	if rec.inRec || !rec.Type.isHeap() {
		return nil, newFormatErrorf("ciff: record is not a heap")
	}
	return c.readHeap(int64(rec.heapPos), int64(rec.heapLen))
}

// Bytes reads a record's raw bytes, whether inline or heap-stored.
func (c *CIFFContainer) Bytes(rec *CIFFRecord) ([]byte, error) {
	if rec.inRec {
		return append([]byte(nil), rec.inline[:]...), nil
	}
	sub, err := CreateSubview(c.view, int64(rec.heapPos))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, rec.heapLen)
	if err := sub.ReadBytes(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Ascii reads an Ascii-typed record as a NUL-trimmed string.
func (c *CIFFContainer) Ascii(rec *CIFFRecord) (string, error) {
	b, err := c.Bytes(rec)
	if err != nil {
		return "", err
	}
	return string(trimBytesNulls(b)), nil
}

// Word reads a Word-typed (u16) record as a slice, widening from inline or
// heap storage per the view's endian.
func (c *CIFFContainer) Word(rec *CIFFRecord) ([]uint16, error) {
	b, err := c.Bytes(rec)
	if err != nil {
		return nil, err
	}
	order := c.Endian.order()
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = order.Uint16(b[i*2:])
	}
	return out, nil
}

// DWord reads a DWord-typed (u32) record as a slice.
func (c *CIFFContainer) DWord(rec *CIFFRecord) ([]uint32, error) {
	b, err := c.Bytes(rec)
	if err != nil {
		return nil, err
	}
	order := c.Endian.order()
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = order.Uint32(b[i*4:])
	}
	return out, nil
}

// SynthesizeExifSurface translates the CIFF records the spec names into an
// Exif-like, ad hoc key/value surface: FocalLength, FileDescription,
// OriginalFileName, TargetDistanceSetting, OwnerName, SerialNumber,
// CapturedTime (Unix seconds → "YYYY:MM:DD HH:MM:SS" ASCII), and the raw
// CameraSettings word array. Missing records are simply absent from the
// returned map rather than an error, matching the "NotFound is benign"
// propagation policy.
func (c *CIFFContainer) SynthesizeExifSurface(h *CIFFHeap) map[string]any {
	out := make(map[string]any)
	if rec, ok := h.Get(CIFFTagFocalLength); ok {
		if w, err := c.Word(rec); err == nil && len(w) > 1 {
			out["FocalLength"] = w[1]
		}
	}
	if rec, ok := h.Get(CIFFTagFileDescription); ok {
		if s, err := c.Ascii(rec); err == nil {
			out["FileDescription"] = s
		}
	}
	if rec, ok := h.Get(CIFFTagOriginalFileName); ok {
		if s, err := c.Ascii(rec); err == nil {
			out["OriginalFileName"] = s
		}
	}
	if rec, ok := h.Get(CIFFTagTargetDistanceSet); ok {
		if s, err := c.Ascii(rec); err == nil {
			out["TargetDistanceSetting"] = s
		}
	}
	if rec, ok := h.Get(CIFFTagOwnerName); ok {
		if s, err := c.Ascii(rec); err == nil {
			out["OwnerName"] = s
		}
	}
	if rec, ok := h.Get(CIFFTagSerialNumber); ok {
		if d, err := c.DWord(rec); err == nil && len(d) > 0 {
			out["SerialNumber"] = d[0]
		}
	}
	if rec, ok := h.Get(CIFFTagCapturedTime); ok {
		if d, err := c.DWord(rec); err == nil && len(d) > 0 {
			out["CapturedTime"] = formatCIFFTime(d[0])
		}
	}
	if rec, ok := h.Get(CIFFTagCameraSettings); ok {
		if w, err := c.Word(rec); err == nil {
			out["CameraSettings"] = w
		}
	}
	return out
}

// formatCIFFTime renders a Unix-seconds timestamp in Exif's
// "YYYY:MM:DD HH:MM:SS" ASCII form without pulling in a formatting
// dependency beyond the standard library's time package.
func formatCIFFTime(unixSeconds uint32) string {
	return time.Unix(int64(unixSeconds), 0).UTC().Format("2006:01:02 15:04:05")
}
