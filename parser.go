// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

// Parser is the capability set a format-specific reader implements (spec 9
// design notes: "container, identify_id, thumbnails, ifd(kind),
// load_rawdata(skip_decompress), builtin_color_matrix"). OpenParser picks a
// concrete implementation by Type; callers never need a type switch of
// their own.
type Parser interface {
	// View returns the underlying byte view the parser was opened against
	// (the "container" capability every implementation shares).
	View() *View
	// IdentifyID returns the camera's TypeId, or a Vendor-only TypeId (plus
	// ErrNotFound) when no model-identifying record could be located.
	IdentifyID() (TypeId, error)
	// Thumbnails enumerates embedded preview images.
	Thumbnails() ([]Thumbnail, error)
	// IFD returns the directory playing the given role (KindMain, KindRaw,
	// KindExif, KindMakerNote) and the container it belongs to —
	// MakerNote/nested-TIFF directories may live in a sub-container distinct
	// from the one the rest of the file's directories belong to.
	IFD(kind IFDKind) (*Dir, *IFDContainer, error)
	// LoadRawData assembles the sensor payload, honoring skipDecompress.
	LoadRawData(skipDecompress bool) (*RawImage, error)
	// BuiltinColorMatrix looks up this camera's calibrated color matrix
	// from the built-in table, if this engine carries one.
	BuiltinColorMatrix() (CameraColorMatrix, bool)
}

// OpenParser opens view (positioned over the whole file) as a file of type
// t and returns the matching Parser implementation.
func OpenParser(view *View, t Type) (Parser, error) {
	switch t {
	case CR2:
		return openCR2(view)
	case CR3:
		return openCR3(view)
	case CRW:
		return openCRW(view)
	case NEF, NRW:
		return openNEF(view)
	case ARW:
		return openARW(view)
	case SR2:
		return openSR2(view)
	case ORF:
		return openORF(view)
	case PEF:
		return openPEF(view)
	case RAF:
		return openRAF(view)
	case RW2, RWL:
		return openRW2(view)
	case MRWType:
		return openMRW(view)
	case DNG:
		return openDNG(view)
	case ERF:
		return openERF(view)
	default:
		return nil, ErrNotSupported
	}
}

// tiffParserBase is the shared implementation every pure-TIFF-based format
// (CR2, NEF, ARW, SR2, ORF, PEF, RW2, DNG, ERF) embeds: directory-chain
// loading, thumbnail enumeration, Exif/MakerNote resolution, and raw-strip
// location. Vendor-specific parsers add IdentifyID/BuiltinColorMatrix and
// any quirks LoadRawData needs layered on top.
type tiffParserBase struct {
	view     *View
	c        *IFDContainer
	mainDirs []*Dir

	vendor      Vendor
	isCanonFile bool
	isDNGFile   bool
}

// openTIFFBase loads a TIFF/IFD container (with an optional non-standard
// magic check, e.g. RW2's "IIU\0") and walks its main directory chain.
func openTIFFBase(view *View, check MagicCheck, vendor Vendor, isCanonFile, isDNGFile bool) (*tiffParserBase, error) {
	c, err := LoadIFDContainer(view, check)
	if err != nil {
		return nil, err
	}
	first, err := c.FirstOffset()
	if err != nil {
		return nil, err
	}
	dirs, err := c.Chain(first, KindMain)
	if err != nil && len(dirs) == 0 {
		return nil, err
	}
	return &tiffParserBase{
		view: view, c: c, mainDirs: dirs,
		vendor: vendor, isCanonFile: isCanonFile, isDNGFile: isDNGFile,
	}, nil
}

func (p *tiffParserBase) View() *View { return p.view }

// Thumbnails enumerates thumbnail candidates across the main chain and each
// directory's SubIFDs, per the container design's enumeration rule.
func (p *tiffParserBase) Thumbnails() ([]Thumbnail, error) {
	// Olympus and Epson sometimes write a thumbnail whose JPEG SOI marker
	// leads with 0xEE rather than 0xFF; preserve the one-byte patch here
	// rather than guessing at decode time.
	patch := p.vendor == VendorOlympus || p.vendor == VendorEpson

	var out []Thumbnail
	for _, d := range p.mainDirs {
		if th, ok := ThumbnailFromDir(p.c, d, 0); ok {
			th.PatchSOI = patch
			out = append(out, th)
		}
		subs, err := p.c.SubIFDs(d, false)
		if err != nil {
			continue
		}
		for _, s := range subs {
			if th, ok := ThumbnailFromDir(p.c, s, 0); ok {
				th.PatchSOI = patch
				out = append(out, th)
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (p *tiffParserBase) IFD(kind IFDKind) (*Dir, *IFDContainer, error) {
	switch kind {
	case KindMain:
		if len(p.mainDirs) == 0 {
			return nil, nil, ErrNotFound
		}
		return p.mainDirs[0], p.c, nil
	case KindRaw:
		return locateRawDirTIFF(p.c, p.mainDirs)
	case KindExif:
		exifDir, _, _, err := p.exifAndMakerNote()
		if exifDir == nil {
			return nil, nil, err
		}
		return exifDir, p.c, nil
	case KindMakerNote:
		_, mnDir, mnContainer, err := p.exifAndMakerNote()
		if mnDir == nil {
			return nil, nil, err
		}
		return mnDir, mnContainer, nil
	default:
		return nil, nil, ErrNotFound
	}
}

func (p *tiffParserBase) exifAndMakerNote() (exifDir, mnDir *Dir, mnContainer *IFDContainer, err error) {
	if len(p.mainDirs) == 0 {
		return nil, nil, nil, ErrNotFound
	}
	return openExifAndMakerNote(p.c, p.mainDirs[0], p.isCanonFile, p.isDNGFile)
}

// loadRawData finds the raw strip/tile directory and assembles a RawImage
// through the shared rawdata.go path.
func (p *tiffParserBase) loadRawData(opts RawDataOptions) (*RawImage, error) {
	dir, c, err := locateRawDirTIFF(p.c, p.mainDirs)
	if err != nil {
		return nil, err
	}
	return GetRawData(c, dir, 0, opts)
}

// locateRawDirTIFF finds the directory holding the sensor strip/tile among
// dirs and their SubIFDs: the first directory with nonzero image dimensions,
// BitsPerSample above 8 (ruling out an 8-bit RGB thumbnail/preview strip per
// the same rule ifd_thumbnails.go applies), and a StripOffsets or
// TileOffsets tag.
func locateRawDirTIFF(c *IFDContainer, dirs []*Dir) (*Dir, *IFDContainer, error) {
	for _, d := range dirs {
		if looksLikeRawDir(c, d) {
			return d, c, nil
		}
		subs, err := c.SubIFDs(d, false)
		if err != nil {
			continue
		}
		for _, s := range subs {
			if looksLikeRawDir(c, s) {
				return s, c, nil
			}
		}
	}
	return nil, nil, ErrNotFound
}

func looksLikeRawDir(c *IFDContainer, d *Dir) bool {
	if d.Kind == KindMakerNote || d.Kind == KindExif || d.Kind == KindGpsInfo {
		return false
	}
	fa := NewFieldAccess(c, d, 0, nil)
	w, ok := fa.U32(tagImageWidth)
	if !ok || w == 0 {
		return false
	}
	h, ok := fa.U32(tagImageLength)
	if !ok || h == 0 {
		return false
	}
	if bps, ok := fa.U32Array(tagBitsPerSample); ok && len(bps) > 0 && bps[0] <= 8 {
		return false
	}
	_, hasStrips := fa.U32Array(tagStripOffsets)
	_, hasTiles := fa.U32Array(tagTileOffsets)
	return hasStrips || hasTiles
}

// Exif/MakerNote tags shared across every TIFF-based parser.
const (
	tagExifIFDPointer = 0x8769
	tagMakerNoteTag   = 0x927c
	tagMakeTIFF       = 0x010f
	tagModelTIFF      = 0x0110
)

// openExifAndMakerNote locates mainDir's Exif sub-IFD and, within it, a
// MakerNote entry; sniffs the MakerNote's dialect from its leading bytes
// (or the Make string/isCanonFile/isDNGFile per SniffMakerNote's rules) and
// resolves its inner directory. Any stage being absent is reported as
// ErrNotFound rather than a hard failure: a file's Exif/MakerNote data is
// always optional from the raw-decoding path's point of view.
func openExifAndMakerNote(c *IFDContainer, mainDir *Dir, isCanonFile, isDNGFile bool) (exifDir, mnDir *Dir, mnContainer *IFDContainer, err error) {
	fa := NewFieldAccess(c, mainDir, 0, nil)
	exifOff, ok := fa.U32(tagExifIFDPointer)
	if !ok {
		return nil, nil, nil, ErrNotFound
	}
	exifDir, err = c.ReadDir(int64(exifOff), KindExif)
	if err != nil {
		return nil, nil, nil, err
	}

	efa := NewFieldAccess(c, exifDir, 0, nil)
	mnOff, ok := efa.U32(tagMakerNoteTag)
	if !ok {
		return exifDir, nil, nil, ErrNotFound
	}

	makeStr, _ := fa.Ascii(tagMakeTIFF)
	head, ok := peekAt(c.View(), int64(mnOff), 16)
	if !ok {
		return exifDir, nil, nil, ErrNotFound
	}
	layout, ok := SniffMakerNote(head, makeStr, isCanonFile, isDNGFile)
	if !ok {
		return exifDir, nil, nil, ErrNotFound
	}
	mnDir, mnContainer, err = ResolveMakerNote(c, int64(mnOff), layout)
	if err != nil {
		return exifDir, nil, nil, err
	}
	return exifDir, mnDir, mnContainer, nil
}
