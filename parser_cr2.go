// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

// Canon CR2 (spec 4.12, SPEC_FULL.md section C): a pure-TIFF container, no
// CIFF heap. The raw strip lives in a SubIFD off tag 0x14A, Compression
// usually LJPEG. A raw 8-bit RGB strip that a handful of early 20D-era bodies
// leave mislabeled with a JPEG compression tag is dropped from the thumbnail
// list by ThumbnailFromDir, and locateRawDirTIFF does not select it as the
// raw directory because its BitsPerSample is 8; there is no CR2-specific
// code for it.
type cr2Parser struct {
	*tiffParserBase
}

func openCR2(view *View) (Parser, error) {
	base, err := openTIFFBase(view, nil, VendorCanon, true, false)
	if err != nil {
		return nil, err
	}
	return &cr2Parser{base}, nil
}

// tagCanonModelID is Canon's MakerNote tag 0x0010, a 32-bit model ID (spec 8
// scenario 4: 0x80000232 identifies the EOS 40D).
const tagCanonModelID = 0x0010

func (p *cr2Parser) IdentifyID() (TypeId, error) {
	_, mnDir, mnContainer, err := p.exifAndMakerNote()
	if mnDir == nil {
		return TypeId{Vendor: VendorCanon}, err
	}
	fa := NewFieldAccess(mnContainer, mnDir, mnDir.MakerNoteBase, nil)
	modelID, ok := fa.U32(tagCanonModelID)
	if !ok {
		return TypeId{Vendor: VendorCanon}, ErrNotFound
	}
	return TypeId{Vendor: VendorCanon, Model: modelID}, nil
}

func (p *cr2Parser) LoadRawData(skipDecompress bool) (*RawImage, error) {
	return p.loadRawData(RawDataOptions{SkipDecompress: skipDecompress})
}

func (p *cr2Parser) BuiltinColorMatrix() (CameraColorMatrix, bool) {
	id, err := p.IdentifyID()
	if err != nil {
		return CameraColorMatrix{}, false
	}
	return BuiltinColorMatrix(id)
}
