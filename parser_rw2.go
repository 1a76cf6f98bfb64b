// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

// Panasonic RW2/RWL (spec 4.1): a TIFF container with a non-standard
// magic ("IIU\0" instead of "II*\0"), otherwise handled through the
// shared TIFF base.
type rw2Parser struct {
	*tiffParserBase
}

// rw2MagicCheck recognizes Panasonic's "IIU\0" magic as little-endian,
// falling back to the standard TIFF magics for files that use them.
func rw2MagicCheck(magic [4]byte) Endian {
	if magic[0] == 'I' && magic[1] == 'I' && magic[2] == 'U' && magic[3] == 0 {
		return Little
	}
	return DefaultMagicCheck(magic)
}

func openRW2(view *View) (Parser, error) {
	base, err := openTIFFBase(view, rw2MagicCheck, VendorPanasonic, false, false)
	if err != nil {
		return nil, err
	}
	return &rw2Parser{base}, nil
}

var panasonicModelIDs = map[string]uint32{
	"DMC-GH3": 0x0001,
}

func (p *rw2Parser) IdentifyID() (TypeId, error) {
	if len(p.mainDirs) == 0 {
		return TypeId{Vendor: VendorPanasonic}, ErrNotFound
	}
	fa := NewFieldAccess(p.c, p.mainDirs[0], 0, nil)
	model, ok := fa.Ascii(tagModelTIFF)
	if !ok {
		return TypeId{Vendor: VendorPanasonic}, ErrNotFound
	}
	if id, ok := panasonicModelIDs[model]; ok {
		return TypeId{Vendor: VendorPanasonic, Model: id}, nil
	}
	return TypeId{Vendor: VendorPanasonic}, ErrNotFound
}

func (p *rw2Parser) LoadRawData(skipDecompress bool) (*RawImage, error) {
	return p.loadRawData(RawDataOptions{SkipDecompress: skipDecompress})
}

func (p *rw2Parser) BuiltinColorMatrix() (CameraColorMatrix, bool) {
	id, err := p.IdentifyID()
	if err != nil {
		return CameraColorMatrix{}, false
	}
	return BuiltinColorMatrix(id)
}
