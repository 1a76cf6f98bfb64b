// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

// Olympus ORF (spec 4.12): a pure-TIFF container. Some bodies write a
// thumbnail whose JPEG SOI leads with 0xEE instead of 0xFF; tiffParserBase
// already flags that patch from the VendorOlympus tag passed to
// openTIFFBase.
type orfParser struct {
	*tiffParserBase
}

func openORF(view *View) (Parser, error) {
	base, err := openTIFFBase(view, nil, VendorOlympus, false, false)
	if err != nil {
		return nil, err
	}
	return &orfParser{base}, nil
}

var olympusModelIDs = map[string]uint32{
	"E-M1": 0x0001,
}

func (p *orfParser) IdentifyID() (TypeId, error) {
	if len(p.mainDirs) == 0 {
		return TypeId{Vendor: VendorOlympus}, ErrNotFound
	}
	fa := NewFieldAccess(p.c, p.mainDirs[0], 0, nil)
	model, ok := fa.LegacyAscii(tagModelTIFF)
	if !ok {
		return TypeId{Vendor: VendorOlympus}, ErrNotFound
	}
	if id, ok := olympusModelIDs[model]; ok {
		return TypeId{Vendor: VendorOlympus, Model: id}, nil
	}
	return TypeId{Vendor: VendorOlympus}, ErrNotFound
}

func (p *orfParser) LoadRawData(skipDecompress bool) (*RawImage, error) {
	return p.loadRawData(RawDataOptions{SkipDecompress: skipDecompress})
}

func (p *orfParser) BuiltinColorMatrix() (CameraColorMatrix, bool) {
	id, err := p.IdentifyID()
	if err != nil {
		return CameraColorMatrix{}, false
	}
	return BuiltinColorMatrix(id)
}
