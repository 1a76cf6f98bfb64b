// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

// Epson ERF (spec 4.12): a pure-TIFF container. Some bodies write a
// thumbnail whose JPEG SOI leads with 0xEE instead of 0xFF; tiffParserBase
// already flags that patch from the VendorEpson tag passed to
// openTIFFBase.
type erfParser struct {
	*tiffParserBase
}

func openERF(view *View) (Parser, error) {
	base, err := openTIFFBase(view, nil, VendorEpson, false, false)
	if err != nil {
		return nil, err
	}
	return &erfParser{base}, nil
}

// IdentifyID always reports a vendor-only TypeId: this engine's built-in
// calibration table carries no Epson entry (cameradata.go), so there is no
// per-model slot to resolve the Model string into.
func (p *erfParser) IdentifyID() (TypeId, error) {
	return TypeId{Vendor: VendorEpson}, ErrNotFound
}

func (p *erfParser) LoadRawData(skipDecompress bool) (*RawImage, error) {
	return p.loadRawData(RawDataOptions{SkipDecompress: skipDecompress})
}

func (p *erfParser) BuiltinColorMatrix() (CameraColorMatrix, bool) {
	id, err := p.IdentifyID()
	if err != nil {
		return CameraColorMatrix{}, false
	}
	return BuiltinColorMatrix(id)
}
