// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

// Sony SR2 (spec 4.12): a pure-TIFF container, the direct successor to
// ARW's early bodies; unlike the A100 it carries a conventional raw
// SubIFD, so it needs none of arwParser's A100 fixup.
type sr2Parser struct {
	*tiffParserBase
}

func openSR2(view *View) (Parser, error) {
	base, err := openTIFFBase(view, nil, VendorSony, false, false)
	if err != nil {
		return nil, err
	}
	return &sr2Parser{base}, nil
}

func (p *sr2Parser) IdentifyID() (TypeId, error) {
	if len(p.mainDirs) == 0 {
		return TypeId{Vendor: VendorSony}, ErrNotFound
	}
	fa := NewFieldAccess(p.c, p.mainDirs[0], 0, nil)
	model, ok := fa.Ascii(tagSonyModel)
	if !ok {
		return TypeId{Vendor: VendorSony}, ErrNotFound
	}
	for prefix, id := range sonyModelIDs {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return TypeId{Vendor: VendorSony, Model: id}, nil
		}
	}
	return TypeId{Vendor: VendorSony}, ErrNotFound
}

func (p *sr2Parser) LoadRawData(skipDecompress bool) (*RawImage, error) {
	img, err := p.loadRawData(RawDataOptions{SkipDecompress: skipDecompress})
	if err != nil {
		return nil, err
	}
	if ratio, ok := sonyAspectRatioFromCameraSettings2010(p.tiffParserBase); ok {
		img.AspectRatio = ratio
	}
	return img, nil
}

func (p *sr2Parser) BuiltinColorMatrix() (CameraColorMatrix, bool) {
	id, err := p.IdentifyID()
	if err != nil {
		return CameraColorMatrix{}, false
	}
	return BuiltinColorMatrix(id)
}
