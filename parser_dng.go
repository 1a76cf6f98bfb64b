// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import "strings"

// Adobe DNG (spec 4.12): a pure-TIFF container whose MakerNote dialect is
// chosen from the TIFF Make string rather than sniffed (dngMakerNoteDialect
// in makernote.go), since Adobe's converter often repackages a vendor
// MakerNote without preserving its original signature bytes. Raw data is
// frequently tiled LJPEG (loadTiledPayload in rawdata.go) rather than a
// single strip.
type dngParser struct {
	*tiffParserBase
}

func openDNG(view *View) (Parser, error) {
	base, err := openTIFFBase(view, nil, VendorAdobe, false, true)
	if err != nil {
		return nil, err
	}
	return &dngParser{base}, nil
}

// IdentifyID reports the embedded vendor, not Adobe: a DNG's Make/Model
// strings name the original camera, and the built-in calibration tables
// are keyed by that vendor's TypeId space, not VendorAdobe's.
func (p *dngParser) IdentifyID() (TypeId, error) {
	if len(p.mainDirs) == 0 {
		return TypeId{Vendor: VendorAdobe}, ErrNotFound
	}
	fa := NewFieldAccess(p.c, p.mainDirs[0], 0, nil)
	makeStr, _ := fa.Ascii(tagMakeTIFF)
	model, ok := fa.Ascii(tagModelTIFF)
	if !ok {
		return TypeId{Vendor: VendorAdobe}, ErrNotFound
	}

	upperMake := strings.ToUpper(makeStr)
	switch {
	case strings.Contains(upperMake, "CANON"):
		_, mnDir, mnContainer, err := p.exifAndMakerNote()
		if mnDir != nil {
			fa := NewFieldAccess(mnContainer, mnDir, mnDir.MakerNoteBase, nil)
			if id, ok := fa.U32(tagCanonModelID); ok {
				return TypeId{Vendor: VendorCanon, Model: id}, nil
			}
		}
		return TypeId{Vendor: VendorCanon}, err
	case strings.Contains(upperMake, "NIKON"):
		if id, ok := nikonModelIDs[model]; ok {
			return TypeId{Vendor: VendorNikon, Model: id}, nil
		}
		return TypeId{Vendor: VendorNikon}, ErrNotFound
	case strings.Contains(upperMake, "PENTAX"):
		if id, ok := pentaxModelIDs[model]; ok {
			return TypeId{Vendor: VendorPentax, Model: id}, nil
		}
		return TypeId{Vendor: VendorPentax}, ErrNotFound
	case strings.Contains(upperMake, "OLYMPUS"):
		if id, ok := olympusModelIDs[model]; ok {
			return TypeId{Vendor: VendorOlympus, Model: id}, nil
		}
		return TypeId{Vendor: VendorOlympus}, ErrNotFound
	default:
		return TypeId{Vendor: VendorAdobe}, ErrNotFound
	}
}

func (p *dngParser) LoadRawData(skipDecompress bool) (*RawImage, error) {
	return p.loadRawData(RawDataOptions{SkipDecompress: skipDecompress})
}

func (p *dngParser) BuiltinColorMatrix() (CameraColorMatrix, bool) {
	id, err := p.IdentifyID()
	if err != nil {
		return CameraColorMatrix{}, false
	}
	return BuiltinColorMatrix(id)
}
