// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

// Nikon NEF/NRW (spec 4.12): a pure-TIFF container. Compressed bodies
// (CompressionNikonQuantized) need the MakerNote's NEFDecodeTable2 entry
// (tagNikonDecodeTable) to recover the tone curve; that lives outside the
// raw directory GetRawData walks, so LoadRawData reads it from the
// MakerNote first and threads it through RawDataOptions.
type nefParser struct {
	*tiffParserBase
}

func openNEF(view *View) (Parser, error) {
	base, err := openTIFFBase(view, nil, VendorNikon, false, false)
	if err != nil {
		return nil, err
	}
	return &nefParser{base}, nil
}

// tagNikonDecodeTable is the Nikon MakerNote tag holding the
// NEFDecodeTable2 bytes that LoadRawData passes on for quantized Huffman
// decoding.
const tagNikonDecodeTable = 0x0096

func (p *nefParser) IdentifyID() (TypeId, error) {
	if len(p.mainDirs) == 0 {
		return TypeId{Vendor: VendorNikon}, ErrNotFound
	}
	fa := NewFieldAccess(p.c, p.mainDirs[0], 0, nil)
	model, ok := fa.Ascii(tagModelTIFF)
	if !ok || model == "" {
		return TypeId{Vendor: VendorNikon}, ErrNotFound
	}
	id, ok := nikonModelIDs[model]
	if !ok {
		return TypeId{Vendor: VendorNikon}, ErrNotFound
	}
	return TypeId{Vendor: VendorNikon, Model: id}, nil
}

// nikonModelIDs assigns the small integer model slots cameradata.go's
// built-in table keys Nikon bodies with, since Nikon (unlike Canon) never
// exposes its own numeric model ID in the MakerNote.
var nikonModelIDs = map[string]uint32{
	"NIKON D70": 0x0002,
}

func (p *nefParser) LoadRawData(skipDecompress bool) (*RawImage, error) {
	opts := RawDataOptions{SkipDecompress: skipDecompress}
	if _, mnDir, mnContainer, err := p.exifAndMakerNote(); err == nil && mnDir != nil {
		fa := NewFieldAccess(mnContainer, mnDir, mnDir.MakerNoteBase, nil)
		if table, ok := fa.Bytes(tagNikonDecodeTable); ok {
			opts.NikonDecodeTable = table
		}
	}
	return p.loadRawData(opts)
}

func (p *nefParser) BuiltinColorMatrix() (CameraColorMatrix, bool) {
	id, err := p.IdentifyID()
	if err != nil {
		return CameraColorMatrix{}, false
	}
	return BuiltinColorMatrix(id)
}
