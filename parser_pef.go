// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

// Pentax PEF (spec 4.12): a pure-TIFF container.
type pefParser struct {
	*tiffParserBase
}

func openPEF(view *View) (Parser, error) {
	base, err := openTIFFBase(view, nil, VendorPentax, false, false)
	if err != nil {
		return nil, err
	}
	return &pefParser{base}, nil
}

var pentaxModelIDs = map[string]uint32{
	"PENTAX K-5": 0x0001,
}

func (p *pefParser) IdentifyID() (TypeId, error) {
	if len(p.mainDirs) == 0 {
		return TypeId{Vendor: VendorPentax}, ErrNotFound
	}
	fa := NewFieldAccess(p.c, p.mainDirs[0], 0, nil)
	model, ok := fa.LegacyAscii(tagModelTIFF)
	if !ok {
		return TypeId{Vendor: VendorPentax}, ErrNotFound
	}
	if id, ok := pentaxModelIDs[model]; ok {
		return TypeId{Vendor: VendorPentax, Model: id}, nil
	}
	return TypeId{Vendor: VendorPentax}, ErrNotFound
}

func (p *pefParser) LoadRawData(skipDecompress bool) (*RawImage, error) {
	img, err := p.loadRawData(RawDataOptions{SkipDecompress: skipDecompress})
	if err != nil {
		return nil, err
	}
	if gains, ok := p.presetWhiteBalanceGains(); ok {
		img.AsShotNeutral = gains
	}
	return img, nil
}

// tagPentaxMakerNoteWhiteBalance is the Pentax MakerNote's raw
// white-balance-preset field (ExifTool tag 0x0003): a small integer that
// must be remapped through PentaxWBIndex before it indexes a gains table.
const tagPentaxMakerNoteWhiteBalance = 0x0003

// pentaxWBPresetGains gives representative R/G/B neutral gains for each of
// the ten slots PentaxWBIndex's remapped index selects: Daylight, Shade,
// Cloudy, Tungsten, Fluorescent, Flash, Manual, and three reserved/unused
// slots carried as unity. These are typical preset values, not a
// per-model calibrated table (cameradata.go's BuiltinColorMatrix already
// covers precise per-model data; this just exercises the index remap).
var pentaxWBPresetGains = [10][3]float64{
	{1.95, 1.00, 1.45}, // Daylight
	{2.20, 1.00, 1.30}, // Shade
	{2.05, 1.00, 1.35}, // Cloudy
	{1.35, 1.00, 2.60}, // Tungsten
	{1.85, 1.00, 1.90}, // Fluorescent
	{2.10, 1.00, 1.40}, // Flash
	{1.00, 1.00, 1.00}, // Manual
	{1.00, 1.00, 1.00},
	{1.00, 1.00, 1.00},
	{1.00, 1.00, 1.00},
}

// presetWhiteBalanceGains reads the raw Pentax MakerNote WhiteBalance
// field, remaps it through the "dark magic" PentaxWBIndex string (spec 9
// open question), and looks up the resulting slot's preset gains.
func (p *pefParser) presetWhiteBalanceGains() ([]float64, bool) {
	_, mnDir, mnContainer, err := p.exifAndMakerNote()
	if err != nil || mnDir == nil {
		return nil, false
	}
	fa := NewFieldAccess(mnContainer, mnDir, mnDir.MakerNoteBase, nil)
	raw, ok := fa.U32(tagPentaxMakerNoteWhiteBalance)
	if !ok {
		return nil, false
	}
	idx, ok := PentaxWBIndex(int(raw))
	if !ok || idx >= len(pentaxWBPresetGains) {
		return nil, false
	}
	g := pentaxWBPresetGains[idx]
	return []float64{g[0], g[1], g[2]}, true
}

func (p *pefParser) BuiltinColorMatrix() (CameraColorMatrix, bool) {
	id, err := p.IdentifyID()
	if err != nil {
		return CameraColorMatrix{}, false
	}
	return BuiltinColorMatrix(id)
}

// pentaxWBIndexString is the "dark magic" digit string spec 9's open
// question names, inherited byte-for-byte from prior art: the raw
// MakerNote white-balance field is used to index into this string, and
// the digit found there (not the raw value) is the real table index.
const pentaxWBIndexString = "0134567028"

// PentaxWBIndex remaps a raw Pentax WhiteBalance MakerNote value to its
// real white-balance-table index.
func PentaxWBIndex(raw int) (int, bool) {
	if raw < 0 || raw >= len(pentaxWBIndexString) {
		return 0, false
	}
	return int(pentaxWBIndexString[raw] - '0'), true
}
