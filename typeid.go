// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import "fmt"

// Vendor is a closed enumeration of camera manufacturers. The numeric
// values match the model table used throughout the camera-support
// community (dcraw/libraw derived tools) so that imported color-matrix
// and quirk tables can be cross-referenced without renumbering.
//
//go:generate stringer -type=Vendor
type Vendor uint16

const (
	VendorNone Vendor = iota
	VendorCanon
	VendorNikon
	VendorLeica
	VendorPentax
	VendorEpson
	VendorMinolta
	VendorOlympus
	VendorSony
	VendorSamsung
	VendorRicoh
	VendorPanasonic
	VendorMamiya
	VendorAdobe
	VendorFujifilm
	VendorBlackmagic
	VendorXiaoyi
	VendorApple
	VendorSigma
	VendorGoPro
	VendorHasselblad
	VendorZeiss
	VendorDJI
	VendorNokia
	VendorJPEG Vendor = 1000
)

// TypeId identifies a specific camera as a (vendor, model) pair. The model
// space is private to each vendor; (vendor, 0) means "unknown model of a
// known vendor". Model is uint32 because Canon's own model IDs (as found in
// CanonModelID, e.g. 0x80000232 for the EOS 40D) are themselves 32-bit.
type TypeId struct {
	Vendor Vendor
	Model  uint32
}

// IsKnownModel reports whether Model identifies a specific camera, as
// opposed to only the vendor being known.
func (t TypeId) IsKnownModel() bool {
	return t.Model != 0
}

func (t TypeId) String() string {
	return fmt.Sprintf("%s/%d", t.Vendor, t.Model)
}

// Type is a supported RAW (or companion JPEG) file type.
//
//go:generate stringer -type=Type
type Type int

const (
	TypeUnknown Type = iota
	ARW
	CR2
	CR3
	CRW
	DNG
	ERF
	GPR
	NEF
	NRW
	ORF
	PEF
	RAF
	RAWType // generic ".raw" extension, resolved further by content sniffing
	RW2
	RWL
	SR2
	MRWType
	JPEGType
)

var extToType = map[string]Type{
	".arw":  ARW,
	".cr2":  CR2,
	".cr3":  CR3,
	".crw":  CRW,
	".dng":  DNG,
	".erf":  ERF,
	".gpr":  GPR,
	".nef":  NEF,
	".nrw":  NRW,
	".orf":  ORF,
	".pef":  PEF,
	".raf":  RAF,
	".raw":  RAWType,
	".rw2":  RW2,
	".rwl":  RWL,
	".sr2":  SR2,
	".jpg":  JPEGType,
	".jpeg": JPEGType,
}

// TypeForExtension maps a lowercase file extension (with leading dot) to
// its Type, covering the 17 extensions the core recognizes.
func TypeForExtension(extLowercase string) (Type, bool) {
	t, ok := extToType[extLowercase]
	return t, ok
}

var mimeToType = map[string]Type{
	"image/x-sony-arw":      ARW,
	"image/x-canon-cr2":     CR2,
	"image/x-canon-cr3":     CR3,
	"image/x-canon-crw":     CRW,
	"image/x-adobe-dng":     DNG,
	"image/x-epson-erf":     ERF,
	"image/x-gopro-gpr":     GPR,
	"image/x-nikon-nef":     NEF,
	"image/x-nikon-nrw":     NRW,
	"image/x-olympus-orf":   ORF,
	"image/x-pentax-pef":    PEF,
	"image/x-fujifilm-raf":  RAF,
	"image/x-panasonic-rw2": RW2,
	"image/x-panasonic-rwl": RWL,
	"image/x-sony-sr2":      SR2,
	"image/x-minolta-mrw":   MRWType,
}

// TypeForMimeType maps a "image/x-<vendor>-<format>"-shaped MIME string to
// its Type.
func TypeForMimeType(mime string) (Type, bool) {
	t, ok := mimeToType[mime]
	return t, ok
}
