// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import "strings"

// MakerNoteDialect names the vendor-specific header convention a
// MakerNote block follows. The zero value means "not yet sniffed".
type MakerNoteDialect string

const (
	DialectNone      MakerNoteDialect = ""
	DialectNikon2    MakerNoteDialect = "Nikon2"
	DialectNikon3    MakerNoteDialect = "Nikon3"
	DialectOlympus1  MakerNoteDialect = "Olympus1"
	DialectOlympus2  MakerNoteDialect = "Olympus2"
	DialectOMSystem  MakerNoteDialect = "OMSystem"
	DialectEpson     MakerNoteDialect = "Epson"
	DialectPentax    MakerNoteDialect = "Pentax"
	DialectPanasonic MakerNoteDialect = "Panasonic"
	DialectRicoh     MakerNoteDialect = "Ricoh"
	DialectFujifilm  MakerNoteDialect = "Fujifilm"
	DialectSigma     MakerNoteDialect = "Sigma"
	DialectAppleIOS  MakerNoteDialect = "AppleIOS"
	DialectXiaoyi    MakerNoteDialect = "Xiaoyi"
	DialectSamsung   MakerNoteDialect = "Samsung"
	DialectLeica     MakerNoteDialect = "Leica"
	DialectMinolta   MakerNoteDialect = "Minolta"
	DialectCanon     MakerNoteDialect = "Canon"
	DialectDNGAdobe  MakerNoteDialect = "DNGAdobe"

	// dialectRejected is returned internally for prefixes that are
	// recognized but known to not be IFD-shaped at all (LSI1, HDRP);
	// SniffMakerNote turns this into ok=false.
	dialectRejected MakerNoteDialect = "rejected"
)

// MakerNoteLayout is the result of sniffing a MakerNote block: which
// dialect it is, where its inner IFD begins relative to the MakerNote
// offset, and what base offset to add when dereferencing entries inside
// that inner IFD. A dialect whose InnerIsSubContainer is true has its own
// TIFF header (II*/MM*) at Base and must be parsed as a fresh
// IFDContainer rather than a bare directory; its entry offsets are
// relative to that header.
type MakerNoteLayout struct {
	Dialect            MakerNoteDialect
	InnerStart         int64
	Base               int64
	InnerIsSubContainer bool
}

// makerNoteRule is one entry of the data-driven decision list the engine
// matches MakerNote prefixes against, per the design note preferring a
// compact decision-list over code branches.
type makerNoteRule struct {
	match func(head []byte) bool
	layout MakerNoteLayout
}

func prefixRule(prefix string, layout MakerNoteLayout) makerNoteRule {
	p := []byte(prefix)
	return makerNoteRule{
		match: func(head []byte) bool {
			return len(head) >= len(p) && string(head[:len(p)]) == prefix
		},
		layout: layout,
	}
}

var makerNoteRules = []makerNoteRule{
	// Nikon: byte 6 distinguishes the v2 (flat) and v3 (self-contained
	// TIFF sub-container) headers.
	{
		match: func(h []byte) bool {
			return len(h) >= 7 && string(h[:6]) == "Nikon\x00" && h[6] == 1
		},
		layout: MakerNoteLayout{Dialect: DialectNikon2, InnerStart: 8, Base: 8},
	},
	{
		match: func(h []byte) bool {
			return len(h) >= 7 && string(h[:6]) == "Nikon\x00" && h[6] == 2
		},
		layout: MakerNoteLayout{Dialect: DialectNikon3, InnerStart: 18, Base: 10, InnerIsSubContainer: true},
	},
	prefixRule("OLYMPUS\x00", MakerNoteLayout{Dialect: DialectOlympus2, InnerStart: 12}),
	prefixRule("OLYMP\x00", MakerNoteLayout{Dialect: DialectOlympus1, InnerStart: 8}),
	prefixRule("OM SYSTEM", MakerNoteLayout{Dialect: DialectOMSystem, InnerStart: 16}),
	prefixRule("EPSON\x00", MakerNoteLayout{Dialect: DialectEpson}),
	prefixRule("AOC\x00", MakerNoteLayout{Dialect: DialectPentax}),
	prefixRule("PENTAX \x00", MakerNoteLayout{Dialect: DialectPentax}),
	prefixRule("Panasonic\x00", MakerNoteLayout{Dialect: DialectPanasonic}),
	prefixRule("Ricoh\x00", MakerNoteLayout{Dialect: DialectRicoh}),
	prefixRule("FUJIFILM", MakerNoteLayout{Dialect: DialectFujifilm}),
	prefixRule("SIGMA\x00", MakerNoteLayout{Dialect: DialectSigma}),
	prefixRule("Apple iOS\x00", MakerNoteLayout{Dialect: DialectAppleIOS}),
	prefixRule("YI     \x00", MakerNoteLayout{Dialect: DialectXiaoyi}),
	prefixRule("STMN", MakerNoteLayout{Dialect: DialectSamsung}),
	prefixRule("LEICA CAMERA AG\x00", MakerNoteLayout{Dialect: DialectLeica}),
	// Several Leica variants share a "LEICA" prefix but are distinguished
	// by the 6th/7th bytes; these fall back to the generic Leica dialect
	// when the longer AG-suffixed signature doesn't match.
	prefixRule("LEICA\x00", MakerNoteLayout{Dialect: DialectLeica}),
	prefixRule("LEICA", MakerNoteLayout{Dialect: DialectLeica}),
	// Recognized but rejected: not IFD-shaped at all.
	prefixRule("LSI1\x00", MakerNoteLayout{Dialect: dialectRejected}),
	prefixRule("HDRP", MakerNoteLayout{Dialect: dialectRejected}),
}

// minoltaMLT0 checks for Minolta's "MLT0" signature at byte offset 10..13
// of the MakerNote head, a non-prefix position unlike every other rule.
func minoltaMLT0(head []byte) bool {
	return len(head) >= 14 && string(head[10:14]) == "MLT0"
}

// SniffMakerNote reads up to the first 16 bytes at a MakerNote offset and
// matches literal prefixes (or the Minolta byte-offset signature) to
// select a dialect and its (innerStart, base) adjustment. Canon dialect
// is never chosen from a prefix: callers must pass it explicitly based on
// file type. DNG files select a dialect from the TIFF Make string instead
// of sniffing the MakerNote bytes at all.
func SniffMakerNote(head []byte, make string, isCanonFile, isDNGFile bool) (MakerNoteLayout, bool) {
	if isDNGFile {
		return dngMakerNoteDialect(make)
	}
	if isCanonFile {
		return MakerNoteLayout{Dialect: DialectCanon}, true
	}
	if minoltaMLT0(head) {
		return MakerNoteLayout{Dialect: DialectMinolta}, true
	}
	for _, r := range makerNoteRules {
		if r.match(head) {
			if r.layout.Dialect == dialectRejected {
				return MakerNoteLayout{}, false
			}
			return r.layout, true
		}
	}
	return MakerNoteLayout{}, false
}

// dngMakerNoteDialect picks a dialect for a DNG file from its TIFF Make
// string rather than from the MakerNote bytes, since Adobe's DNG
// converter frequently repackages a MakerNote without preserving the
// originating vendor's own signature bytes.
func dngMakerNoteDialect(make string) (MakerNoteLayout, bool) {
	u := strings.ToUpper(make)
	switch {
	case strings.Contains(u, "NIKON"):
		return MakerNoteLayout{Dialect: DialectNikon3, InnerStart: 18, Base: 10, InnerIsSubContainer: true}, true
	case strings.Contains(u, "CANON"):
		return MakerNoteLayout{Dialect: DialectCanon}, true
	case strings.Contains(u, "SONY"):
		return MakerNoteLayout{Dialect: DialectDNGAdobe}, true
	case strings.Contains(u, "PENTAX"):
		return MakerNoteLayout{Dialect: DialectPentax}, true
	case strings.Contains(u, "OLYMPUS"):
		return MakerNoteLayout{Dialect: DialectOlympus2, InnerStart: 12}, true
	case strings.Contains(u, "FUJIFILM") || strings.Contains(u, "FUJI"):
		return MakerNoteLayout{Dialect: DialectFujifilm}, true
	default:
		return MakerNoteLayout{Dialect: DialectDNGAdobe}, true
	}
}

// ResolveMakerNote reads the MakerNote inner directory given its offset
// within the parent container and the sniffed layout, honoring
// InnerIsSubContainer for dialects (Nikon3) whose inner header is itself
// a fresh TIFF sub-container with its own endian.
func ResolveMakerNote(c *IFDContainer, mnOffset int64, layout MakerNoteLayout) (*Dir, *IFDContainer, error) {
	innerOffset := mnOffset + layout.InnerStart
	if layout.InnerIsSubContainer {
		sub, err := CreateSubview(c.view, mnOffset+layout.Base)
		if err != nil {
			return nil, nil, err
		}
		innerContainer, err := LoadIFDContainer(sub, nil)
		if err != nil {
			return nil, nil, err
		}
		first, err := innerContainer.FirstOffset()
		if err != nil {
			return nil, nil, err
		}
		dir, err := innerContainer.ReadDir(int64(first), KindMakerNote)
		if err != nil {
			return nil, nil, err
		}
		dir.MakerNoteTag = string(layout.Dialect)
		dir.MakerNoteBase = 0 // offsets are already relative to innerContainer's view
		return dir, innerContainer, nil
	}

	dir, err := c.ReadDir(innerOffset, KindMakerNote)
	if err != nil {
		return nil, nil, err
	}
	dir.MakerNoteTag = string(layout.Dialect)
	dir.MakerNoteBase = mnOffset + layout.Base
	return dir, c, nil
}
