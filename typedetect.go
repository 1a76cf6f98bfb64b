// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import "strings"

// TypeForContent sniffs the leading bytes of view to identify its Type,
// per spec section 6's magic table. It returns (TypeUnknown, nil) when no
// recognizer matches, rather than an error, since an unrecognized file is
// not itself a parse failure.
func TypeForContent(view *View) (Type, error) {
	head, err := sniffHead(view, 16)
	if err != nil {
		return TypeUnknown, err
	}

	switch {
	case len(head) >= 4 && head[0] == 0xff && head[1] == 0xd8 && head[2] == 0xff && head[3] == 0xdb:
		return JPEGType, nil
	case len(head) >= 4 && head[0] == 0 && string(head[1:4]) == "MRM":
		return MRWType, nil
	case len(head) >= 12 && string(head[4:12]) == "ftypcrx ":
		return CR3, nil
	case len(head) >= 14 && string(head[0:2]) == "II" && head[2] == 0x1a && head[3] == 0 &&
		head[4] == 0 && head[5] == 0 && string(head[6:14]) == "HEAPCCDR":
		return CRW, nil
	case len(head) >= 4 && string(head[0:2]) == "II" && (string(head[2:4]) == "RO" || string(head[2:4]) == "RS"):
		return ORF, nil
	case len(head) >= 4 && string(head[0:3]) == "IIU" && head[3] == 0:
		return RW2, nil
	case len(head) >= 16 && string(head[0:16]) == rafMagic:
		return RAF, nil
	}

	endian := DefaultMagicCheck([4]byte{orZero(head, 0), orZero(head, 1), orZero(head, 2), orZero(head, 3)})
	if endian == Unset {
		return TypeUnknown, nil
	}

	return typeForTIFFContent(view, endian)
}

func orZero(b []byte, i int) byte {
	if i < len(b) {
		return b[i]
	}
	return 0
}

// sniffHead reads up to n bytes from the start of view without disturbing
// its current position, returning fewer bytes at EOF rather than erroring.
func sniffHead(view *View, n int) (head []byte, err error) {
	err = view.PreservePos(func() error {
		if seekErr := view.Seek(0); seekErr != nil {
			return seekErr
		}
		avail := n
		if remaining := view.Length(); remaining < int64(avail) {
			avail = int(remaining)
		}
		head = append([]byte(nil), view.ReadBytesVolatile(avail)...)
		return nil
	})
	return head, err
}

// peekAt reads exactly n bytes at the given absolute offset without
// disturbing view's current position, returning ok=false at EOF.
func peekAt(view *View, offset int64, n int) (buf []byte, ok bool) {
	_ = view.PreservePos(func() error {
		if offset+int64(n) > view.Length() {
			return nil
		}
		if err := view.Seek(offset); err != nil {
			return nil
		}
		buf = append([]byte(nil), view.ReadBytesVolatile(n)...)
		ok = true
		return nil
	})
	return buf, ok
}

// typeForTIFFContent probes the first IFD of a II*/MM* file to
// disambiguate the TIFF-based RAW families: DNGVersion present → DNG;
// else dispatch on the Make string.
func typeForTIFFContent(view *View, endian Endian) (t Type, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && e == errStop {
				t, err = TypeUnknown, nil
				return
			}
			panic(r)
		}
	}()

	c, loadErr := LoadIFDContainer(view.Clone(), nil)
	if loadErr != nil {
		return TypeUnknown, nil
	}
	first, err := c.FirstOffset()
	if err != nil {
		return TypeUnknown, nil
	}
	dir, err := c.ReadDir(int64(first), KindMain)
	if err != nil {
		return TypeUnknown, nil
	}
	fa := NewFieldAccess(c, dir, 0, nil)

	const tagDNGVersion = 0xc612
	if _, ok := fa.Bytes(tagDNGVersion); ok {
		return DNG, nil
	}

	const tagMake = 0x010f
	makeStr, _ := fa.Ascii(tagMake)
	u := strings.ToUpper(makeStr)
	switch {
	case strings.Contains(u, "NIKON"):
		return NEF, nil
	case strings.Contains(u, "SEIKO EPSON"):
		return ERF, nil
	case strings.Contains(u, "PENTAX CORPORATION"):
		return PEF, nil
	case strings.Contains(u, "SONY"):
		return ARW, nil
	case strings.Contains(u, "CANON"):
		return CR2, nil
	}

	// CR\x02 at offset 8 is a documented shortcut for CR2 that predates a
	// reliable Make string in some early firmwares.
	if shortcut, ok := peekAt(view, 8, 3); ok &&
		shortcut[0] == 'C' && shortcut[1] == 'R' && shortcut[2] == 0x02 {
		return CR2, nil
	}

	return TypeUnknown, nil
}
