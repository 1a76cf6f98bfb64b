// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import "encoding/binary"

// Endian identifies the byte order a container discovered from its magic
// header. All numeric reads on that container route through it. Unset is
// the zero value, used before a container has sniffed its header.
//
//go:generate stringer -type=Endian
type Endian uint8

const (
	Unset Endian = iota
	Little
	Big
)

func (e Endian) order() binary.ByteOrder {
	if e == Little {
		return binary.LittleEndian
	}
	// Treat Unset the same as Big so that early reads before header
	// detection don't panic; callers are expected to set it before any
	// real numeric field is read.
	return binary.BigEndian
}

// Other returns the opposite byte order, used by the handful of quirky
// camera firmwares that mislabel a field's endian (see CFAPattern handling
// in the teacher's EXIF decoder for the precedent this generalizes).
func (e Endian) Other() Endian {
	if e == Little {
		return Big
	}
	return Little
}
