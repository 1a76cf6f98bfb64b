// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestSonyTag0x2010TableIsInverseOfCube(t *testing.T) {
	c := qt.New(t)

	// sonyTag0x2010Table must invert i*i*i mod 249 for every i in [0,249):
	// decipher(cipher(i)) == i.
	for i := 0; i < 249; i++ {
		ciphered := byte((i * i * i) % 249)
		c.Assert(int(sonyTag0x2010Table[ciphered]), qt.Equals, i)
	}
}

func TestSonyTag0x2010TableIdentityOutsideDomain(t *testing.T) {
	c := qt.New(t)

	// Bytes >= 249 never appear as a cube residue, so the table leaves
	// them unmapped (identity).
	for i := 249; i < 256; i++ {
		c.Assert(int(sonyTag0x2010Table[i]), qt.Equals, i)
	}
}

func TestDecipherSonyTag0x2010(t *testing.T) {
	c := qt.New(t)

	var ciphertext [249]byte
	for i := range ciphertext {
		ciphertext[i] = byte((i * i * i) % 249)
	}
	out := decipherSonyTag0x2010(ciphertext[:])
	for i, v := range out {
		c.Assert(int(v), qt.Equals, i)
	}
}
