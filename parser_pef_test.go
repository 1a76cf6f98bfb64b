// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestPentaxWBIndex(t *testing.T) {
	c := qt.New(t)

	tests := []struct {
		raw  int
		want int
	}{
		{0, 0},
		{1, 1},
		{2, 3},
		{3, 4},
		{9, 8},
	}
	for _, tc := range tests {
		got, ok := PentaxWBIndex(tc.raw)
		c.Assert(ok, qt.IsTrue)
		c.Assert(got, qt.Equals, tc.want)
	}
}

func TestPentaxWBIndexOutOfRange(t *testing.T) {
	c := qt.New(t)

	_, ok := PentaxWBIndex(-1)
	c.Assert(ok, qt.IsFalse)

	_, ok = PentaxWBIndex(len(pentaxWBIndexString))
	c.Assert(ok, qt.IsFalse)
}
