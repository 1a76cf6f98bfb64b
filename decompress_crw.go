// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

// Canon CRW decompressor (spec 4.8): two fixed Huffman tablesets (one for
// the first sample of each 64-sample block, one for the rest), selected by
// a 2-bit "table" field; a per-pair running base that resets at the start
// of each row; a carry that propagates the first sample's running total
// between blocks; and an optional low-bits pass when a 16-KiB prologue
// scan finds evidence of stuffed low-bit data. Grounded on
// original_source/src/canon/crw/decompress.rs, re-expressed as
// recursive-descent Huffman trees over the engine's own bit-reader idiom
// instead of a pointer-indexed node array.

var crwFirstTree = [3][29]byte{
	{
		0, 1, 4, 2, 3, 1, 2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x04, 0x03, 0x05, 0x06, 0x02, 0x07, 0x01,
		0x08, 0x09, 0x00, 0x0a, 0x0b, 0xff,
	},
	{
		0, 2, 2, 3, 1, 1, 1, 1, 2, 0, 0, 0, 0, 0, 0, 0, 0x03, 0x02, 0x04, 0x01, 0x05, 0x00, 0x06,
		0x07, 0x09, 0x08, 0x0a, 0x0b, 0xff,
	},
	{
		0, 0, 6, 3, 1, 1, 2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x06, 0x05, 0x07, 0x04, 0x08, 0x03, 0x09,
		0x02, 0x00, 0x0a, 0x01, 0x0b, 0xff,
	},
}

var crwSecondTree = [3][180]byte{
	{
		0, 2, 2, 2, 1, 4, 2, 1, 2, 5, 1, 1, 0, 0, 0, 139, 0x03, 0x04, 0x02, 0x05, 0x01, 0x06, 0x07,
		0x08, 0x12, 0x13, 0x11, 0x14, 0x09, 0x15, 0x22, 0x00, 0x21, 0x16, 0x0a, 0xf0, 0x23, 0x17,
		0x24, 0x31, 0x32, 0x18, 0x19, 0x33, 0x25, 0x41, 0x34, 0x42, 0x35, 0x51, 0x36, 0x37, 0x38,
		0x29, 0x79, 0x26, 0x1a, 0x39, 0x56, 0x57, 0x28, 0x27, 0x52, 0x55, 0x58, 0x43, 0x76, 0x59,
		0x77, 0x54, 0x61, 0xf9, 0x71, 0x78, 0x75, 0x96, 0x97, 0x49, 0xb7, 0x53, 0xd7, 0x74, 0xb6,
		0x98, 0x47, 0x48, 0x95, 0x69, 0x99, 0x91, 0xfa, 0xb8, 0x68, 0xb5, 0xb9, 0xd6, 0xf7, 0xd8,
		0x67, 0x46, 0x45, 0x94, 0x89, 0xf8, 0x81, 0xd5, 0xf6, 0xb4, 0x88, 0xb1, 0x2a, 0x44, 0x72,
		0xd9, 0x87, 0x66, 0xd4, 0xf5, 0x3a, 0xa7, 0x73, 0xa9, 0xa8, 0x86, 0x62, 0xc7, 0x65, 0xc8,
		0xc9, 0xa1, 0xf4, 0xd1, 0xe9, 0x5a, 0x92, 0x85, 0xa6, 0xe7, 0x93, 0xe8, 0xc1, 0xc6, 0x7a,
		0x64, 0xe1, 0x4a, 0x6a, 0xe6, 0xb3, 0xf1, 0xd3, 0xa5, 0x8a, 0xb2, 0x9a, 0xba, 0x84, 0xa4,
		0x63, 0xe5, 0xc5, 0xf3, 0xd2, 0xc4, 0x82, 0xaa, 0xda, 0xe4, 0xf2, 0xca, 0x83, 0xa3, 0xa2,
		0xc3, 0xea, 0xc2, 0xe2, 0xe3, 0xff, 0xff,
	},
	{
		0, 2, 2, 1, 4, 1, 4, 1, 3, 3, 1, 0, 0, 0, 0, 140, 0x02, 0x03, 0x01, 0x04, 0x05, 0x12, 0x11,
		0x06, 0x13, 0x07, 0x08, 0x14, 0x22, 0x09, 0x21, 0x00, 0x23, 0x15, 0x31, 0x32, 0x0a, 0x16,
		0xf0, 0x24, 0x33, 0x41, 0x42, 0x19, 0x17, 0x25, 0x18, 0x51, 0x34, 0x43, 0x52, 0x29, 0x35,
		0x61, 0x39, 0x71, 0x62, 0x36, 0x53, 0x26, 0x38, 0x1a, 0x37, 0x81, 0x27, 0x91, 0x79, 0x55,
		0x45, 0x28, 0x72, 0x59, 0xa1, 0xb1, 0x44, 0x69, 0x54, 0x58, 0xd1, 0xfa, 0x57, 0xe1, 0xf1,
		0xb9, 0x49, 0x47, 0x63, 0x6a, 0xf9, 0x56, 0x46, 0xa8, 0x2a, 0x4a, 0x78, 0x99, 0x3a, 0x75,
		0x74, 0x86, 0x65, 0xc1, 0x76, 0xb6, 0x96, 0xd6, 0x89, 0x85, 0xc9, 0xf5, 0x95, 0xb4, 0xc7,
		0xf7, 0x8a, 0x97, 0xb8, 0x73, 0xb7, 0xd8, 0xd9, 0x87, 0xa7, 0x7a, 0x48, 0x82, 0x84, 0xea,
		0xf4, 0xa6, 0xc5, 0x5a, 0x94, 0xa4, 0xc6, 0x92, 0xc3, 0x68, 0xb5, 0xc8, 0xe4, 0xe5, 0xe6,
		0xe9, 0xa2, 0xa3, 0xe3, 0xc2, 0x66, 0x67, 0x93, 0xaa, 0xd4, 0xd5, 0xe7, 0xf8, 0x88, 0x9a,
		0xd7, 0x77, 0xc4, 0x64, 0xe2, 0x98, 0xa5, 0xca, 0xda, 0xe8, 0xf3, 0xf6, 0xa9, 0xb2, 0xb3,
		0xf2, 0xd2, 0x83, 0xba, 0xd3, 0xff, 0xff,
	},
	{
		0, 0, 6, 2, 1, 3, 3, 2, 5, 1, 2, 2, 8, 10, 0, 117, 0x04, 0x05, 0x03, 0x06, 0x02, 0x07,
		0x01, 0x08, 0x09, 0x12, 0x13, 0x14, 0x11, 0x15, 0x0a, 0x16, 0x17, 0xf0, 0x00, 0x22, 0x21,
		0x18, 0x23, 0x19, 0x24, 0x32, 0x31, 0x25, 0x33, 0x38, 0x37, 0x34, 0x35, 0x36, 0x39, 0x79,
		0x57, 0x58, 0x59, 0x28, 0x56, 0x78, 0x27, 0x41, 0x29, 0x77, 0x26, 0x42, 0x76, 0x99, 0x1a,
		0x55, 0x98, 0x97, 0xf9, 0x48, 0x54, 0x96, 0x89, 0x47, 0xb7, 0x49, 0xfa, 0x75, 0x68, 0xb6,
		0x67, 0x69, 0xb9, 0xb8, 0xd8, 0x52, 0xd7, 0x88, 0xb5, 0x74, 0x51, 0x46, 0xd9, 0xf8, 0x3a,
		0xd6, 0x87, 0x45, 0x7a, 0x95, 0xd5, 0xf6, 0x86, 0xb4, 0xa9, 0x94, 0x53, 0x2a, 0xa8, 0x43,
		0xf5, 0xf7, 0xd4, 0x66, 0xa7, 0x5a, 0x44, 0x8a, 0xc9, 0xe8, 0xc8, 0xe7, 0x9a, 0x6a, 0x73,
		0x4a, 0x61, 0xc7, 0xf4, 0xc6, 0x65, 0xe9, 0x72, 0xe6, 0x71, 0x91, 0x93, 0xa6, 0xda, 0x92,
		0x85, 0x62, 0xf3, 0xc5, 0xb2, 0xa4, 0x84, 0xba, 0x64, 0xa5, 0xb3, 0xd2, 0x81, 0xe5, 0xd3,
		0xaa, 0xc4, 0xca, 0xf2, 0xb1, 0xe4, 0xd1, 0x83, 0x63, 0xea, 0xc3, 0xe2, 0x82, 0xf1, 0xa3,
		0xc2, 0xa1, 0xc1, 0xe3, 0xa2, 0xe1, 0xff, 0xff,
	},
}

// crwDecoderNode is one node of a canonical Huffman tree built from a
// 16-count-prefix + leaf-value table, per Canon's CIFF decode-table
// encoding (see crwMakeDecoder's doc comment for the construction rule).
type crwDecoderNode struct {
	branch [2]int // 0 means "no branch" (leaf)
	leaf   byte
}

type crwDecoderState struct {
	free, leafIdx int
}

// crwMakeDecoder builds a canonical Huffman decode tree from table: the
// first 16 bytes give the code count for each bit-length 1..16, and the
// remaining bytes are the leaf values in code order. For example,
// { 0,1,4,2,3,1,2,0,... , 0x04,0x03,0x05,0x06,0x02,0x07,0x01,0x08,0x09,0x00,0x0a,0x0b,0xff }
// assigns code "00" -> 0x04, "010" -> 0x03, and so on.
func crwMakeDecoder(state *crwDecoderState, dest []crwDecoderNode, idx int, table []byte, level int) {
	state.free++

	i, next := 0, 0
	for i <= state.leafIdx && next < 16 {
		i += int(table[next])
		next++
	}
	if i <= state.leafIdx {
		return
	}

	if level < next {
		dest[idx].branch[0] = state.free
		crwMakeDecoder(state, dest, state.free, table, level+1)
		dest[idx].branch[1] = state.free
		crwMakeDecoder(state, dest, state.free, table, level+1)
	} else {
		dest[idx].leaf = table[16+state.leafIdx]
		state.leafIdx++
	}
}

// crwBitPump is Canon's own 0xFF-stuffed bit reader: like the Lossless
// JPEG bit reader, 0xFF is always followed by a stuffed 0x00 byte in the
// entropy stream, but (unlike LJPEG) that stuffed byte is unconditional
// and never a marker.
type crwBitPump struct {
	v     *View
	buf   uint32
	vbits int
}

func (p *crwBitPump) getBits(n int) (int32, error) {
	var ret int32
	if n > 0 {
		ret = int32(p.buf << uint(32-p.vbits) >> uint(32-n))
		p.vbits -= n
	}
	for p.vbits < 25 {
		if p.v.Pos() >= p.v.Length() {
			break
		}
		c := p.v.ReadU8()
		p.buf = (p.buf << 8) + uint32(c)
		if c == 0xff {
			if p.v.Pos() < p.v.Length() {
				p.v.ReadU8() // the mandatory stuffed 0x00
			}
		}
		p.vbits += 8
	}
	return ret, nil
}

// crwHasLowBits scans the first 0x4000-26 bytes of the stream for a
// non-stuffed 0xFF (one not immediately followed by 0x00), which signals
// that a trailing low-bits pass follows the main Huffman stream.
func crwHasLowBits(v *View) (bool, error) {
	n := 0x4000 - 26
	if int64(n) > v.Length() {
		n = int(v.Length())
	}
	return crwScanLowBits(v, n), nil
}

func crwScanLowBits(v *View, n int) bool {
	found := false
	_ = v.PreservePos(func() error {
		if err := v.Seek(0); err != nil {
			return err
		}
		buf := v.ReadBytesVolatile(n)
		for i := 0; i < len(buf)-1; i++ {
			if buf[i] == 0xff {
				if buf[i+1] != 0 {
					found = true
					return nil
				}
			}
		}
		return nil
	})
	return found
}

// DecodeCanonCRW decodes Canon's pre-CR2 compression scheme (spec 4.8).
// table selects one of the three fixed tablesets (clamped to [0,2]).
func DecodeCanonCRW(v *View, width, height, table int) (out []uint16, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && e == errStop {
				err = newDecompressionErrorf("crw: truncated stream")
				return
			}
			panic(r)
		}
	}()

	if table > 2 {
		table = 2
	}
	if table < 0 {
		table = 0
	}

	firstDecoder := make([]crwDecoderNode, 32)
	crwMakeDecoder(&crwDecoderState{}, firstDecoder, 0, crwFirstTree[table][:], 0)
	secondDecoder := make([]crwDecoderNode, 512)
	crwMakeDecoder(&crwDecoderState{}, secondDecoder, 0, crwSecondTree[table][:], 0)

	lowBits, err := crwHasLowBits(v)
	if err != nil {
		return nil, err
	}
	startOffset := int64(514)
	if lowBits {
		startOffset += int64(height) * int64(width) / 4
	}
	if err := v.Seek(startOffset); err != nil {
		return nil, newFormatError(err)
	}

	pump := &crwBitPump{v: v}
	pump.getBits(0) // align vbits state per the reference implementation's init call

	total := width * height
	data := make([]uint16, 0, total)

	var column int
	var base [2]int32
	var carry int32
	outbuf := make([]uint16, 64)

	for column < total {
		var diffbuf [64]int32
		decoder := firstDecoder
		i := 0
		for i < 64 {
			dindex := 0
			for decoder[dindex].branch[0] != 0 {
				bit, err := pump.getBits(1)
				if err != nil {
					return nil, err
				}
				dindex = decoder[dindex].branch[bit]
			}
			leaf := decoder[dindex].leaf
			decoder = secondDecoder

			if leaf == 0 && i != 0 {
				break
			}
			if leaf != 0xff {
				i += int(leaf >> 4)
				length := int(leaf & 15)
				if length != 0 {
					diff, err := pump.getBits(length)
					if err != nil {
						return nil, err
					}
					if diff&(1<<uint(length-1)) == 0 {
						diff -= (1 << uint(length)) - 1
					}
					if i < 64 {
						diffbuf[i] = diff
					}
				}
			}
			i++
		}

		diffbuf[0] += carry
		carry = diffbuf[0]
		for i := 0; i < 64; i++ {
			if column%width == 0 {
				base[0] = 512
				base[1] = 512
			}
			column++
			base[i&1] += diffbuf[i]
			outbuf[i] = uint16(base[i&1])
		}

		if lowBits {
			if err := applyCRWLowBits(v, column, outbuf); err != nil {
				return nil, err
			}
		}

		data = append(data, outbuf...)
	}

	return data[:total], nil
}

// applyCRWLowBits reads the 2-bit-per-pixel low-bits trailer for the block
// that just finished (column-64..column) and folds it into the low two
// bits of each already-decoded sample.
func applyCRWLowBits(v *View, column int, outbuf []uint16) error {
	return v.PreservePos(func() error {
		if err := v.Seek(int64(column-64) / 4); err != nil {
			return err
		}
		i := 0
		for pass := 0; pass < 16; pass++ {
			c := uint16(v.ReadU8())
			for r := 0; r < 4; r++ {
				outbuf[i] = (outbuf[i] << 2) + ((c >> uint(r*2)) & 3)
				i++
			}
		}
		return nil
	})
}
