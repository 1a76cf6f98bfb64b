// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import "sync"

// Fujifilm RAF strip decompressor (spec 4.10). Grounded on
// original_source/src/fujifilm/decompress.rs: the 16-byte strip header and
// its validity checks, the lossless/lossy quantization-table construction
// (QTable::build_table/new_main_qtable/Params::new), the zero-run+sign
// code reader (fuji_zerobits/bit_diff/read_code), and the Bayer per-line
// 6-pass sample decode (fuji_bayer_decode_block/fuji_decode_sample_even/
// fuji_decode_sample_odd), including the line-buffer rotation (mtable) and
// boundary re-initialization (ztable) the reference runs after every line.
// This engine fans decoding out across strips with goroutines, mirroring
// the reference's rayon par_iter — the one component spec section 5
// names as safe to parallelize, since strips are decoded independently.
//
// X-Trans decoding (rawType == 16, fuji_xtrans_decode_block's 6-pass
// const-generic routine) is ported in fujiXTransDecodeBlock below,
// reusing the same bit reader, quantization tables, and gradient state
// the Bayer path builds; fujiCopyXTransLine places the result using the
// standard 6x6 X-Trans mosaic (xtransPattern) rather than Bayer's 2x2
// grid.

const (
	xtLineR0 = iota
	xtLineR1
	xtLineR2
	xtLineR3
	xtLineR4
	xtLineG0
	xtLineG1
	xtLineG2
	xtLineG3
	xtLineG4
	xtLineG5
	xtLineG6
	xtLineG7
	xtLineB0
	xtLineB1
	xtLineB2
	xtLineB3
	xtLineB4
	xtLineTotal
)

type fujiHeader struct {
	signature                                     uint16
	lossless, rawType, rawBits                    uint8
	rawHeight, rawRoundedWidth, rawWidth           uint16
	blockSize                                      uint16
	blocksInRow                                    uint8
	totalLines                                     uint16
}

func (h *fujiHeader) isLossless() bool { return h.lossless == 1 }

func fujiDivRoundUp(a, b uint16) uint16 { return (a + b - 1) / b }

func (h *fujiHeader) isValid(cfaHeight, cfaWidth int) bool {
	if h.signature != 0x4953 {
		return false
	}
	if h.rawHeight > 0x3000 || int(h.rawHeight) < cfaHeight || int(h.rawHeight)%cfaHeight != 0 {
		return false
	}
	if h.rawWidth > 0x3000 || h.rawWidth < 0x300 || h.rawWidth%24 != 0 {
		return false
	}
	if h.rawRoundedWidth > 0x3000 || h.blockSize != 0x300 {
		return false
	}
	if h.rawRoundedWidth < h.blockSize || h.rawRoundedWidth%h.blockSize != 0 {
		return false
	}
	if h.rawRoundedWidth-h.rawWidth >= h.blockSize {
		return false
	}
	if h.blocksInRow > 0x10 || h.blocksInRow == 0 {
		return false
	}
	if uint16(h.blocksInRow) != h.rawRoundedWidth/h.blockSize || uint16(h.blocksInRow) != fujiDivRoundUp(h.rawWidth, h.blockSize) {
		return false
	}
	if h.totalLines > 0x800 || h.totalLines == 0 || int(h.totalLines) != int(h.rawHeight)/6 {
		return false
	}
	if h.rawBits != 12 && h.rawBits != 14 && h.rawBits != 16 {
		return false
	}
	if h.rawType != 16 && h.rawType != 0 {
		return false
	}
	return true
}

// gradient mirrors the reference's (i32, i32) accumulator pair: [0] is the
// running absolute-difference sum, [1] the sample count.
type gradient [2]int32

type fujiGradientList struct {
	lossless [41]gradient
	lossy    [3][5]gradient
}

type fujiQTable struct {
	qBase, maxGrad, qGradientMulti, rawBits, totalValues int32
	table                                                []int32
}

func (q *fujiQTable) lookupGradient(params *fujiParams, v1, v2 int32) int32 {
	return q.qGradientMulti*q.table[params.maxValue+v1] + q.table[params.maxValue+v2]
}

func fujiBuildQTable(rawBits int32, qp [5]int32) []int32 {
	table := make([]int32, 2*(int32(1)<<uint(rawBits)))
	curVal := -qp[4]
	for i := range table {
		if curVal > qp[4] {
			break
		}
		switch {
		case curVal <= -qp[3]:
			table[i] = -4
		case curVal <= -qp[2]:
			table[i] = -3
		case curVal <= -qp[1]:
			table[i] = -2
		case curVal < -qp[0]:
			table[i] = -1
		case curVal <= qp[0]:
			table[i] = 0
		case curVal < qp[1]:
			table[i] = 1
		case curVal < qp[2]:
			table[i] = 2
		case curVal < qp[3]:
			table[i] = 3
		default:
			table[i] = 4
		}
		curVal++
	}
	return table
}

func fujiLog2Ceil(states int) int {
	if states <= 0 {
		return 0
	}
	states--
	bits := 0
	for {
		states >>= 1
		bits++
		if states == 0 {
			break
		}
	}
	return bits
}

func fujiNewMainQTable(rawBits, maxValue, qBase int32) fujiQTable {
	qp := [5]int32{qBase, 3*qBase + 0x12, 5*qBase + 0x43, 7*qBase + 0x114, maxValue}
	maxVal := maxValue + 1
	if qp[1] >= maxVal || qp[1] < qBase+1 {
		qp[1] = qBase + 1
	}
	if qp[2] < qp[1] || qp[2] >= maxVal {
		qp[2] = qp[1]
	}
	if qp[3] < qp[2] || qp[3] >= maxVal {
		qp[3] = qp[2]
	}
	table := fujiBuildQTable(rawBits, qp)
	totalValues := (qp[4]+2*qBase)/(2*qBase+1) + 1
	return fujiQTable{
		qBase: qBase, table: table, qGradientMulti: 9, maxGrad: 0,
		rawBits: int32(fujiLog2Ceil(int(totalValues))), totalValues: totalValues,
	}
}

type fujiParams struct {
	qtables                     []fujiQTable
	maxBits                     int32
	minValue, maxValue          int32
	lineWidth                   int
}

func fujiNewParams(h *fujiHeader) (*fujiParams, error) {
	if (h.blockSize%3 != 0 && h.rawType == 16) || (h.blockSize&1 != 0 && h.rawType == 0) {
		return nil, newFormatErrorf("raf: invalid block size %d for raw_type %d", h.blockSize, h.rawType)
	}
	minValue := int32(0x40)
	maxValue := int32(1)<<uint(h.rawBits) - 1
	maxBits := int32(4 * fujiLog2Ceil(int(maxValue)+1))
	var lineWidth int
	if h.rawType == 16 {
		lineWidth = int(h.blockSize) * 2 / 3
	} else {
		lineWidth = int(h.blockSize) >> 1
	}

	var qtables []fujiQTable
	if h.isLossless() {
		qtables = []fujiQTable{fujiNewMainQTable(int32(h.rawBits), maxValue, 0)}
	} else {
		qtables = make([]fujiQTable, 4)
		qtables[0].qBase = -1

		mk := func(qBase, maxGrad int32, t1, t2, t3 int32) fujiQTable {
			qp := [5]int32{qBase, 0, 0, 0, maxValue}
			if maxValue >= t1 {
				qp[1] = t1
			} else {
				qp[1] = qBase + 1
			}
			if maxValue >= t2 {
				qp[2] = t2
			} else {
				qp[2] = qp[1]
			}
			if maxValue >= t3 {
				qp[3] = t3
			} else {
				qp[3] = qp[2]
			}
			totalValues := (maxValue+2*qBase)/(2*qBase+1) + 1
			return fujiQTable{
				qBase: qBase, maxGrad: maxGrad, qGradientMulti: 3,
				totalValues: totalValues, rawBits: int32(fujiLog2Ceil(int(totalValues))),
				table: fujiBuildQTable(int32(h.rawBits), qp),
			}
		}
		qtables[1] = mk(0, 5, 0x12, 0x43, 0x114)
		qtables[2] = mk(1, 6, 0x15, 0x48, 0x11B)
		qtables[3] = mk(2, 7, 0x18, 0x4D, 0x122)
	}

	return &fujiParams{qtables: qtables, maxBits: maxBits, minValue: minValue, maxValue: maxValue, lineWidth: lineWidth}, nil
}

// fujiBitReader is a big-endian MSB-first bit reader with no byte
// stuffing, matching the reference's BitReaderBe32.
type fujiBitReader struct {
	v     *View
	buf   uint64
	nbits uint
}

func (r *fujiBitReader) fill() {
	for r.nbits <= 56 {
		if r.v.Pos() >= r.v.Length() {
			r.buf <<= 8
			r.nbits += 8
			continue
		}
		r.buf = (r.buf << 8) | uint64(r.v.ReadU8())
		r.nbits += 8
	}
}

func (r *fujiBitReader) peek(n int) uint32 {
	r.fill()
	return uint32((r.buf >> (r.nbits - uint(n))) & ((1 << uint(n)) - 1))
}

func (r *fujiBitReader) consume(n int) { r.nbits -= uint(n) }

func (r *fujiBitReader) getBits(n int) uint32 {
	if n == 0 {
		return 0
	}
	v := r.peek(n)
	r.consume(n)
	return v
}

func (r *fujiBitReader) consumeZerobits() int {
	count := 0
	for r.peek(1) == 0 {
		r.consume(1)
		count++
	}
	return count
}

func fujiZerobits(r *fujiBitReader) int32 {
	count := r.consumeZerobits()
	r.consume(1)
	return int32(count)
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func fujiBitDiff(v1, v2 int32) int {
	if v2 >= v1 {
		return 0
	}
	decBits := 0
	for decBits <= 14 {
		decBits++
		if v2<<uint(decBits) >= v1 {
			return decBits
		}
	}
	return decBits
}

func fujiReadCode(r *fujiBitReader, params *fujiParams, g *gradient, qt *fujiQTable) int32 {
	sample := fujiZerobits(r)
	var code int32
	if sample < params.maxBits-qt.rawBits-1 {
		decBits := fujiBitDiff(g[0], g[1])
		var extra int32
		if decBits != 0 {
			extra = int32(r.getBits(decBits))
		}
		code = sample<<uint(decBits) + extra
	} else {
		code = 1 + int32(r.getBits(int(qt.rawBits)))
	}
	if code&1 != 0 {
		code = -1 - code/2
	} else {
		code /= 2
	}
	g[0] += abs32(code)
	if g[1] == params.minValue {
		g[0] >>= 1
		g[1] >>= 1
	}
	g[1]++
	return code
}

type fujiBlock struct {
	gradEven, gradOdd [3]fujiGradientList
	linebuf           [xtLineTotal][]uint16
}

func newFujiBlock(params *fujiParams) *fujiBlock {
	b := &fujiBlock{}
	for i := range b.linebuf {
		b.linebuf[i] = make([]uint16, params.lineWidth+2)
	}
	if params.qtables[0].qBase >= 0 {
		maxDiff := int32(2)
		if v := (params.qtables[0].totalValues + 0x20) >> 6; v > maxDiff {
			maxDiff = v
		}
		for j := 0; j < 3; j++ {
			for i := 0; i < 41; i++ {
				b.gradEven[j].lossless[i] = gradient{maxDiff, 1}
				b.gradOdd[j].lossless[i] = gradient{maxDiff, 1}
			}
		}
	}
	return b
}

func (b *fujiBlock) extendGeneric(lineWidth, start, end int) {
	for i := start; i <= end; i++ {
		b.linebuf[i][0] = b.linebuf[i-1][1]
		b.linebuf[i][lineWidth+1] = b.linebuf[i-1][lineWidth]
	}
}

func (b *fujiBlock) extendRed(lw int)   { b.extendGeneric(lw, xtLineR2, xtLineR4) }
func (b *fujiBlock) extendGreen(lw int) { b.extendGeneric(lw, xtLineG2, xtLineG7) }
func (b *fujiBlock) extendBlue(lw int)  { b.extendGeneric(lw, xtLineB2, xtLineB4) }

func fujiPickQTableEven(params *fujiParams, grads *fujiGradientList, diffA, diffB int32) (*fujiQTable, []gradient) {
	qtable := &params.qtables[0]
	gradients := grads.lossless[:]
	for i := 1; i < 4; i++ {
		if params.qtables[0].qBase < int32(i) {
			break
		}
		if diffA+diffB <= params.qtables[i].maxGrad {
			qtable = &params.qtables[i]
			gradients = grads.lossy[i-1][:]
			break
		}
	}
	return qtable, gradients
}

func fujiDecodeSampleEven(r *fujiBitReader, params *fujiParams, linebuf [][]uint16, line int, pos *int, grads *fujiGradientList) {
	rb := int32(linebuf[line-1][1+*pos])
	rc := int32(linebuf[line-1][1+*pos-1])
	rd := int32(linebuf[line-1][1+*pos+1])
	rf := int32(linebuf[line-2][1+*pos])
	diffRcRb := abs32(rc - rb)
	diffRfRb := abs32(rf - rb)
	diffRdRb := abs32(rd - rb)

	qtable, gradients := fujiPickQTableEven(params, grads, diffRfRb, diffRcRb)
	grad := qtable.lookupGradient(params, rb-rf, rc-rb)

	var interpVal int32
	switch {
	case diffRcRb > diffRfRb && diffRcRb > diffRdRb:
		interpVal = rf + rd + 2*rb
	case diffRdRb > diffRcRb && diffRdRb > diffRfRb:
		interpVal = rf + rc + 2*rb
	default:
		interpVal = rd + rc + 2*rb
	}

	code := fujiReadCode(r, params, &gradients[abs32(grad)], qtable)

	if grad < 0 {
		interpVal = (interpVal >> 2) - code*(2*qtable.qBase+1)
	} else {
		interpVal = (interpVal >> 2) + code*(2*qtable.qBase+1)
	}
	if interpVal < -qtable.qBase {
		interpVal += qtable.totalValues * (2*qtable.qBase + 1)
	} else if interpVal > qtable.qBase+params.maxValue {
		interpVal -= qtable.totalValues * (2*qtable.qBase + 1)
	}

	if interpVal >= 0 {
		linebuf[line][1+*pos] = uint16(min32(interpVal, params.maxValue))
	} else {
		linebuf[line][1+*pos] = 0
	}
	*pos += 2
}

func fujiDecodeSampleOdd(r *fujiBitReader, params *fujiParams, linebuf [][]uint16, line int, pos *int, grads *fujiGradientList) {
	ra := int32(linebuf[line][1+*pos-1])
	rb := int32(linebuf[line-1][1+*pos])
	rc := int32(linebuf[line-1][1+*pos-1])
	rd := int32(linebuf[line-1][1+*pos+1])
	rg := int32(linebuf[line][1+*pos+1])
	diffRcRa := abs32(rc - ra)
	diffRbRc := abs32(rb - rc)

	qtable, gradients := fujiPickQTableEven(params, grads, diffRbRc, diffRcRa)
	grad := qtable.lookupGradient(params, rb-rc, rc-ra)

	var interpVal int32
	if (rb > rc && rb > rd) || (rb < rc && rb < rd) {
		interpVal = (rg + ra + 2*rb) >> 2
	} else {
		interpVal = (ra + rg) >> 1
	}

	code := fujiReadCode(r, params, &gradients[abs32(grad)], qtable)

	if grad < 0 {
		interpVal -= code * (2*qtable.qBase + 1)
	} else {
		interpVal += code * (2*qtable.qBase + 1)
	}
	if interpVal < -qtable.qBase {
		interpVal += qtable.totalValues * (2*qtable.qBase + 1)
	} else if interpVal > qtable.qBase+params.maxValue {
		interpVal -= qtable.totalValues * (2*qtable.qBase + 1)
	}

	if interpVal >= 0 {
		linebuf[line][1+*pos] = uint16(min32(interpVal, params.maxValue))
	} else {
		linebuf[line][1+*pos] = 0
	}
	*pos += 2
}

type fujiColourPos struct{ even, odd int }

func (c *fujiColourPos) reset() { c.even, c.odd = 0, 1 }

// fujiBayerDecodeBlock runs the 6 interleaved red/green and green/blue
// passes that reconstruct one 6-row tile of a Bayer RAF strip.
func fujiBayerDecodeBlock(r *fujiBitReader, params *fujiParams, block *fujiBlock) {
	lineWidth := params.lineWidth
	var red, green, blue fujiColourPos
	red.reset()
	green.reset()
	blue.reset()

	passRG := func(c0, c1, grad int) {
		for green.even < lineWidth || green.odd < lineWidth {
			if green.even < lineWidth {
				fujiDecodeSampleEven(r, params, block.linebuf[:], c0, &red.even, &block.gradEven[grad])
				fujiDecodeSampleEven(r, params, block.linebuf[:], c1, &green.even, &block.gradEven[grad])
			}
			if green.even > 8 {
				fujiDecodeSampleOdd(r, params, block.linebuf[:], c0, &red.odd, &block.gradOdd[grad])
				fujiDecodeSampleOdd(r, params, block.linebuf[:], c1, &green.odd, &block.gradOdd[grad])
			}
		}
		block.extendRed(lineWidth)
		block.extendGreen(lineWidth)
	}
	passGB := func(c0, c1, grad int) {
		for green.even < lineWidth || green.odd < lineWidth {
			if green.even < lineWidth {
				fujiDecodeSampleEven(r, params, block.linebuf[:], c0, &green.even, &block.gradEven[grad])
				fujiDecodeSampleEven(r, params, block.linebuf[:], c1, &blue.even, &block.gradEven[grad])
			}
			if green.even > 8 {
				fujiDecodeSampleOdd(r, params, block.linebuf[:], c0, &green.odd, &block.gradOdd[grad])
				fujiDecodeSampleOdd(r, params, block.linebuf[:], c1, &blue.odd, &block.gradOdd[grad])
			}
		}
		block.extendGreen(lineWidth)
		block.extendBlue(lineWidth)
	}

	passRG(xtLineR2, xtLineG2, 0)
	green.reset()

	passGB(xtLineG3, xtLineB2, 1)
	red.reset()
	green.reset()

	passRG(xtLineR3, xtLineG4, 2)
	green.reset()
	blue.reset()

	passGB(xtLineG5, xtLineB3, 0)
	red.reset()
	green.reset()

	passRG(xtLineR4, xtLineG6, 1)
	green.reset()
	blue.reset()

	passGB(xtLineG7, xtLineB4, 2)
}

// fujiDecodeInterpolationEven fills one even sample by averaging its
// already-decoded neighbors instead of reading a code from the bitstream;
// X-Trans's sparser per-colour sampling means several grid positions are
// never coded directly and must be interpolated this way.
func fujiDecodeInterpolationEven(block *fujiBlock, line int, pos *int) {
	rb := int32(block.linebuf[line-1][1+*pos])
	rc := int32(block.linebuf[line-1][1+*pos-1])
	rd := int32(block.linebuf[line-1][1+*pos+1])
	rf := int32(block.linebuf[line-2][1+*pos])

	diffRcRb := abs32(rc - rb)
	diffRfRb := abs32(rf - rb)
	diffRdRb := abs32(rd - rb)

	var v int32
	switch {
	case diffRcRb > diffRfRb && diffRcRb > diffRdRb:
		v = (rf + rd + 2*rb) >> 2
	case diffRdRb > diffRcRb && diffRdRb > diffRfRb:
		v = (rf + rc + 2*rb) >> 2
	default:
		v = (rd + rc + 2*rb) >> 2
	}
	block.linebuf[line][1+*pos] = uint16(v)
	*pos += 2
}

// fujiXTransDecodeBlock runs the 6-pass X-Trans decode: unlike Bayer's
// even split between colours, X-Trans's 6x6 mosaic puts green at 20 of 36
// cells, so every pass mixes a genuinely coded sample with one recovered
// through fujiDecodeInterpolationEven, and which colour gets which
// treatment rotates pass to pass (grounded on
// fuji_xtrans_decode_block/fuji_xtrans_pass).
func fujiXTransDecodeBlock(r *fujiBitReader, params *fujiParams, block *fujiBlock) {
	lineWidth := params.lineWidth
	var red, green, blue fujiColourPos
	red.reset()
	green.reset()
	blue.reset()

	for green.even < lineWidth || green.odd < lineWidth {
		if green.even < lineWidth {
			fujiDecodeInterpolationEven(block, xtLineR2, &red.even)
			fujiDecodeSampleEven(r, params, block.linebuf[:], xtLineG2, &green.even, &block.gradEven[0])
		}
		if green.even > 8 {
			fujiDecodeSampleOdd(r, params, block.linebuf[:], xtLineR2, &red.odd, &block.gradOdd[0])
			fujiDecodeSampleOdd(r, params, block.linebuf[:], xtLineG2, &green.odd, &block.gradOdd[0])
		}
	}
	block.extendRed(lineWidth)
	block.extendGreen(lineWidth)
	green.reset()

	for green.even < lineWidth || green.odd < lineWidth {
		if green.even < lineWidth {
			fujiDecodeSampleEven(r, params, block.linebuf[:], xtLineG3, &green.even, &block.gradEven[1])
			fujiDecodeInterpolationEven(block, xtLineB2, &blue.even)
		}
		if green.even > 8 {
			fujiDecodeSampleOdd(r, params, block.linebuf[:], xtLineG3, &green.odd, &block.gradOdd[1])
			fujiDecodeSampleOdd(r, params, block.linebuf[:], xtLineB2, &blue.odd, &block.gradOdd[1])
		}
	}
	block.extendGreen(lineWidth)
	block.extendBlue(lineWidth)
	red.reset()
	green.reset()

	for green.even < lineWidth || green.odd < lineWidth {
		if green.even < lineWidth {
			if red.even&3 != 0 {
				fujiDecodeSampleEven(r, params, block.linebuf[:], xtLineR3, &red.even, &block.gradEven[2])
			} else {
				fujiDecodeInterpolationEven(block, xtLineR3, &red.even)
			}
			fujiDecodeInterpolationEven(block, xtLineG4, &green.even)
		}
		if green.even > 8 {
			fujiDecodeSampleOdd(r, params, block.linebuf[:], xtLineR3, &red.odd, &block.gradOdd[2])
			fujiDecodeSampleOdd(r, params, block.linebuf[:], xtLineG4, &green.odd, &block.gradOdd[2])
		}
	}
	block.extendRed(lineWidth)
	block.extendGreen(lineWidth)
	green.reset()
	blue.reset()

	for green.even < lineWidth || green.odd < lineWidth {
		if green.even < lineWidth {
			fujiDecodeSampleEven(r, params, block.linebuf[:], xtLineG5, &green.even, &block.gradEven[0])
			if blue.even&3 == 2 {
				fujiDecodeInterpolationEven(block, xtLineB3, &blue.even)
			} else {
				fujiDecodeSampleEven(r, params, block.linebuf[:], xtLineB3, &blue.even, &block.gradEven[0])
			}
		}
		if green.even > 8 {
			fujiDecodeSampleOdd(r, params, block.linebuf[:], xtLineG5, &green.odd, &block.gradOdd[0])
			fujiDecodeSampleOdd(r, params, block.linebuf[:], xtLineB3, &blue.odd, &block.gradOdd[0])
		}
	}
	block.extendGreen(lineWidth)
	block.extendBlue(lineWidth)
	red.reset()
	green.reset()

	for green.even < lineWidth || green.odd < lineWidth {
		if green.even < lineWidth {
			if red.even&3 == 2 {
				fujiDecodeInterpolationEven(block, xtLineR4, &red.even)
			} else {
				fujiDecodeSampleEven(r, params, block.linebuf[:], xtLineR4, &red.even, &block.gradEven[1])
			}
			fujiDecodeSampleEven(r, params, block.linebuf[:], xtLineG6, &green.even, &block.gradEven[1])
		}
		if green.even > 8 {
			fujiDecodeSampleOdd(r, params, block.linebuf[:], xtLineR4, &red.odd, &block.gradOdd[1])
			fujiDecodeSampleOdd(r, params, block.linebuf[:], xtLineG6, &green.odd, &block.gradOdd[1])
		}
	}
	block.extendRed(lineWidth)
	block.extendGreen(lineWidth)
	green.reset()
	blue.reset()

	for green.even < lineWidth || green.odd < lineWidth {
		if green.even < lineWidth {
			fujiDecodeInterpolationEven(block, xtLineG7, &green.even)
			if blue.even&3 != 0 {
				fujiDecodeSampleEven(r, params, block.linebuf[:], xtLineB4, &blue.even, &block.gradEven[2])
			} else {
				fujiDecodeInterpolationEven(block, xtLineB4, &blue.even)
			}
		}
		if green.even > 8 {
			fujiDecodeSampleOdd(r, params, block.linebuf[:], xtLineG7, &green.odd, &block.gradOdd[2])
			fujiDecodeSampleOdd(r, params, block.linebuf[:], xtLineB4, &blue.odd, &block.gradOdd[2])
		}
	}
	block.extendGreen(lineWidth)
	block.extendBlue(lineWidth)
}

// xtransPattern is the common Fujifilm 6x6 X-Trans colour filter array
// shared by nearly all X-Trans sensors (spec 4.10); 0/1/2 = R/G/B, the
// same encoding fujiCopyBayerLine's grid uses. A handful of early bodies
// are documented to mirror this layout; that per-camera variant isn't
// modeled here.
var xtransPattern = [6][6]int{
	{1, 2, 1, 1, 0, 1},
	{0, 1, 0, 2, 1, 2},
	{1, 2, 1, 1, 0, 1},
	{1, 0, 1, 1, 2, 1},
	{2, 1, 2, 0, 1, 0},
	{1, 0, 1, 1, 2, 1},
}

// fujiXTransLineIndex maps a pixel column to its slot within the 3-wide
// per-colour line buffers X-Trans's 6-column repeat interleaves every
// colour into (grounded on copy_line_to_xtrans's index closure).
func fujiXTransLineIndex(pixelCount int) int {
	return (((pixelCount*2/3)&^1 | ((pixelCount % 3) & 1)) + ((pixelCount % 3) >> 1))
}

// fujiCopyXTransLine places one decoded 6-row tile into dst using the
// X-Trans mosaic, mirroring fujiCopyBayerLine's Bayer placement.
func fujiCopyXTransLine(block *fujiBlock, width, offsetX, offsetY int, dst []uint16, dstWidth int) {
	var rRows = [3]int{xtLineR2, xtLineR3, xtLineR4}
	var gRows = [6]int{xtLineG2, xtLineG3, xtLineG4, xtLineG5, xtLineG6, xtLineG7}
	var bRows = [3]int{xtLineB2, xtLineB3, xtLineB4}

	for row := 0; row < 6; row++ {
		for col := 0; col < width; col++ {
			colour := xtransPattern[row%6][col%6]
			idx := fujiXTransLineIndex(col)
			var v uint16
			switch colour {
			case 0:
				v = block.linebuf[rRows[row>>1]][1+idx]
			case 1:
				v = block.linebuf[gRows[row]][1+idx]
			default:
				v = block.linebuf[bRows[row>>1]][1+idx]
			}
			dst[(offsetY+row)*dstWidth+offsetX+col] = v
		}
	}
}

var bayerColourGrid = map[CFAPattern][2][2]int{
	Rggb: {{0, 1}, {1, 2}},
	Gbrg: {{1, 2}, {0, 1}},
	Grbg: {{1, 0}, {2, 1}},
	Bggr: {{2, 1}, {1, 0}},
}

// fujiCopyBayerLine places one decoded 6-row tile into dst (a dense
// raw_width x raw_height uint16 buffer) at the strip's (offsetX, offsetY).
func fujiCopyBayerLine(block *fujiBlock, cfa CFAPattern, width, offsetX, offsetY, lineIdx int, dst []uint16, dstWidth int) {
	grid, ok := bayerColourGrid[cfa]
	if !ok {
		grid = bayerColourGrid[Rggb]
	}
	var rRows = [3]int{xtLineR2, xtLineR3, xtLineR4}
	var gRows = [6]int{xtLineG2, xtLineG3, xtLineG4, xtLineG5, xtLineG6, xtLineG7}
	var bRows = [3]int{xtLineB2, xtLineB3, xtLineB4}

	for row := 0; row < 6; row++ {
		for col := 0; col < width; col++ {
			colour := grid[row%2][col%2]
			idx := col >> 1
			var v uint16
			switch colour {
			case 0:
				v = block.linebuf[rRows[row>>1]][1+idx]
			case 1:
				v = block.linebuf[gRows[row]][1+idx]
			default:
				v = block.linebuf[bRows[row>>1]][1+idx]
			}
			dst[(offsetY+row)*dstWidth+offsetX+col] = v
		}
	}
}

type fujiStrip struct {
	offset, size, n int
	header          *fujiHeader
}

func (s *fujiStrip) width() int {
	if s.n+1 != int(s.header.blocksInRow) {
		return int(s.header.blockSize)
	}
	return int(s.header.rawWidth) - s.offsetX()
}

func (s *fujiStrip) offsetX() int { return int(s.header.blockSize) * s.n }

func fujiDecodeStrip(strip *fujiStrip, v *View, params *fujiParams, qBases []byte, cfa CFAPattern, dst []uint16, dstWidth int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && e == errStop {
				err = newDecompressionErrorf("raf: truncated stream in strip %d", strip.n)
				return
			}
			panic(r)
		}
	}()

	block := newFujiBlock(params)
	sub, err := CreateSubview(v, int64(strip.offset))
	if err != nil {
		return newFormatError(err)
	}
	sub.SetByteOrder(Big)
	br := &fujiBitReader{v: sub}

	localParams := *params
	localQtables := append([]fujiQTable(nil), params.qtables...)
	localParams.qtables = localQtables

	for curLine := 0; curLine < int(strip.header.totalLines); curLine++ {
		if !strip.header.isLossless() {
			qBase := int32(qBases[curLine])
			if curLine == 0 || qBase != localParams.qtables[0].qBase {
				maxValue := int32(1)<<uint(strip.header.rawBits) - 1
				localParams.qtables[0] = fujiNewMainQTable(int32(strip.header.rawBits), maxValue, qBase)

				maxDiff := int32(2)
				if v := (localParams.qtables[0].totalValues + 0x20) >> 6; v > maxDiff {
					maxDiff = v
				}
				for j := 0; j < 3; j++ {
					for i := 0; i < 41; i++ {
						block.gradEven[j].lossless[i] = gradient{maxDiff, 1}
						block.gradOdd[j].lossless[i] = gradient{maxDiff, 1}
					}
				}
			}
		}

		if strip.header.rawType == 16 {
			fujiXTransDecodeBlock(br, &localParams, block)
			fujiCopyXTransLine(block, strip.width(), strip.offsetX(), curLine*6, dst, dstWidth)
		} else {
			fujiBayerDecodeBlock(br, &localParams, block)
			fujiCopyBayerLine(block, cfa, strip.width(), strip.offsetX(), curLine*6, curLine, dst, dstWidth)
		}

		// mtable: rotate the line buffer's history rows forward.
		for _, pair := range [][2]int{{xtLineR0, xtLineR3}, {xtLineR1, xtLineR4}, {xtLineG0, xtLineG6}, {xtLineG1, xtLineG7}, {xtLineB0, xtLineB3}, {xtLineB1, xtLineB4}} {
			copy(block.linebuf[pair[0]], block.linebuf[pair[1]])
		}
		// ztable: zero the working rows and seed their edge pixels.
		for _, z := range [][2]int{{xtLineR2, 3}, {xtLineG2, 6}, {xtLineB2, 3}} {
			for line := z[0]; line < z[0]+z[1]; line++ {
				for i := range block.linebuf[line] {
					block.linebuf[line][i] = 0
				}
			}
			block.linebuf[z[0]][0] = block.linebuf[z[0]-1][1]
			block.linebuf[z[0]][params.lineWidth+1] = block.linebuf[z[0]-1][params.lineWidth]
		}
	}
	return nil
}

// DecodeFujiRAF decodes a Fujifilm RAF compressed strip payload (spec
// 4.10). v must be positioned so that offset 0 is the 16-byte strip
// header. Strips are decoded concurrently, matching the reference's
// rayon-based fan-out — the only decoder this engine parallelizes.
func DecodeFujiRAF(v *View, cfa CFAPattern) (data []uint16, width, height int, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && e == errStop {
				err = newDecompressionErrorf("raf: truncated header or strip table")
				return
			}
			panic(r)
		}
	}()

	v = v.Clone()
	v.SetByteOrder(Big)

	h := &fujiHeader{}
	h.signature = v.ReadU16()
	h.lossless = v.ReadU8()
	h.rawType = v.ReadU8()
	h.rawBits = v.ReadU8()
	h.rawHeight = v.ReadU16()
	h.rawRoundedWidth = v.ReadU16()
	h.rawWidth = v.ReadU16()
	h.blockSize = v.ReadU16()
	h.blocksInRow = v.ReadU8()
	h.totalLines = v.ReadU16()

	cfaH, cfaW := 2, 2
	if cfa == XTrans {
		cfaH, cfaW = 6, 6
	}
	if !h.isValid(cfaH, cfaW) {
		return nil, 0, 0, newFormatErrorf("raf: invalid strip header")
	}

	params, err := fujiNewParams(h)
	if err != nil {
		return nil, 0, 0, err
	}

	blockSizes := make([]uint32, h.blocksInRow)
	for i := range blockSizes {
		blockSizes[i] = v.ReadU32()
	}
	rawOffset := int(h.blocksInRow) * 4
	rawOffsetPadded := (rawOffset + 0xF) &^ 0xF
	if err := v.Skip(int64(rawOffsetPadded - rawOffset)); err != nil {
		return nil, 0, 0, newFormatError(err)
	}

	var qBases []byte
	lineStep := (int(h.totalLines) + 0xF) &^ 0xF
	if !h.isLossless() {
		total := len(blockSizes) * lineStep
		qBases = v.ReadBytesVolatile(total)
		qBasesCopy := make([]byte, len(qBases))
		copy(qBasesCopy, qBases)
		qBases = qBasesCopy
	}

	strips := make([]*fujiStrip, len(blockSizes))
	for n, sz := range blockSizes {
		strips[n] = &fujiStrip{offset: int(v.Pos()), size: int(sz), n: n, header: h}
		if err := v.Skip(int64(sz)); err != nil {
			return nil, 0, 0, newFormatError(err)
		}
	}

	width = int(h.rawWidth)
	height = int(h.rawHeight)
	data = make([]uint16, width*height)

	var wg sync.WaitGroup
	errs := make([]error, len(strips))
	for i, strip := range strips {
		wg.Add(1)
		go func(i int, strip *fujiStrip) {
			defer wg.Done()
			var stripQBases []byte
			if qBases != nil {
				stripQBases = qBases[strip.n*lineStep:]
			}
			errs[i] = fujiDecodeStrip(strip, v, params, stripQBases, cfa, data, width)
		}(i, strip)
	}
	wg.Wait()

	for _, e := range errs {
		if e != nil {
			return nil, 0, 0, e
		}
	}

	return data, width, height, nil
}
