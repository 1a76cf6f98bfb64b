// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import "math"

// fourCC is an ISO-BMFF/QuickTime box type: four raw bytes, compared and
// keyed directly rather than converted to string.
type fourCC [4]byte

// Box is one node of an ISO-BMFF box tree, parsed eagerly into memory.
// Start/Size are absolute view-local coordinates; Size == 0 means the box
// extends to the end of its parent.
type Box struct {
	Type     fourCC
	Start    int64
	Size     int64
	Body     int64 // view-local offset where the box payload begins
	Children []*Box
}

// End returns the box's end offset, resolving a zero Size against parentEnd.
func (b *Box) End(parentEnd int64) int64 {
	if b.Size == 0 {
		return parentEnd
	}
	return b.Start + b.Size
}

// containerBoxTypes lists the standard ISO-BMFF box types whose payload is
// itself a sequence of boxes rather than opaque data, so the tree walker
// knows to recurse into them.
var containerBoxTypes = map[fourCC]bool{
	{'m', 'o', 'o', 'v'}: true,
	{'t', 'r', 'a', 'k'}: true,
	{'m', 'd', 'i', 'a'}: true,
	{'m', 'i', 'n', 'f'}: true,
	{'s', 't', 'b', 'l'}: true,
	{'u', 'd', 't', 'a'}: true,
	{'C', 'R', 'A', 'W'}: true,
	{'C', 'N', 'T', 'N'}: true,
}

// MP4Container is a box-tree reader with a specialization for the Canon
// CRAW header (thumbnail offsets, metadata blocks, raw track descriptor).
type MP4Container struct {
	view *View
	Root *Box
}

// readBoxHeader reads one ISO-BMFF box header at the view's current
// position, handling the 64-bit extended-size form, and returns the box
// with its Body offset set. The view is left positioned at Body.
func readBoxHeader(v *View) (*Box, error) {
	start := v.Pos()
	size32, err := v.ReadU32E()
	if err != nil {
		return nil, err
	}
	var typ fourCC
	if err := v.ReadBytes(typ[:]); err != nil {
		return nil, err
	}
	size := uint64(size32)
	if size32 == 1 {
		big, err := func() (uint64, error) {
			b := v.readN(8)
			return v.order().Uint64(b), nil
		}()
		if err != nil {
			return nil, err
		}
		size = big
	}
	if size > uint64(math.MaxInt64) {
		return nil, newFormatErrorf("mp4: box size overflow")
	}
	return &Box{Type: typ, Start: start, Size: int64(size), Body: v.Pos()}, nil
}

// ParseMP4Container reads the whole box tree starting at view's position 0.
// ftyp is validated as the first top-level box (CR3's brand is validated
// by the caller against "crx ").
func ParseMP4Container(view *View) (*MP4Container, error) {
	if err := view.Seek(0); err != nil {
		return nil, err
	}
	root := &Box{Type: fourCC{}, Start: 0, Size: view.Length(), Body: 0}
	if err := parseBoxesInto(view, root, view.Length()); err != nil {
		return nil, err
	}
	return &MP4Container{view: view, Root: root}, nil
}

func parseBoxesInto(v *View, parent *Box, parentEnd int64) error {
	for v.Pos()+8 <= parentEnd {
		box, err := readBoxHeader(v)
		if err != nil {
			return err
		}
		end := box.End(parentEnd)
		if end > parentEnd || end < box.Body {
			return newFormatErrorf("mp4: box %q overruns parent", box.Type)
		}
		if containerBoxTypes[box.Type] {
			if err := v.Seek(box.Body); err != nil {
				return err
			}
			if err := parseBoxesInto(v, box, end); err != nil {
				return err
			}
		}
		parent.Children = append(parent.Children, box)
		if err := v.Seek(end); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the first child of parent (direct children only) whose
// type matches.
func (b *Box) Find(typ fourCC) (*Box, bool) {
	for _, c := range b.Children {
		if c.Type == typ {
			return c, true
		}
	}
	return nil, false
}

// FindPath walks a sequence of box types, descending one level per
// element, e.g. FindPath(root, "moov", "trak").
func (b *Box) FindPath(path ...string) (*Box, bool) {
	cur := b
	for _, p := range path {
		var typ fourCC
		copy(typ[:], p)
		next, ok := cur.Find(typ)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// All returns every descendant box (depth-first) whose type matches.
func (b *Box) All(typ fourCC) []*Box {
	var out []*Box
	var walk func(*Box)
	walk = func(n *Box) {
		if n.Type == typ {
			out = append(out, n)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, c := range b.Children {
		walk(c)
	}
	return out
}

// BodyView returns a subview of the container's view over box's payload
// (Body..End), which a caller can hand to a nested parser (e.g. a TIFF
// metadata blob embedded inside a Canon CRAW box) without copying.
func (c *MP4Container) BodyView(b *Box, parentEnd int64) (*View, error) {
	sv, err := CreateSubview(c.view, b.Body)
	if err != nil {
		return nil, err
	}
	length := b.End(parentEnd) - b.Body
	if length < sv.length {
		sv.length = length
	}
	return sv, nil
}

// View returns the container's underlying view.
func (c *MP4Container) View() *View { return c.view }
