// Package assert provides debug-build-only invariant checks shared by
// every descriptor in this module (avltree.Tree, orderedset.Set,
// orderedmap.Map, vector.Vector, allocator.Region).
//
// Checks compile away entirely in release builds; enable them with the
// cmagicdebug build tag. This mirrors the original C library's
// "#ifndef NDEBUG" magic-value fields and the teacher's
// Config.EnableDebug/EnableLeakCheck knobs, rather than pulling in a
// third-party assertion package for what is, in both sources, a single
// bool-and-panic primitive.
package assert

// Magic is a debug-only descriptor tag. Each façade embeds one and checks
// it on every public call when built with cmagicdebug, catching use of a
// handle whose constructor already failed or that was freed and reused.
type Magic int32

const (
	MagicAVLTree   Magic = 'T'<<24 | 'R'<<16 | 'E'<<8 | 'E'
	MagicSet       Magic = 'S'<<16 | 'E'<<8 | 'T'
	MagicMap       Magic = 'M'<<24 | 'A'<<16 | 'P'<<8
	MagicVector    Magic = 'V'<<24 | 'E'<<16 | 'C'<<8 | 'T'
)
