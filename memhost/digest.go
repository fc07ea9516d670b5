package memhost

import (
	"github.com/cespare/xxhash/v2"
	qt "github.com/valyala/quicktemplate"
)

// Digest hashes the markup of the tree below n. Two trees render the same
// markup exactly when their digests match, barring collisions.
func Digest(n *Node) uint64 {
	d := xxhash.New()
	w := qt.AcquireWriter(d)
	StreamMarkup(w, n)
	qt.ReleaseWriter(w)
	return d.Sum64()
}
