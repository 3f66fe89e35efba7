package entry

// Builder accumulates the pieces of a new Entry before it is signed. The
// transaction engine (pkg/dag) is the only expected caller.
type Builder struct {
	e Entry
}

// NewBuilder starts a new entry of the current version.
func NewBuilder() *Builder {
	return &Builder{e: Entry{Version: CurrentVersion}}
}

// WithTree sets the owning tree root and main-tree parents.
func (b *Builder) WithTree(root ID, parents []ID) *Builder {
	b.e.Tree = TreeRef{Root: root, Parents: parents}
	return b
}

// WithHeight sets the entry's main-tree height.
func (b *Builder) WithHeight(height uint64) *Builder {
	b.e.Height = height
	return b
}

// AddSubtree appends a subtree reference. Order does not matter; Entry
// canonicalizes by name when hashing.
func (b *Builder) AddSubtree(ref SubtreeRef) *Builder {
	b.e.Subtrees = append(b.e.Subtrees, ref)
	return b
}

// WithSigKey sets the signature's key identifier (the actual signature
// bytes are filled in later by Entry.Sign).
func (b *Builder) WithSigKey(key SigKey) *Builder {
	b.e.Sig.Key = key
	return b
}

// WithPubKey attaches a raw public key to the signature envelope, required
// for the Global SigKey variant.
func (b *Builder) WithPubKey(pub []byte) *Builder {
	b.e.Sig.PubKey = pub
	return b
}

// Build returns the accumulated, not-yet-signed entry.
func (b *Builder) Build() Entry {
	return b.e
}

// HeightOf returns 1+max(heights) over the given parent heights, or 0 if
// there are none. This is the height rule for both the main tree and every
// subtree.
func HeightOf(parentHeights []uint64) uint64 {
	if len(parentHeights) == 0 {
		return 0
	}
	max := parentHeights[0]
	for _, h := range parentHeights[1:] {
		if h > max {
			max = h
		}
	}
	return max + 1
}
