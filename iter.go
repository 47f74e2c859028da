package histogram

// Iter walks the histogram's buckets in index order. Each Iter owns its own
// position, so any number of them can read the same histogram at once; the
// histogram itself carries no iteration state.
//
// An Iter does not observe mutations consistently; finish recording before
// iterating.
type Iter struct {
	h    *Histogram
	next uint64
}

// Iter returns a new iterator positioned at the first bucket.
func (h *Histogram) Iter() *Iter {
	return &Iter{h: h}
}

// Next returns the next bucket and true, or a zero Bucket and false once
// every bucket has been yielded. Exhaustion rewinds the iterator, so the
// same Iter can make a second full pass.
func (it *Iter) Next() (Bucket, bool) {
	if it.next >= it.h.bucketsTotal {
		it.next = 0
		return Bucket{}, false
	}

	b := Bucket{
		ID:    it.next,
		Value: it.h.bucketValue(it.next),
		Count: it.h.counts[it.next],
	}
	it.next++
	return b, true
}

// Reset rewinds the iterator to the first bucket.
func (it *Iter) Reset() {
	it.next = 0
}
