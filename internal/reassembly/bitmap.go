package reassembly

// bitmap is a compact bitset tracking which chunk indices have been
// persisted. Cheaper than a map for dense index ranges.
type bitmap struct {
	bits int
	data []byte
}

func newBitmap(bits int) *bitmap {
	if bits < 0 {
		bits = 0
	}
	return &bitmap{
		bits: bits,
		data: make([]byte, (bits+7)/8),
	}
}

func (b *bitmap) set(i int) {
	if i < 0 || i >= b.bits {
		return
	}
	b.data[i/8] |= 1 << uint(i%8)
}

func (b *bitmap) get(i int) bool {
	if i < 0 || i >= b.bits {
		return false
	}
	return b.data[i/8]&(1<<uint(i%8)) != 0
}

func (b *bitmap) countSet() int {
	count := 0
	for _, v := range b.data {
		for v != 0 {
			v &= v - 1
			count++
		}
	}
	return count
}

// indices returns the set bit positions in ascending order.
func (b *bitmap) indices() []int {
	out := make([]int, 0, b.countSet())
	for i := 0; i < b.bits; i++ {
		if b.get(i) {
			out = append(out, i)
		}
	}
	return out
}
