package cache

// ByteSized is implemented by every key and value type the LRU stores.
// Bytesize is the footprint charged against a segment's byte budget.
type ByteSized interface {
	Bytesize() int
}

// Key is the constraint for LRU keys: comparable and byte-sized.
type Key interface {
	comparable
	ByteSized
}

// String is a string key; its footprint is its length in bytes.
type String string

func (s String) Bytesize() int { return len(s) }

// Bytes is a byte-slice value; its footprint is its length.
type Bytes []byte

func (b Bytes) Bytesize() int { return len(b) }

var (
	_ ByteSized = String("")
	_ ByteSized = Bytes(nil)
	_ ByteSized = Entry{}
)
