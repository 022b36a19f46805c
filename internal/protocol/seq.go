package protocol

// Seq is the 1-byte wrapping sequence number carried on the wire.
// Two sequence numbers may only be ordered while their true distance is below 128.
type Seq uint8

// Compare returns 0 if s == o, 1 if s is ahead of o and -1 if s is behind o.
func (s Seq) Compare(o Seq) int {
	if s == o {
		return 0
	}
	if uint8(s-o) < 0x80 {
		return 1
	}
	return -1
}

// Add returns the sequence number n steps after s.
func (s Seq) Add(n int) Seq {
	return s + Seq(n)
}

// Sub returns the forward distance from o to s, modulo 256.
func (s Seq) Sub(o Seq) uint8 {
	return uint8(s - o)
}

// Index maps s onto a slot of a circular buffer of the given capacity.
// capacity must be a power of two.
func (s Seq) Index(capacity int) int {
	return int(s) & (capacity - 1)
}
