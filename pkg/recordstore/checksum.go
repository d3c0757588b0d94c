package recordstore

// checksum computes a simple additive/rotational hash over data. Every
// writer and reader of a given header or payload must use this exact
// algorithm so checksums agree byte-for-byte (spec.md 6.1 "Checksum").
func checksum(data []byte) uint32 {
	var h uint32 = 0x811C9DC5
	for _, b := range data {
		h = (h << 5) | (h >> 27) // rotate left 5
		h += uint32(b)
	}
	return h
}
