package wasmgen

// appendU32 appends an unsigned LEB128 value
func appendU32(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

// appendS64 appends a signed LEB128 value. i32 immediates use the same
// encoding after sign extension.
func appendS64(b []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func appendName(b []byte, s string) []byte {
	b = appendU32(b, uint32(len(s)))
	return append(b, s...)
}

func appendVec(b []byte, items [][]byte) []byte {
	b = appendU32(b, uint32(len(items)))
	for _, it := range items {
		b = append(b, it...)
	}
	return b
}
