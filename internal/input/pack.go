package input

// packLevels packs per-pin levels (non-zero = high) into 16-pin banks.
func packLevels(levels []int) []uint16 {
	banks := make([]uint16, (len(levels)+PinsPerBank-1)/PinsPerBank)
	for i, v := range levels {
		if v != 0 {
			banks[i/PinsPerBank] |= 1 << uint(i%PinsPerBank)
		}
	}
	return banks
}
