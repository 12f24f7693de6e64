package capture

const darkLevel = 80

// WellExposed rejects frames that are mostly black (covered lens, IR emitter
// off) or washed out.
func WellExposed(pix []byte) bool {
	total := len(pix)
	if total == 0 {
		return false
	}
	dark := 0
	for i := 0; i < total; i++ {
		if pix[i] < darkLevel {
			dark++
		}
	}
	darkness := float64(dark) / float64(total)
	return darkness > 0.1 && darkness < 0.7
}
