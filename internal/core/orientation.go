package core

// InferOrientation returns the orientation most pages have once their
// rotation is applied. Ties go to portrait.
func InferOrientation(geometry []PageGeometry) Orientation {
	landscape := 0
	for _, g := range geometry {
		w, h := g.Width, g.Height
		if normalizeRotation(g.Rotation)%180 != 0 {
			w, h = h, w
		}
		if w > h {
			landscape++
		}
	}
	if landscape*2 > len(geometry) {
		return Landscape
	}
	return Portrait
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	return r
}
