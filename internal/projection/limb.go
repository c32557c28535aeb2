package projection

// Limb is the lower image outline of an occluding robot part, as a pixel
// polyline ordered by increasing U.
type Limb struct {
	Outline []Pixel `json:"outline"`
}

// IsAboveLimbs reports whether pixel p is above the outline of every limb,
// i.e. not hidden behind any of them. A limb whose outline does not span
// p.U does not occlude it.
func IsAboveLimbs(p Pixel, limbs []Limb) bool {
	for _, limb := range limbs {
		y, ok := limb.heightAt(p.U)
		if !ok {
			continue
		}
		if p.V >= y {
			return false
		}
	}
	return true
}

// heightAt interpolates the outline at column u using the first segment that
// spans it.
func (l Limb) heightAt(u float64) (float64, bool) {
	for i := 0; i+1 < len(l.Outline); i++ {
		a, b := l.Outline[i], l.Outline[i+1]
		if u < a.U || u > b.U {
			continue
		}
		if b.U == a.U {
			return a.V, true
		}
		t := (u - a.U) / (b.U - a.U)
		return a.V + t*(b.V-a.V), true
	}
	return 0, false
}
