package detector

// hrRing is a fixed-size ring of heart-rate samples used for the moving average
type hrRing struct {
	buf  []float64
	pos  int
	full bool
}

func newHRRing(size int) *hrRing {
	if size < 1 {
		size = 1
	}
	return &hrRing{buf: make([]float64, size)}
}

// add pushes a sample and returns the average over the filled part of the ring
func (r *hrRing) add(v float64) float64 {
	r.buf[r.pos] = v
	r.pos++
	if r.pos == len(r.buf) {
		r.pos = 0
		r.full = true
	}
	return r.average()
}

func (r *hrRing) average() float64 {
	n := r.pos
	if r.full {
		n = len(r.buf)
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += r.buf[i]
	}
	return sum / float64(n)
}

func (r *hrRing) size() int { return len(r.buf) }
