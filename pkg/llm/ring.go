package llm

// sampleCap bounds every metrics ring buffer.
const sampleCap = 100

// sampleRing is a fixed-capacity ring of float64 samples. Not safe for
// concurrent use; the pool serializes access.
type sampleRing struct {
	buf  [sampleCap]float64
	next int
	n    int
}

func (r *sampleRing) push(v float64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % sampleCap
	if r.n < sampleCap {
		r.n++
	}
}

func (r *sampleRing) len() int { return r.n }

// avg returns the mean of the retained samples, or def when empty.
func (r *sampleRing) avg(def float64) float64 {
	if r.n == 0 {
		return def
	}
	sum := 0.0
	for i := 0; i < r.n; i++ {
		sum += r.buf[i]
	}
	return sum / float64(r.n)
}
