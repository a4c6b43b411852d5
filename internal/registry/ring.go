package registry

// ring is a fixed-capacity line buffer that keeps the most recent lines.
type ring struct {
	lines []string
	head  int
	full  bool
}

func newRing(capacity int) *ring {
	return &ring{lines: make([]string, capacity)}
}

func (r *ring) append(line string) {
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.head == 0 {
		r.full = true
	}
}

// tail returns up to n of the most recent lines, oldest first. n <= 0
// returns everything retained.
func (r *ring) tail(n int) []string {
	size := r.head
	start := 0
	if r.full {
		size = len(r.lines)
		start = r.head
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]string, 0, n)
	for i := size - n; i < size; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	return out
}
