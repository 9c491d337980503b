package sync

import "sync"

// Status summarises how a resource phase went.
type Status int

const (
	// StatusSuccess means no operation failed.
	StatusSuccess Status = iota
	// StatusPartial means some operations failed and some succeeded.
	StatusPartial
	// StatusFailed means every operation failed.
	StatusFailed
)

// String returns a human-readable status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartial:
		return "partial"
	default:
		return "failed"
	}
}

// Counts holds the aggregate outcome of one resource phase.
type Counts struct {
	Created  int
	Replaced int
	Deleted  int
	Skipped  int
	Failed   int
}

// Status derives the phase status. Skips are not operations: an all-skipped
// phase is a success.
func (c Counts) Status() Status {
	total := c.Created + c.Replaced + c.Deleted + c.Failed
	switch {
	case c.Failed == 0:
		return StatusSuccess
	case c.Failed == total:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// Add returns the element-wise sum of two counts.
func (c Counts) Add(other Counts) Counts {
	return Counts{
		Created:  c.Created + other.Created,
		Replaced: c.Replaced + other.Replaced,
		Deleted:  c.Deleted + other.Deleted,
		Skipped:  c.Skipped + other.Skipped,
		Failed:   c.Failed + other.Failed,
	}
}

// Fields renders the counts as structured log fields.
func (c Counts) Fields() map[string]any {
	return map[string]any{
		"created":  c.Created,
		"replaced": c.Replaced,
		"deleted":  c.Deleted,
		"skipped":  c.Skipped,
		"failed":   c.Failed,
		"status":   c.Status().String(),
	}
}

// tally accumulates counts across concurrent worker tasks.
type tally struct {
	mu     sync.Mutex
	counts Counts
}

func (t *tally) created() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts.Created++
}

func (t *tally) replaced() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts.Replaced++
}

func (t *tally) deleted(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts.Deleted += n
}

func (t *tally) skipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts.Skipped++
}

func (t *tally) failed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts.Failed++
}

func (t *tally) snapshot() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts
}
