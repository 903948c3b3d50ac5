package analysis

import (
	"sync"

	"github.com/google/uuid"
)

// Tracker remembers the latest request per user so that responses to
// requests the user has since replaced can be dropped.
type Tracker struct {
	mu     sync.Mutex
	latest map[string]string
}

func NewTracker() *Tracker {
	return &Tracker{latest: make(map[string]string)}
}

// Begin tags a new request for username, superseding any in flight.
func (t *Tracker) Begin(username string) string {
	tag := uuid.NewString()

	t.mu.Lock()
	t.latest[username] = tag
	t.mu.Unlock()

	return tag
}

// Finish reports ErrSuperseded unless tag is still the user's latest
// request. A current tag is cleared.
func (t *Tracker) Finish(username, tag string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.latest[username] != tag {
		return ErrSuperseded
	}
	delete(t.latest, username)
	return nil
}
