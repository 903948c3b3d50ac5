package forum

import (
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"
)

// PresenceNoise bumps the unread count of one random background room per
// user to simulate activity in user-created rooms.
type PresenceNoise struct {
	forum *Forum

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewPresenceNoise(f *Forum, rnd *rand.Rand) *PresenceNoise {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	return &PresenceNoise{forum: f, rnd: rnd}
}

// Tick picks, for every session, one joined room that is neither current
// nor pinned and increments its unread count. It returns the room chosen
// per user.
func (p *PresenceNoise) Tick(now time.Time) map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	f := p.forum
	f.mu.Lock()
	defer f.mu.Unlock()

	picked := make(map[string]string)
	// sessions are visited in name order so a seeded source is reproducible
	for _, name := range slices.Sorted(maps.Keys(f.sessions)) {
		s := f.sessions[name]
		var eligible []string
		for _, id := range s.membership.Joined() {
			if id == s.membership.Current() || s.membership.IsPinned(id) {
				continue
			}
			eligible = append(eligible, id)
		}
		if len(eligible) == 0 {
			continue
		}

		roomId := eligible[p.rnd.IntN(len(eligible))]
		state, ok := s.incrementUnread(roomId, now.UnixMilli())
		if !ok {
			continue
		}
		f.persistSessionLocked(s)
		f.notifier.Notify(name, Event{Type: EventUnread, RoomId: roomId, Unread: &state})
		picked[name] = roomId
	}

	return picked
}
