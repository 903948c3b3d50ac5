package forum

import (
	"context"
	"time"

	"github.com/npezzotti/cryptoforum/internal/database"
	"github.com/npezzotti/cryptoforum/internal/types"
	"github.com/rs/zerolog"
)

const persistTimeout = 5 * time.Second

// MessageStore holds the raw item collection of every room. It performs
// no locking; the Forum serializes access to it.
type MessageStore struct {
	rooms map[string][]types.Item
	repo  database.StateRepository
	log   zerolog.Logger
}

func NewMessageStore(repo database.StateRepository, logger zerolog.Logger) *MessageStore {
	return &MessageStore{
		rooms: make(map[string][]types.Item),
		repo:  repo,
		log:   logger,
	}
}

// load seeds the store from the repository. A malformed document is
// logged and replaced with an empty store.
func (s *MessageStore) load(ctx context.Context) {
	rooms := make(map[string][]types.Item)
	if _, err := s.repo.Load(ctx, database.KeyRoomMessages, &rooms); err != nil {
		s.log.Error().Err(err).Msg("load room messages, starting empty")
		rooms = make(map[string][]types.Item)
	}
	s.rooms = rooms
}

// Append adds item to the room. Duplicates are not rejected here.
func (s *MessageStore) Append(roomId string, item types.Item) {
	s.rooms[roomId] = append(s.rooms[roomId], item)
	s.persist()
}

// Get returns a copy of the room's raw collection.
func (s *MessageStore) Get(roomId string) []types.Item {
	items := s.rooms[roomId]
	out := make([]types.Item, len(items))
	copy(out, items)
	return out
}

func (s *MessageStore) Has(roomId string) bool {
	return len(s.rooms[roomId]) > 0
}

// Find returns the first item in the room with the given id.
func (s *MessageStore) Find(roomId, itemId string) (types.Item, bool) {
	for _, item := range s.rooms[roomId] {
		if item.Id() == itemId {
			return item, true
		}
	}
	return types.Item{}, false
}

// Remove deletes every item with itemId. Removing a missing id succeeds.
func (s *MessageStore) Remove(roomId, itemId string) bool {
	items, ok := s.rooms[roomId]
	if !ok {
		return false
	}

	kept := make([]types.Item, 0, len(items))
	for _, item := range items {
		if item.Id() != itemId {
			kept = append(kept, item)
		}
	}

	if len(kept) == len(items) {
		return false
	}

	s.rooms[roomId] = kept
	s.persist()
	return true
}

// Update replaces the first item with itemId by fn(item). Other items are
// left untouched.
func (s *MessageStore) Update(roomId, itemId string, fn func(types.Item) types.Item) (types.Item, bool) {
	items := s.rooms[roomId]
	for i, item := range items {
		if item.Id() != itemId {
			continue
		}

		updated := make([]types.Item, len(items))
		copy(updated, items)
		updated[i] = fn(item)
		s.rooms[roomId] = updated
		s.persist()
		return updated[i], true
	}
	return types.Item{}, false
}

func (s *MessageStore) persist() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.repo.Save(ctx, database.KeyRoomMessages, s.rooms); err != nil {
		s.log.Error().Err(err).Msg("persist room messages")
	}
}
