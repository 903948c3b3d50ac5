package forum

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/npezzotti/cryptoforum/internal/database"
	"github.com/npezzotti/cryptoforum/internal/logging"
	"github.com/npezzotti/cryptoforum/internal/stats"
	"github.com/npezzotti/cryptoforum/internal/types"
	"github.com/rs/zerolog"
	"github.com/teris-io/shortid"
)

const (
	AdminSender = "CryptoAdmin"

	maxRoomNameLength = 50
	maxMessageLength  = 2000
)

var defaultRooms = []types.Room{
	{Id: types.AnnouncementsRoomId, Name: "Announcements", Pinned: true},
	{Id: types.NewsRoomId, Name: "Crypto News", Pinned: true},
	{Id: "bitcoin", Name: "Bitcoin"},
	{Id: "ethereum", Name: "Ethereum"},
	{Id: "altcoins", Name: "Altcoins"},
	{Id: "trading", Name: "Trading"},
}

type EventType string

const (
	EventMessage  EventType = "message"
	EventRemoved  EventType = "removed"
	EventReaction EventType = "reaction"
	EventUnread   EventType = "unread"
	EventRoom     EventType = "room"
)

// Event describes a state change one user should see.
type Event struct {
	Type      EventType          `json:"type"`
	RoomId    string             `json:"room_id"`
	Item      *types.Item        `json:"item,omitempty"`
	ItemId    string             `json:"item_id,omitempty"`
	Reactions types.Reactions    `json:"reactions,omitempty"`
	Unread    *types.UnreadState `json:"unread,omitempty"`
	Room      *types.Room        `json:"room,omitempty"`
}

// Notifier delivers events to connected users. Notify is called with the
// forum lock held and must not block.
type Notifier interface {
	Notify(username string, ev Event)
}

type noopNotifier struct{}

func (noopNotifier) Notify(string, Event) {}

type Options struct {
	Repo       database.StateRepository
	Directory  *Directory
	Notifier   Notifier
	Stats      stats.StatsProvider
	Logger     zerolog.Logger
	Moderators []string
	Now        func() time.Time
}

// Forum owns every room, message and per-user session. All mutations go
// through its methods and are serialized by a single lock.
type Forum struct {
	mu            sync.Mutex
	rooms         []types.Room
	store         *MessageStore
	sessions      map[string]*session
	lastNewsFetch int64

	repo       database.StateRepository
	dir        *Directory
	notifier   Notifier
	stats      stats.StatsProvider
	log        zerolog.Logger
	moderators map[string]struct{}
	now        func() time.Time
}

func New(opts Options) *Forum {
	f := &Forum{
		rooms:      append([]types.Room(nil), defaultRooms...),
		store:      NewMessageStore(opts.Repo, opts.Logger),
		sessions:   make(map[string]*session),
		repo:       opts.Repo,
		dir:        opts.Directory,
		notifier:   opts.Notifier,
		stats:      opts.Stats,
		log:        opts.Logger,
		moderators: make(map[string]struct{}),
		now:        opts.Now,
	}

	if f.dir == nil {
		f.dir = NewDirectory(opts.Repo, opts.Logger)
	}
	if f.notifier == nil {
		f.notifier = noopNotifier{}
	}
	if f.stats == nil {
		f.stats = stats.NoopStats{}
	}
	if f.now == nil {
		f.now = time.Now
	}
	for _, m := range opts.Moderators {
		f.moderators[m] = struct{}{}
	}

	return f
}

func (f *Forum) Directory() *Directory {
	return f.dir
}

// Load seeds memory from the repository. After Load the in-memory state
// is authoritative.
func (f *Forum) Load(ctx context.Context) {
	f.dir.Load(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()

	var rooms []types.Room
	if _, err := f.repo.Load(ctx, database.KeyRooms, &rooms); err != nil {
		f.log.Error().Err(err).Msg("load rooms, using defaults")
		rooms = nil
	}
	f.rooms = mergeDefaultRooms(rooms)

	f.store.load(ctx)

	var lastFetch int64
	if _, err := f.repo.Load(ctx, database.KeyLastNewsFetch, &lastFetch); err != nil {
		f.log.Error().Err(err).Msg("load last news fetch")
		lastFetch = 0
	}
	f.lastNewsFetch = lastFetch

	// every known account gets its session up front so unread counts keep
	// accruing for users who have not connected since the restart
	f.sessions = make(map[string]*session)
	for _, name := range f.dir.Usernames() {
		f.sessionLocked(name)
	}
	f.log.Info().Int("rooms", len(f.rooms)).Int("sessions", len(f.sessions)).Msg("forum state loaded")
}

func mergeDefaultRooms(stored []types.Room) []types.Room {
	out := make([]types.Room, 0, len(stored)+len(defaultRooms))
	seen := make(map[string]struct{})
	for _, r := range defaultRooms {
		out = append(out, r)
		seen[r.Id] = struct{}{}
	}
	for _, r := range stored {
		if _, ok := seen[r.Id]; ok || r.Id == "" {
			continue
		}
		r.Pinned = false
		out = append(out, r)
		seen[r.Id] = struct{}{}
	}
	return out
}

func (f *Forum) pinnedIds() []string {
	var ids []string
	for _, r := range f.rooms {
		if r.Pinned {
			ids = append(ids, r.Id)
		}
	}
	return ids
}

func (f *Forum) roomLocked(roomId string) (types.Room, bool) {
	for _, r := range f.rooms {
		if r.Id == roomId {
			return r, true
		}
	}
	return types.Room{}, false
}

// sessionLocked returns the user's session, loading it on first use.
func (f *Forum) sessionLocked(username string) *session {
	if s, ok := f.sessions[username]; ok {
		return s
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	s := &session{
		username:   username,
		membership: NewMembership(f.pinnedIds()...),
		unread:     NewUnreadTracker(),
	}
	l := f.log.With().Str(logging.FieldUsername, username).Logger()

	var joined []string
	if _, err := f.repo.Load(ctx, database.JoinedRoomsKey(username), &joined); err != nil {
		l.Error().Err(err).Msg("load joined rooms, using defaults")
	} else if joined != nil {
		known := joined[:0]
		for _, id := range joined {
			if _, ok := f.roomLocked(id); ok {
				known = append(known, id)
			}
		}
		s.membership.restore(known)
	}

	unread := make(map[string]types.UnreadState)
	if _, err := f.repo.Load(ctx, database.UnreadKey(username), &unread); err != nil {
		l.Error().Err(err).Msg("load unread counts, starting empty")
	} else {
		s.unread.restore(unread)
	}

	f.sessions[username] = s
	return s
}

func (f *Forum) persistLocked(key string, v any) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := f.repo.Save(ctx, key, v); err != nil {
		f.log.Error().Err(err).Str("key", key).Msg("persist state")
	}
}

func (f *Forum) persistSessionLocked(s *session) {
	f.persistLocked(database.JoinedRoomsKey(s.username), s.membership.Joined())
	f.persistLocked(database.UnreadKey(s.username), s.unread.Snapshot())
}

// notifyJoinedLocked sends ev to every loaded session that joined roomId.
func (f *Forum) notifyJoinedLocked(roomId string, ev Event) {
	for name, s := range f.sessions {
		if s.membership.IsJoined(roomId) {
			f.notifier.Notify(name, ev)
		}
	}
}

// incrementUnreadLocked counts one event in roomId for every session
// other than skip that joined the room and is not viewing it.
func (f *Forum) incrementUnreadLocked(roomId string, now int64, skip string) {
	for name, s := range f.sessions {
		if name == skip {
			continue
		}
		state, ok := s.incrementUnread(roomId, now)
		if !ok {
			continue
		}
		f.persistSessionLocked(s)
		f.notifier.Notify(name, Event{Type: EventUnread, RoomId: roomId, Unread: &state})
	}
}

func newId() string {
	id, err := shortid.Generate()
	if err != nil {
		return uuid.NewString()
	}
	return id
}

func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "room"
	}
	return slug
}

// Rooms returns the room list as seen by username.
func (f *Forum) Rooms(username string) []types.RoomView {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.sessionLocked(username)

	counts := make(map[string]int)
	for _, other := range f.sessions {
		for _, id := range other.membership.Joined() {
			counts[id]++
		}
	}

	views := make([]types.RoomView, 0, len(f.rooms))
	for _, r := range f.rooms {
		r.UserCount = counts[r.Id]
		views = append(views, types.RoomView{
			Room:    r,
			Joined:  s.membership.IsJoined(r.Id),
			Current: s.membership.Current() == r.Id,
			Unread:  s.unread.Get(r.Id),
		})
	}

	SortRooms(views)
	return views
}

// CreateRoom adds a room, joins it and makes it the user's current room.
func (f *Forum) CreateRoom(username, name string) (types.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Room{}, invalid("Room name cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxRoomNameLength {
		return types.Room{}, invalid(fmt.Sprintf("Room name cannot be longer than %d characters", maxRoomNameLength))
	}
	if _, ok := f.dir.ByUsername(username); !ok {
		return types.Room{}, ErrUserNotFound
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.rooms {
		if strings.EqualFold(r.Name, name) {
			return types.Room{}, invalid("A room with this name already exists")
		}
	}

	now := f.now()
	room := types.Room{
		Id:        f.uniqueRoomIdLocked(slugify(name) + "-" + strconv.FormatInt(now.UnixMilli(), 10)),
		Name:      name,
		CreatedAt: now.UTC(),
	}
	f.rooms = append(f.rooms, room)
	f.persistLocked(database.KeyRooms, f.rooms)
	f.stats.Incr(stats.MetricRoomsCreated)

	f.log.Info().Str(logging.FieldRoomId, room.Id).Str(logging.FieldUsername, username).Msg("room created")

	for other := range f.sessions {
		f.notifier.Notify(other, Event{Type: EventRoom, RoomId: room.Id, Room: &room})
	}

	f.joinLocked(f.sessionLocked(username), room, now.UnixMilli())
	return room, nil
}

// uniqueRoomIdLocked returns base, or base with a numeric suffix when
// another room already uses it. Distinct names can share a slug.
func (f *Forum) uniqueRoomIdLocked(base string) string {
	id := base
	for n := 2; ; n++ {
		if _, taken := f.roomLocked(id); !taken {
			return id
		}
		id = base + "-" + strconv.Itoa(n)
	}
}

// JoinRoom joins roomId if needed and makes it the user's current room.
func (f *Forum) JoinRoom(username, roomId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	room, ok := f.roomLocked(roomId)
	if !ok {
		return ErrRoomNotFound
	}

	f.joinLocked(f.sessionLocked(username), room, f.now().UnixMilli())
	return nil
}

func (f *Forum) joinLocked(s *session, room types.Room, now int64) {
	s.membership.Join(room.Id)
	s.unread.Reset(room.Id)

	if !f.store.Has(room.Id) {
		f.seedLocked(room, now)
	}

	f.persistSessionLocked(s)
	state := s.unread.Get(room.Id)
	f.notifier.Notify(s.username, Event{Type: EventUnread, RoomId: room.Id, Unread: &state})
}

// seedLocked writes the welcome message, and for non-pinned rooms a
// moderation reminder from the admin, into an empty room.
func (f *Forum) seedLocked(room types.Room, now int64) {
	items := []types.Item{types.ChatItem(types.ChatMessage{
		Id:        newId(),
		Type:      types.MessageTypeSystem,
		Text:      fmt.Sprintf("Welcome to %s! Be respectful and keep the discussion on topic.", room.Name),
		Sender:    types.SystemSender,
		Timestamp: now,
		Reactions: types.Reactions{},
	})}

	if !room.Pinned {
		items = append(items, types.ChatItem(types.ChatMessage{
			Id:        newId(),
			Type:      types.MessageTypeUser,
			Text:      "Reminder: no spam, no scams and no shilling. Nothing posted here is financial advice. Messages breaking these rules will be removed.",
			Sender:    AdminSender,
			Timestamp: now + 1,
			Reactions: types.Reactions{},
		}))
	}

	for _, item := range items {
		f.store.Append(room.Id, item)
		f.notifyJoinedLocked(room.Id, Event{Type: EventMessage, RoomId: room.Id, Item: &item})
	}
}

// LeaveRoom removes the room from the user's joined set. Leaving a pinned
// room is a no-op.
func (f *Forum) LeaveRoom(username, roomId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.roomLocked(roomId); !ok {
		return ErrRoomNotFound
	}

	s := f.sessionLocked(username)
	if s.membership.Leave(roomId) {
		f.persistSessionLocked(s)
	}
	return nil
}

// ExitRoom returns the user to the room list.
func (f *Forum) ExitRoom(username string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sessionLocked(username).membership.Exit()
}

func (f *Forum) CurrentRoom(username string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sessionLocked(username).membership.Current()
}

func (f *Forum) JoinedRooms(username string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sessionLocked(username).membership.Joined()
}

func (f *Forum) Unread(username, roomId string) types.UnreadState {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sessionLocked(username).unread.Get(roomId)
}

// Messages returns the room's items in render order.
func (f *Forum) Messages(roomId string) ([]types.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.roomLocked(roomId); !ok {
		return nil, ErrRoomNotFound
	}
	return Ordered(f.store.Get(roomId)), nil
}

type SendParams struct {
	// Id is the client generated message id. One is generated when empty.
	Id         string
	Text       string
	Attachment *types.Attachment
}

// SendMessage posts a chat message. Resending an id already present in
// the room returns the stored message unchanged.
func (f *Forum) SendMessage(username, roomId string, p SendParams) (types.Item, error) {
	text := strings.TrimSpace(p.Text)
	if text == "" && p.Attachment == nil {
		return types.Item{}, invalid("Message cannot be empty")
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return types.Item{}, invalid(fmt.Sprintf("Message cannot be longer than %d characters", maxMessageLength))
	}

	user, ok := f.dir.ByUsername(username)
	if !ok {
		return types.Item{}, ErrUserNotFound
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.roomLocked(roomId); !ok {
		return types.Item{}, ErrRoomNotFound
	}
	if !f.sessionLocked(username).membership.IsJoined(roomId) {
		return types.Item{}, ErrNotJoined
	}

	id := p.Id
	if id == "" {
		id = newId()
	} else if existing, found := f.store.Find(roomId, id); found {
		return existing, nil
	}

	now := f.now().UnixMilli()
	item := types.ChatItem(types.ChatMessage{
		Id:                     id,
		Type:                   types.MessageTypeUser,
		Text:                   text,
		Sender:                 username,
		Timestamp:              now,
		Attachment:             p.Attachment,
		Reactions:              types.Reactions{},
		SenderAccountCreatedAt: user.AccountCreatedAt,
	})

	f.store.Append(roomId, item)
	f.stats.Incr(stats.MetricMessagesSent)
	f.notifyJoinedLocked(roomId, Event{Type: EventMessage, RoomId: roomId, Item: &item})
	f.incrementUnreadLocked(roomId, now, username)

	return item, nil
}

// React toggles the user's emoji on an item in their current room. It
// reports false, changing nothing, when there is no user, no current
// room or no such item.
func (f *Forum) React(username, itemId, emoji string) (types.Reactions, bool) {
	if username == "" || emoji == "" {
		return nil, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	roomId := f.sessionLocked(username).membership.Current()
	if roomId == "" {
		return nil, false
	}

	updated, ok := f.store.Update(roomId, itemId, func(item types.Item) types.Item {
		return item.WithReactions(ToggleReaction(item.Reactions(), emoji, username))
	})
	if !ok {
		return nil, false
	}

	reactions := updated.Reactions()
	f.stats.Incr(stats.MetricReactionsToggled)
	f.notifyJoinedLocked(roomId, Event{Type: EventReaction, RoomId: roomId, ItemId: itemId, Reactions: reactions})
	return reactions, true
}

func (f *Forum) IsModerator(username string) bool {
	_, ok := f.moderators[username]
	return ok
}

// RemoveMessage deletes an item. Moderators may remove anything, users
// only their own chat messages. A missing item is not an error.
func (f *Forum) RemoveMessage(username, roomId, itemId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.roomLocked(roomId); !ok {
		return ErrRoomNotFound
	}

	item, ok := f.store.Find(roomId, itemId)
	if !ok {
		return nil
	}

	own := item.Kind == types.ItemKindChat && item.Chat != nil && item.Chat.Sender == username
	if !own && !f.IsModerator(username) {
		return ErrForbidden
	}

	if f.store.Remove(roomId, itemId) {
		f.stats.Incr(stats.MetricMessagesRemoved)
		f.notifyJoinedLocked(roomId, Event{Type: EventRemoved, RoomId: roomId, ItemId: itemId})
	}
	return nil
}
