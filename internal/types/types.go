package types

import (
	"time"
)

const (
	// SystemSender is the sender of messages not authored by a real user.
	SystemSender = "system"

	AnnouncementsRoomId = "announcements"
	NewsRoomId          = "crypto-news"
)

type User struct {
	Email             string `json:"email"`
	Username          string `json:"username"`
	PasswordHash      string `json:"password_hash,omitempty"`
	ProfilePictureUrl string `json:"profile_picture_url,omitempty"`
	AccountCreatedAt  int64  `json:"account_created_at"`
}

// Public returns a copy of the user safe to hand out to clients.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

type Room struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	UserCount int       `json:"user_count"`
	Pinned    bool      `json:"pinned,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Reactions maps an emoji to the usernames that reacted with it.
type Reactions map[string][]string

func (r Reactions) Clone() Reactions {
	if r == nil {
		return Reactions{}
	}
	out := make(Reactions, len(r))
	for emoji, users := range r {
		out[emoji] = append([]string(nil), users...)
	}
	return out
}

type MessageType string

const (
	MessageTypeUser   MessageType = "user"
	MessageTypeSystem MessageType = "system"
)

type Attachment struct {
	Url  string `json:"url"`
	Name string `json:"name"`
}

type ChatMessage struct {
	Id                     string      `json:"id"`
	Type                   MessageType `json:"type"`
	Text                   string      `json:"text,omitempty"`
	Sender                 string      `json:"sender"`
	Timestamp              int64       `json:"timestamp"`
	Attachment             *Attachment `json:"attachment,omitempty"`
	Reactions              Reactions   `json:"reactions"`
	SenderAccountCreatedAt int64       `json:"sender_account_created_at,omitempty"`
}

type NewsArticle struct {
	Id          string    `json:"id"`
	Title       string    `json:"title"`
	Url         string    `json:"url"`
	ImageUrl    string    `json:"image_url,omitempty"`
	PublishedAt int64     `json:"published_at"`
	Source      string    `json:"source"`
	Body        string    `json:"body"`
	Reactions   Reactions `json:"reactions"`
}

type ItemKind string

const (
	ItemKindChat ItemKind = "chat"
	ItemKindNews ItemKind = "news"
)

// Item is a room entry. Exactly one of Chat and News is set, matching Kind.
type Item struct {
	Kind ItemKind     `json:"kind"`
	Chat *ChatMessage `json:"chat,omitempty"`
	News *NewsArticle `json:"news,omitempty"`
}

func ChatItem(m ChatMessage) Item {
	return Item{Kind: ItemKindChat, Chat: &m}
}

func NewsItem(a NewsArticle) Item {
	return Item{Kind: ItemKindNews, News: &a}
}

func (i Item) Id() string {
	switch i.Kind {
	case ItemKindChat:
		if i.Chat != nil {
			return i.Chat.Id
		}
	case ItemKindNews:
		if i.News != nil {
			return i.News.Id
		}
	}
	return ""
}

// SortKey returns the item's timestamp in epoch milliseconds. Items with
// no usable payload sort as 0.
func (i Item) SortKey() int64 {
	switch i.Kind {
	case ItemKindChat:
		if i.Chat != nil {
			return i.Chat.Timestamp
		}
	case ItemKindNews:
		if i.News != nil {
			return i.News.PublishedAt * 1000
		}
	}
	return 0
}

func (i Item) Reactions() Reactions {
	switch i.Kind {
	case ItemKindChat:
		if i.Chat != nil {
			return i.Chat.Reactions
		}
	case ItemKindNews:
		if i.News != nil {
			return i.News.Reactions
		}
	}
	return nil
}

// WithReactions returns a copy of the item carrying r. The payload is
// copied so the original item is left untouched.
func (i Item) WithReactions(r Reactions) Item {
	switch i.Kind {
	case ItemKindChat:
		if i.Chat != nil {
			c := *i.Chat
			c.Reactions = r
			i.Chat = &c
		}
	case ItemKindNews:
		if i.News != nil {
			n := *i.News
			n.Reactions = r
			i.News = &n
		}
	}
	return i
}

type UnreadState struct {
	Count      int   `json:"count"`
	LastUpdate int64 `json:"last_update"`
}

// RoomView is a room as seen by one user in the room list.
type RoomView struct {
	Room
	Joined  bool        `json:"joined"`
	Current bool        `json:"current"`
	Unread  UnreadState `json:"unread"`
}
