package database

import (
	"context"
	"errors"
)

// Keys under which forum state is persisted.
const (
	KeyRooms          = "rooms"
	KeyRoomMessages   = "room_messages"
	KeyUsers          = "users"
	KeyLastNewsFetch  = "last_news_fetch"
	KeyAnalysisCounts = "analysis_counts"
)

func JoinedRoomsKey(username string) string {
	return "joined_rooms:" + username
}

func UnreadKey(username string) string {
	return "unread:" + username
}

var ErrClosed = errors.New("repository closed")

// StateRepository persists JSON documents under string keys. Load reports
// whether the key existed; a missing key is not an error.
type StateRepository interface {
	Ping(ctx context.Context) error
	Load(ctx context.Context, key string, v any) (bool, error)
	Save(ctx context.Context, key string, v any) error
	Close() error
}
