package forum

import (
	"slices"

	"github.com/npezzotti/cryptoforum/internal/types"
)

// ToggleReaction adds username to the emoji's set, or removes it when
// already present. An emoji left without users is dropped. The input map
// is not modified.
func ToggleReaction(current types.Reactions, emoji, username string) types.Reactions {
	next := current.Clone()

	users := next[emoji]
	if i := slices.Index(users, username); i >= 0 {
		users = slices.Delete(users, i, i+1)
		if len(users) == 0 {
			delete(next, emoji)
		} else {
			next[emoji] = users
		}
		return next
	}

	next[emoji] = append(users, username)
	return next
}
