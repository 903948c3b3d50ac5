package forum

import (
	"testing"

	"github.com/npezzotti/cryptoforum/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestToggleReaction(t *testing.T) {
	tcases := []struct {
		name     string
		current  types.Reactions
		emoji    string
		username string
		want     types.Reactions
	}{
		{
			name:     "first reaction",
			current:  nil,
			emoji:    "👍",
			username: "alice",
			want:     types.Reactions{"👍": {"alice"}},
		},
		{
			name:     "second user",
			current:  types.Reactions{"👍": {"alice"}},
			emoji:    "👍",
			username: "bob",
			want:     types.Reactions{"👍": {"alice", "bob"}},
		},
		{
			name:     "remove one of many",
			current:  types.Reactions{"👍": {"alice", "bob"}},
			emoji:    "👍",
			username: "alice",
			want:     types.Reactions{"👍": {"bob"}},
		},
		{
			name:     "last user drops the emoji",
			current:  types.Reactions{"👍": {"alice"}, "🚀": {"bob"}},
			emoji:    "👍",
			username: "alice",
			want:     types.Reactions{"🚀": {"bob"}},
		},
		{
			name:     "other emoji untouched",
			current:  types.Reactions{"🚀": {"bob"}},
			emoji:    "😂",
			username: "bob",
			want:     types.Reactions{"🚀": {"bob"}, "😂": {"bob"}},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			before := tc.current.Clone()

			got := ToggleReaction(tc.current, tc.emoji, tc.username)

			assert.Equal(t, tc.want, got)
			if tc.current != nil {
				assert.Equal(t, before, tc.current, "expected input to be left alone")
			}
		})
	}
}

func TestToggleReaction_TwiceRestores(t *testing.T) {
	start := types.Reactions{"🔥": {"carol"}, "💎": {"alice", "dave"}}

	for _, emoji := range []string{"🔥", "💎", "🐻"} {
		for _, user := range []string{"alice", "carol", "erin"} {
			once := ToggleReaction(start, emoji, user)
			twice := ToggleReaction(once, emoji, user)

			// membership is a set; toggling back may reorder it
			assert.Len(t, twice, len(start), "%s by %s", emoji, user)
			for e, users := range start {
				assert.ElementsMatch(t, users, twice[e], "%s by %s", emoji, user)
			}
		}
	}
}
