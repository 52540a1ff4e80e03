package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2025, 7, 6, 22, 10, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

func TestNewStoreSeedsGreeting(t *testing.T) {
	s := NewStore()
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleAssistant, msgs[0].Role)
	assert.Equal(t, Greeting, msgs[0].Text)
}

func TestResetAlwaysYieldsGreetingOnly(t *testing.T) {
	s := NewStore()
	s.Append(Message{Role: RoleUser, Text: "hi"})
	s.Append(Message{Role: RoleAssistant, Text: "hello"})

	before := s.Epoch()
	s.Reset()

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, Greeting, msgs[0].Text)
	assert.Greater(t, s.Epoch(), before)
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))
	a := s.Append(Message{Role: RoleUser, Text: "a"})
	b := s.Append(Message{Role: RoleUser, Text: "b"})
	assert.Greater(t, b.ID, a.ID)
	assert.Equal(t, fixedClock()(), a.CreatedAt)

	s.Reset()
	c := s.Append(Message{Role: RoleUser, Text: "c"})
	assert.Greater(t, c.ID, b.ID, "ids keep increasing across resets")
}

func TestReplaceLastKeepsID(t *testing.T) {
	s := NewStore()
	m := s.Append(Message{Role: RoleSystem, Text: "Uploading..."})
	r := s.ReplaceLast(Message{Role: RoleSystem, Text: "done"})
	assert.Equal(t, m.ID, r.ID)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "done", s.Last().Text)
}

func TestResolveReplacesOwnMessageNotLast(t *testing.T) {
	s := NewStore()
	tx, ok := s.Begin(s.Epoch(), Message{Role: RoleSystem, Text: "Uploading..."})
	require.True(t, ok)
	s.Append(Message{Role: RoleUser, Text: "question while uploading"})

	require.True(t, s.Resolve(tx, Message{Role: RoleSystem, Text: "uploaded"}))

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "uploaded", msgs[1].Text)
	assert.Equal(t, "question while uploading", msgs[2].Text)

	assert.False(t, s.Resolve(tx, Message{Role: RoleSystem, Text: "again"}), "a tx resolves once")
}

func TestStaleEpochWritesAreDropped(t *testing.T) {
	s := NewStore()
	epoch := s.Epoch()
	tx, ok := s.Begin(epoch, Message{Role: RoleSystem, Text: "Uploading..."})
	require.True(t, ok)

	s.Reset()

	assert.False(t, s.Resolve(tx, Message{Role: RoleSystem, Text: "late"}))
	_, ok = s.AppendAt(epoch, Message{Role: RoleAssistant, Text: "late"})
	assert.False(t, ok)
	_, ok = s.Begin(epoch, Message{Role: RoleSystem, Text: "late"})
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestLoadFromSwapsLog(t *testing.T) {
	s := NewStore()
	s.Append(Message{Role: RoleUser, Text: "local"})

	s.LoadFrom([]Message{
		{Role: RoleUser, Text: "remote q"},
		{Role: RoleAssistant, Text: "remote a", Suggestions: []string{"next"}},
	})

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "remote q", msgs[0].Text)
	assert.Equal(t, []string{"next"}, msgs[1].Suggestions)
	assert.Less(t, msgs[0].ID, msgs[1].ID)
}

func TestLoadFromEmptyHistorySeedsGreeting(t *testing.T) {
	s := NewStore()
	s.LoadFrom(nil)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, Greeting, s.Last().Text)
}

func TestLoadFromAtDropsStaleHistory(t *testing.T) {
	s := NewStore()
	epoch := s.Epoch()
	s.Reset()

	_, ok := s.LoadFromAt(epoch, []Message{{Role: RoleUser, Text: "old question"}})
	assert.False(t, ok)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, Greeting, s.Last().Text)

	loaded, ok := s.LoadFromAt(s.Epoch(), []Message{{Role: RoleUser, Text: "current"}})
	require.True(t, ok)
	assert.Equal(t, loaded, s.Epoch())
	assert.Equal(t, "current", s.Last().Text)
}

func TestEveryMutationEmitsEvent(t *testing.T) {
	s := NewStore()
	var kinds []EventKind
	cancel := s.Subscribe(func(ev Event) {
		kinds = append(kinds, ev.Kind)
		assert.Equal(t, ev.Len, len(s.Messages()), "subscribers run outside the lock")
	})

	s.Append(Message{Role: RoleUser, Text: "a"})
	s.ReplaceLast(Message{Role: RoleUser, Text: "b"})
	tx, _ := s.Begin(s.Epoch(), Message{Role: RoleSystem, Text: "c"})
	s.Resolve(tx, Message{Role: RoleSystem, Text: "d"})
	s.LoadFrom([]Message{{Role: RoleUser, Text: "e"}})
	s.Reset()

	assert.Equal(t, []EventKind{EventAppended, EventReplaced, EventAppended, EventReplaced, EventLoaded, EventReset}, kinds)

	cancel()
	s.Append(Message{Role: RoleUser, Text: "ignored"})
	assert.Len(t, kinds, 6)
}
