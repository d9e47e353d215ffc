package statebag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RegisterAndUnregister(t *testing.T) {
	s := NewStore()

	b := s.Register("player:7")
	b.Data["health"] = 200

	got, ok := s.Get("player:7")
	require.True(t, ok)
	assert.Equal(t, 200, got.Data["health"])

	s.Unregister("player:7")
	_, ok = s.Get("player:7")
	assert.False(t, ok)
}

func TestStore_RegisterReplacesStaleBag(t *testing.T) {
	s := NewStore()

	s.Register("player:3").Data["k"] = "old"
	fresh := s.Register("player:3")

	assert.Empty(t, fresh.Data)
	assert.Equal(t, []string{"player:3"}, s.Names())
}

func TestStore_NamesSortedAndReset(t *testing.T) {
	s := NewStore()
	s.Register("player:9")
	s.Register("player:10")
	s.Register("player:1")

	assert.Equal(t, []string{"player:1", "player:10", "player:9"}, s.Names())

	s.Reset()
	assert.Empty(t, s.Names())
}
