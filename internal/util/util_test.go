package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoaat(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"", 0},
		{"a", 0xCA2E9442},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Joaat(tt.in))
		})
	}
}

func TestJoaat_CaseInsensitive(t *testing.T) {
	assert.Equal(t, Joaat("msgnetgameevent"), Joaat("msgNetGameEvent"))
	assert.Equal(t, Joaat("GIVE_CONTROL_EVENT"), Joaat("give_control_event"))
	assert.NotEqual(t, Joaat("GIVE_CONTROL_EVENT"), Joaat("KICK_VOTES_EVENT"))
}

func TestMatchName(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		prefix  bool
		want    bool
	}{
		{"ALTER_WANTED_LEVEL_EVENT", "ALTER_WANTED_LEVEL_EVENT", false, true},
		{"ALTER_WANTED_LEVEL_EVENT_X", "ALTER_WANTED_LEVEL_EVENT", false, false},
		{"PED_SPEECH_ASSIGN_VOICE_EVENT", "PED_SPEECH_", true, true},
		{"PED_SPEECH_", "PED_SPEECH_", true, true},
		{"FIRE_EVENT", "PED_SPEECH_", true, false},
		{"PED_SPEECH_ASSIGN_VOICE_EVENT", "PED_SPEECH_", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchName(tt.name, tt.pattern, tt.prefix))
		})
	}
}
