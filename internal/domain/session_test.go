package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMention(t *testing.T) {
	assert.Equal(t, "@alice", Mention("alice"))
	assert.Equal(t, "N/A", Mention(""))
	assert.Equal(t, "N/A", Mention("N/A"))
}

func TestToProfilePlaceholders(t *testing.T) {
	p := Identity{ID: 9}.ToProfile("+15550001234", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.Equal(t, "N/A", p.Username)
	assert.Equal(t, "N/A", p.DisplayName())
	assert.Equal(t, "9", p.UserID)
}
