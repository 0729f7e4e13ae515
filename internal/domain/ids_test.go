package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"supportbridge/internal/domain"
)

func TestIDRoundTrip(t *testing.T) {
	assert.Equal(t, "u-1", domain.NewUserID("u-1").String())
	assert.Equal(t, "123456789", domain.NewThreadID("123456789").String())
	assert.Equal(t, "987654321", domain.NewMessageID("987654321").String())
	assert.Equal(t, "42", domain.NewDiscordUserID("42").String())
}

func TestMessageIDBefore(t *testing.T) {
	assert.True(t, domain.NewMessageID("9").Before(domain.NewMessageID("10")))
	assert.False(t, domain.NewMessageID("10").Before(domain.NewMessageID("9")))
	assert.False(t, domain.NewMessageID("10").Before(domain.NewMessageID("10")))
	// Snowflake-scale values stay numeric.
	assert.True(t, domain.NewMessageID("1100000000000000000").Before(domain.NewMessageID("1100000000000000001")))
}

func TestThreadHasUnread(t *testing.T) {
	th := &domain.Thread{
		LastMessageSentID: domain.NewMessageID("5"),
		LastMessageReadID: domain.NewMessageID("5"),
	}
	assert.False(t, th.HasUnread())

	th.LastMessageSentID = domain.NewMessageID("6")
	assert.True(t, th.HasUnread())
}
