package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateParticipants_Private(t *testing.T) {
	tests := []struct {
		name    string
		ids     []uint
		wantErr bool
	}{
		{"two distinct", []uint{1, 2}, false},
		{"one", []uint{1}, true},
		{"none", nil, true},
		{"three", []uint{1, 2, 3}, true},
		{"same twice", []uint{4, 4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParticipants(ConversationPrivate, tt.ids)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, CodeValidation, ErrorCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateParticipants_Group(t *testing.T) {
	assert.NoError(t, ValidateParticipants(ConversationGroup, []uint{1, 2, 3}))
	assert.NoError(t, ValidateParticipants(ConversationGroup, []uint{1, 2, 3, 4}))
	assert.Error(t, ValidateParticipants(ConversationGroup, []uint{1, 2}), "creator plus one is a pair, not a group")
	assert.Error(t, ValidateParticipants(ConversationGroup, []uint{1}))
	assert.Error(t, ValidateParticipants("channel", []uint{1, 2}))
}

func TestPrivatePairKey_OrderIndependent(t *testing.T) {
	assert.Equal(t, PrivatePairKey(3, 9), PrivatePairKey(9, 3))
	assert.Equal(t, "3:9", PrivatePairKey(9, 3))
}

func TestUniqueIDs(t *testing.T) {
	assert.Equal(t, []uint{1, 2, 5}, UniqueIDs([]uint{5, 1, 2, 5, 0, 1}))
	assert.Empty(t, UniqueIDs(nil))
}

func TestMessageValidate(t *testing.T) {
	m := &Message{Content: "hello"}
	require.NoError(t, m.Validate())
	assert.Equal(t, MessageText, m.Type)

	assert.Error(t, (&Message{}).Validate())
	assert.Error(t, (&Message{Content: "x", Type: "video"}).Validate())
	assert.Error(t, (&Message{Content: strings.Repeat("я", MaxMessageContentLen+1)}).Validate())
	assert.NoError(t, (&Message{Type: MessageImage, Attachments: []Attachment{{URL: "https://cdn/x.png"}}}).Validate())
	assert.Error(t, (&Message{Type: MessageFile, Attachments: []Attachment{{Name: "no-url.pdf"}}}).Validate())
}

func TestConversation_IndexUnreadAndParticipants(t *testing.T) {
	conv := &Conversation{
		Members: []ConversationParticipant{
			{UserID: 7, UnreadCount: 2},
			{UserID: 3, UnreadCount: 0},
		},
	}
	conv.IndexUnread()

	assert.Equal(t, map[uint]int{7: 2, 3: 0}, conv.UnreadCount)
	assert.Equal(t, []uint{3, 7}, conv.ParticipantIDs())
	assert.True(t, conv.HasParticipant(7))
	assert.False(t, conv.HasParticipant(8))
}

func TestUser_SubscriptionLapsed(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, (&User{SubscriptionStatus: SubscriptionActive, SubscriptionEndDate: &past}).SubscriptionLapsed(now))
	assert.True(t, (&User{SubscriptionStatus: SubscriptionTrial, SubscriptionEndDate: &now}).SubscriptionLapsed(now))
	assert.False(t, (&User{SubscriptionStatus: SubscriptionActive, SubscriptionEndDate: &future}).SubscriptionLapsed(now))
	assert.False(t, (&User{SubscriptionStatus: SubscriptionNone}).SubscriptionLapsed(now))
	assert.False(t, (&User{SubscriptionStatus: SubscriptionActive}).SubscriptionLapsed(now))
}
