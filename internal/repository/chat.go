package repository

import (
	"context"
	"time"

	"academy/internal/models"
	"academy/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRepository defines the interface for chat data operations
type ChatRepository interface {
	CreateConversation(ctx context.Context, conv *models.Conversation, memberIDs []uint) error
	FindPrivate(ctx context.Context, a, b uint) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uint) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID uint) ([]*models.Conversation, error)
	IsParticipant(ctx context.Context, convID, userID uint) (bool, error)
	ParticipantIDs(ctx context.Context, convID uint) ([]uint, error)
	SaveMessage(ctx context.Context, msg *models.Message) error
	MarkRead(ctx context.Context, convID, userID uint, messageIDs []uint, at time.Time) ([]uint, error)
	ListMessages(ctx context.Context, convID uint, limit, offset int) ([]*models.Message, int64, error)
	DeleteConversation(ctx context.Context, convID uint) error
}

// chatRepository implements ChatRepository
type chatRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db, log: observability.NewRepoLogger("conversations")}
}

// CreateConversation inserts the conversation and one participant row per
// member in a single transaction. Every member must be an existing user and
// the member count must suit the conversation type. A second private
// conversation for the same pair fails with a conflict.
func (r *chatRepository) CreateConversation(ctx context.Context, conv *models.Conversation, memberIDs []uint) error {
	memberIDs = models.UniqueIDs(memberIDs)
	if err := models.ValidateParticipants(conv.Type, memberIDs); err != nil {
		return err
	}
	if conv.Type == models.ConversationPrivate {
		key := models.PrivatePairKey(memberIDs[0], memberIDs[1])
		conv.PrivateKey = &key
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var found int64
		if err := tx.Model(&models.User{}).Where("id IN ?", memberIDs).Count(&found).Error; err != nil {
			return err
		}
		if int(found) != len(memberIDs) {
			return models.NewNotFoundError("User", "in participant list")
		}

		if err := tx.Omit(clause.Associations).Create(conv).Error; err != nil {
			return err
		}

		members := make([]models.ConversationParticipant, 0, len(memberIDs))
		for _, id := range memberIDs {
			members = append(members, models.ConversationParticipant{ConversationID: conv.ID, UserID: id})
		}
		if err := tx.Create(&members).Error; err != nil {
			return err
		}
		conv.Members = members
		return nil
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Conversation already exists")
		}
		return translate(err, "Conversation", conv.ID)
	}
	conv.IndexUnread()
	return nil
}

func (r *chatRepository) FindPrivate(ctx context.Context, a, b uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.withParticipants(r.db.WithContext(ctx)).
		Where("private_key = ? AND type = ?", models.PrivatePairKey(a, b), models.ConversationPrivate).
		First(&conv).Error
	if err != nil {
		return nil, translate(err, "Conversation", models.PrivatePairKey(a, b))
	}
	conv.IndexUnread()
	return &conv, nil
}

func (r *chatRepository) GetConversation(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.withParticipants(r.db.WithContext(ctx)).First(&conv, id).Error; err != nil {
		return nil, translate(err, "Conversation", id)
	}
	conv.IndexUnread()
	return &conv, nil
}

func (r *chatRepository) ListForUser(ctx context.Context, userID uint) ([]*models.Conversation, error) {
	var conversations []*models.Conversation
	err := r.withParticipants(r.db.WithContext(ctx)).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ?", userID).
		Order("conversations.updated_at DESC, conversations.id DESC").
		Find(&conversations).Error
	if err != nil {
		r.log.LogError(ctx, err, "list_for_user")
		return nil, models.NewInternalError(err)
	}
	for _, c := range conversations {
		c.IndexUnread()
	}
	return conversations, nil
}

func (r *chatRepository) withParticipants(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("users.id ASC") }).
		Preload("Members")
}

func (r *chatRepository) IsParticipant(ctx context.Context, convID, userID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Count(&n).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

func (r *chatRepository) ParticipantIDs(ctx context.Context, convID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ?", convID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

// SaveMessage persists msg with the sender's read row, refreshes the
// conversation summary and increments every other participant's unread
// counter in the store. All of it commits or none of it does.
func (r *chatRepository) SaveMessage(ctx context.Context, msg *models.Message) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(msg).Error; err != nil {
			return err
		}

		read := models.MessageRead{MessageID: msg.ID, UserID: msg.SenderID, ReadAt: msg.CreatedAt}
		if err := tx.Create(&read).Error; err != nil {
			return err
		}

		senderID := msg.SenderID
		createdAt := msg.CreatedAt
		if err := tx.Model(&models.Conversation{}).Where("id = ?", msg.ConversationID).
			Updates(map[string]any{
				"last_message_content":   lastMessagePreview(msg),
				"last_message_sender_id": senderID,
				"last_message_timestamp": createdAt,
				"updated_at":             createdAt,
			}).Error; err != nil {
			return err
		}

		return tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id <> ?", msg.ConversationID, msg.SenderID).
			UpdateColumn("unread_count", gorm.Expr("unread_count + ?", 1)).Error
	})
	if err != nil {
		r.log.LogError(ctx, err, "save_message")
		return models.NewInternalError(err)
	}
	msg.ReadBy = []uint{msg.SenderID}
	return nil
}

func lastMessagePreview(msg *models.Message) string {
	if msg.Content != "" || len(msg.Attachments) == 0 {
		return msg.Content
	}
	if name := msg.Attachments[0].Name; name != "" {
		return name
	}
	return "[" + string(msg.Type) + "]"
}

// MarkRead adds userID to the readers of the given messages and resets the
// caller's unread counter. Ids outside the conversation are ignored. An empty
// list marks every message the user has not read yet. It returns the ids that
// belong to the conversation.
func (r *chatRepository) MarkRead(ctx context.Context, convID, userID uint, messageIDs []uint, at time.Time) ([]uint, error) {
	var valid []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.Message{}).Where("conversation_id = ?", convID)
		if len(messageIDs) > 0 {
			q = q.Where("id IN ?", messageIDs)
		} else {
			q = q.Where("NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = messages.id AND mr.user_id = ?)", userID)
		}
		if err := q.Order("id ASC").Pluck("id", &valid).Error; err != nil {
			return err
		}

		if len(valid) > 0 {
			reads := make([]models.MessageRead, 0, len(valid))
			for _, id := range valid {
				reads = append(reads, models.MessageRead{MessageID: id, UserID: userID, ReadAt: at})
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&reads, 200).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id = ?", convID, userID).
			UpdateColumns(map[string]any{"unread_count": 0, "last_read_at": at}).Error
	})
	if err != nil {
		r.log.LogError(ctx, err, "mark_read")
		return nil, models.NewInternalError(err)
	}
	return valid, nil
}

// ListMessages returns one page of history. Offset counts back from the newest
// message; the page itself is in ascending (created_at, id) order.
func (r *chatRepository) ListMessages(ctx context.Context, convID uint, limit, offset int) ([]*models.Message, int64, error) {
	db := r.db.WithContext(ctx)

	var total int64
	if err := db.Model(&models.Message{}).Where("conversation_id = ?", convID).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var messages []*models.Message
	err := db.Where("conversation_id = ?", convID).
		Preload("Sender").
		Preload("Reads").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	for _, m := range messages {
		m.IndexReads()
	}
	return messages, total, nil
}

// DeleteConversation removes read rows, messages, participants and finally
// the conversation, in that order, within one transaction.
func (r *chatRepository) DeleteConversation(ctx context.Context, convID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msgIDs := tx.Model(&models.Message{}).Select("id").Where("conversation_id = ?", convID)
		if err := tx.Where("message_id IN (?)", msgIDs).Delete(&models.MessageRead{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", convID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", convID).Delete(&models.ConversationParticipant{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Conversation{}, convID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return translate(err, "Conversation", convID)
	}
	return nil
}
