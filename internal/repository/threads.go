package repository

import (
	"context"
	"time"

	"careconnect-server/internal/models"

	"gorm.io/gorm"
)

const (
	msgThreadNotFound  = "Thread not found"
	msgMessageNotFound = "Message not found"
)

// ThreadRepository persists threads and messages.
type ThreadRepository struct {
	DB *gorm.DB
}

// NewThreadRepository creates a new ThreadRepository.
func NewThreadRepository(db *gorm.DB) *ThreadRepository {
	return &ThreadRepository{DB: db}
}

func (r *ThreadRepository) withParticipants(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx).Preload("Participants", selectRef)
}

// CreateThread inserts a thread with the given participants.
func (r *ThreadRepository) CreateThread(ctx context.Context, thread *models.Thread, participantIDs []string) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Participants").Create(thread).Error; err != nil {
			return err
		}
		if len(participantIDs) == 0 {
			return nil
		}
		rows := make([]map[string]interface{}, 0, len(participantIDs))
		for _, id := range participantIDs {
			rows = append(rows, map[string]interface{}{"thread_id": thread.ID, "user_id": id})
		}
		return tx.Table("thread_participants").Create(&rows).Error
	})
	return translate(err, msgThreadNotFound, "thread already exists")
}

// FindThread loads a thread with its participants.
func (r *ThreadRepository) FindThread(ctx context.Context, id string) (*models.Thread, error) {
	var thread models.Thread
	if err := r.withParticipants(ctx).First(&thread, "id = ?", id).Error; err != nil {
		return nil, translate(err, msgThreadNotFound, "thread already exists")
	}
	return &thread, nil
}

// AddMessage inserts a message and makes it the thread's last message.
func (r *ThreadRepository) AddMessage(ctx context.Context, message *models.Message) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		return tx.Model(&models.Thread{}).
			Where("id = ?", message.ThreadID).
			Update("last_message_id", message.ID).Error
	})
	return translate(err, msgThreadNotFound, "message already exists")
}

// ThreadMessages returns a thread's messages, oldest first.
func (r *ThreadRepository) ThreadMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	var messages []models.Message
	err := r.DB.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at asc").
		Find(&messages).Error
	return messages, translate(err, msgThreadNotFound, "")
}

// UserThreads returns the threads the user participates in, most recently
// active first.
func (r *ThreadRepository) UserThreads(ctx context.Context, userID string) ([]models.Thread, error) {
	var threads []models.Thread
	err := r.withParticipants(ctx).
		Joins("JOIN thread_participants tp ON tp.thread_id = threads.id").
		Where("tp.user_id = ?", userID).
		Order("threads.updated_at desc").
		Find(&threads).Error
	return threads, translate(err, msgThreadNotFound, "")
}

// PublicThreads returns the threads without participants.
func (r *ThreadRepository) PublicThreads(ctx context.Context) ([]models.Thread, error) {
	var threads []models.Thread
	err := r.withParticipants(ctx).
		Where("public = ?", true).
		Order("updated_at desc").
		Find(&threads).Error
	return threads, translate(err, msgThreadNotFound, "")
}

// Conversation returns the direct messages exchanged between two users.
func (r *ThreadRepository) Conversation(ctx context.Context, a, b string) ([]models.Message, error) {
	var messages []models.Message
	err := r.DB.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", a, b, b, a).
		Order("created_at asc").
		Find(&messages).Error
	return messages, translate(err, msgMessageNotFound, "")
}

// FindMessage loads a message.
func (r *ThreadRepository) FindMessage(ctx context.Context, id string) (*models.Message, error) {
	var message models.Message
	if err := r.DB.WithContext(ctx).First(&message, "id = ?", id).Error; err != nil {
		return nil, translate(err, msgMessageNotFound, "")
	}
	return &message, nil
}

// MarkRead sets the message read if it is still unread.
func (r *ThreadRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	err := r.DB.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND status <> ?", id, models.MessageStatusRead).
		Updates(map[string]interface{}{"status": models.MessageStatusRead, "read_at": at}).Error
	return translate(err, msgMessageNotFound, "")
}
