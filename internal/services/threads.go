package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"careconnect-server/internal/apperrors"
	"careconnect-server/internal/models"
	"careconnect-server/internal/notify"
)

// ThreadStore persists threads and their messages.
type ThreadStore interface {
	ThreadCreator
	FindThread(ctx context.Context, id string) (*models.Thread, error)
	AddMessage(ctx context.Context, message *models.Message) error
	ThreadMessages(ctx context.Context, threadID string) ([]models.Message, error)
	UserThreads(ctx context.Context, userID string) ([]models.Thread, error)
	PublicThreads(ctx context.Context) ([]models.Thread, error)
	Conversation(ctx context.Context, a, b string) ([]models.Message, error)
	FindMessage(ctx context.Context, id string) (*models.Message, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
}

// Relay pushes events to a user's live connections.
type Relay interface {
	SendToUser(userID, event string, data interface{})
}

// PostMessageInput posts to an existing thread, or opens a new one: private
// with RecipientID, public otherwise.
type PostMessageInput struct {
	ThreadID    string `json:"threadId"`
	RecipientID string `json:"recipientId"`
	Name        string `json:"name"`
	Body        string `json:"body" binding:"required"`
}

// ThreadService manages discussion threads and direct messages.
type ThreadService struct {
	threads  ThreadStore
	users    UserReader
	notifier Notifier
	relay    Relay
	logger   zerolog.Logger
	now      func() time.Time
}

// NewThreadService creates a new ThreadService. relay may be nil.
func NewThreadService(threads ThreadStore, users UserReader, notifier Notifier, relay Relay, logger zerolog.Logger) *ThreadService {
	return &ThreadService{
		threads:  threads,
		users:    users,
		notifier: notifier,
		relay:    relay,
		logger:   logger.With().Str("service", "threads").Logger(),
		now:      time.Now,
	}
}

// Post stores a message and delivers it to the recipient, if any.
func (s *ThreadService) Post(ctx context.Context, senderID string, in PostMessageInput) (*models.Message, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, apperrors.NewValidationError("message body is required")
	}
	sender, err := loadActor(ctx, s.users, senderID)
	if err != nil {
		return nil, err
	}

	message := &models.Message{SenderID: sender.ID, Body: body, Status: models.MessageStatusSent}

	switch {
	case in.ThreadID != "":
		thread, err := s.threads.FindThread(ctx, in.ThreadID)
		if err != nil {
			return nil, err
		}
		if !thread.Public && !thread.HasParticipant(sender.ID) {
			return nil, apperrors.NewUnauthorizedError("You are not a participant of this thread")
		}
		message.ThreadID = thread.ID
		if !thread.Public {
			for _, p := range thread.Participants {
				if p.ID != sender.ID {
					recipient := p.ID
					message.RecipientID = &recipient
					break
				}
			}
		}
	case in.RecipientID != "":
		if in.RecipientID == sender.ID {
			return nil, apperrors.NewValidationError("cannot message yourself")
		}
		recipient, err := s.users.FindByID(ctx, in.RecipientID)
		if err != nil {
			return nil, err
		}
		thread := &models.Thread{Name: in.Name}
		if err := s.threads.CreateThread(ctx, thread, []string{sender.ID, recipient.ID}); err != nil {
			return nil, err
		}
		message.ThreadID = thread.ID
		message.RecipientID = &recipient.ID
	default:
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("name is required to start a public thread")
		}
		thread := &models.Thread{Name: name, Public: true}
		if err := s.threads.CreateThread(ctx, thread, nil); err != nil {
			return nil, err
		}
		message.ThreadID = thread.ID
	}

	if err := s.threads.AddMessage(ctx, message); err != nil {
		return nil, err
	}

	if message.RecipientID != nil {
		if s.relay != nil {
			s.relay.SendToUser(*message.RecipientID, "new-message", message)
		}
		if s.notifier != nil {
			s.notifier.NotifyUser(*message.RecipientID, notify.Message{
				Title: "New Message",
				Body:  sender.FullName + " sent you a message.",
				Data:  map[string]string{"threadId": message.ThreadID},
			})
		}
	}
	return message, nil
}

// ThreadMessages lists the messages of a thread visible to actorID.
func (s *ThreadService) ThreadMessages(ctx context.Context, actorID, threadID string) ([]models.Message, error) {
	thread, err := s.threads.FindThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.Public && !thread.HasParticipant(actorID) {
		return nil, apperrors.NewUnauthorizedError("You are not a participant of this thread")
	}
	return s.threads.ThreadMessages(ctx, thread.ID)
}

// UserThreads lists the threads of the calling user.
func (s *ThreadService) UserThreads(ctx context.Context, userID, actorID string) ([]models.ThreadView, error) {
	if userID != actorID {
		return nil, apperrors.NewUnauthorizedError("You can only list your own threads")
	}
	threads, err := s.threads.UserThreads(ctx, userID)
	if err != nil {
		return nil, err
	}
	return threadViews(threads), nil
}

// PublicThreads lists the public threads.
func (s *ThreadService) PublicThreads(ctx context.Context) ([]models.ThreadView, error) {
	threads, err := s.threads.PublicThreads(ctx)
	if err != nil {
		return nil, err
	}
	return threadViews(threads), nil
}

// Conversation returns the direct messages between actorID and otherID.
func (s *ThreadService) Conversation(ctx context.Context, actorID, otherID string) ([]models.Message, error) {
	if otherID == "" {
		return nil, apperrors.NewValidationError("user is required")
	}
	return s.threads.Conversation(ctx, actorID, otherID)
}

// MarkRead marks a direct message read. Only its recipient may do so.
func (s *ThreadService) MarkRead(ctx context.Context, actorID, messageID string) (*models.Message, error) {
	message, err := s.threads.FindMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.RecipientID == nil || *message.RecipientID != actorID {
		return nil, apperrors.NewUnauthorizedError("Only the recipient can mark a message read")
	}
	if message.Status == models.MessageStatusRead {
		return message, nil
	}

	at := s.now().UTC()
	if err := s.threads.MarkRead(ctx, message.ID, at); err != nil {
		return nil, err
	}
	message.Status = models.MessageStatusRead
	message.ReadAt = &at
	return message, nil
}

func threadViews(threads []models.Thread) []models.ThreadView {
	out := make([]models.ThreadView, 0, len(threads))
	for i := range threads {
		out = append(out, threads[i].View())
	}
	return out
}
