package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"careconnect-server/internal/apperrors"
	"careconnect-server/internal/models"
	"careconnect-server/internal/storage"
)

var (
	imageExtensions = []string{"jpg", "jpeg", "png", "gif"}
	videoExtensions = []string{"mp4", "webm", "mov"}
)

// ConditionStore persists the conditions knowledge base.
type ConditionStore interface {
	Create(ctx context.Context, condition *models.Condition) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*models.Condition, error)
	NameTaken(ctx context.Context, name, excludeID string) (bool, error)
	Find(ctx context.Context, search string, includeDisabled bool) ([]models.Condition, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	AddComment(ctx context.Context, comment *models.Comment) error
	ListComments(ctx context.Context, conditionID string) ([]models.Comment, error)
}

// ThreadCreator opens discussion threads.
type ThreadCreator interface {
	CreateThread(ctx context.Context, thread *models.Thread, participantIDs []string) error
}

// CreateConditionInput describes a new condition. It binds from JSON or a
// multipart form.
type CreateConditionInput struct {
	Name        string `json:"name" form:"name" binding:"required"`
	Description string `json:"description" form:"description"`
	Symptoms    string `json:"symptoms" form:"symptoms"`
	Remedies    string `json:"remedies" form:"remedies"`
	StartThread bool   `json:"startThread" form:"startThread"`
}

// UpdateConditionInput is a partial update of a condition.
type UpdateConditionInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Symptoms    *string `json:"symptoms"`
	Remedies    *string `json:"remedies"`
	Disabled    *bool   `json:"disabled"`
}

func (in UpdateConditionInput) hasContent() bool {
	return in.Name != nil || in.Description != nil || in.Symptoms != nil || in.Remedies != nil
}

// ConditionService curates the conditions knowledge base.
type ConditionService struct {
	conditions ConditionStore
	threads    ThreadCreator
	users      UserReader
	files      storage.FileStore
	logger     zerolog.Logger
}

// NewConditionService creates a new ConditionService.
func NewConditionService(conditions ConditionStore, threads ThreadCreator, users UserReader, files storage.FileStore, logger zerolog.Logger) *ConditionService {
	return &ConditionService{
		conditions: conditions,
		threads:    threads,
		users:      users,
		files:      files,
		logger:     logger.With().Str("service", "conditions").Logger(),
	}
}

// Create adds a condition with optional illustrating media. Patients cannot
// curate conditions.
func (s *ConditionService) Create(ctx context.Context, actorID string, in CreateConditionInput, media *Upload) (*models.Condition, error) {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.HasAccountType(models.AccountProfessional, models.AccountInstitution, models.AccountAdmin) {
		return nil, apperrors.NewUnauthorizedError("Patients cannot create conditions")
	}

	name := strings.ToLower(strings.TrimSpace(in.Name))
	if name == "" {
		return nil, apperrors.NewValidationError("name is required")
	}

	var kind models.MediaKind
	var ext string
	if media != nil {
		ext = storage.Extension(media.Filename)
		switch {
		case contains(imageExtensions, ext):
			kind = models.MediaImage
		case contains(videoExtensions, ext):
			kind = models.MediaVideo
		default:
			return nil, apperrors.NewValidationError("media format should be one of: " +
				strings.Join(append(append([]string{}, imageExtensions...), videoExtensions...), ", "))
		}
	}

	taken, err := s.conditions.NameTaken(ctx, name, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.NewConflictError("possible duplicate")
	}

	condition := &models.Condition{
		Name:        name,
		Description: in.Description,
		Symptoms:    in.Symptoms,
		Remedies:    in.Remedies,
		CreatedByID: actor.ID,
	}
	condition.ID = uuid.NewString()
	if media != nil {
		file := storage.FileName(condition.ID, ext)
		condition.MediaKind = &kind
		condition.MediaFile = &file
	}
	if err := s.conditions.Create(ctx, condition); err != nil {
		return nil, err
	}

	if media != nil {
		if err := s.files.Save(ctx, storage.BucketConditionMedia, *condition.MediaFile, media.Content); err != nil {
			s.logger.Error().Err(err).Str("condition_id", condition.ID).Msg("failed to store media, rolling back")
			if delErr := s.conditions.Delete(ctx, condition.ID); delErr != nil {
				s.logger.Error().Err(delErr).Str("condition_id", condition.ID).Msg("failed to roll back condition")
			}
			return nil, apperrors.NewUpstreamError("failed to store media", err)
		}
	}

	if in.StartThread {
		thread := &models.Thread{Name: name, Public: true}
		if err := s.threads.CreateThread(ctx, thread, nil); err != nil {
			return nil, err
		}
		if err := s.conditions.Update(ctx, condition.ID, map[string]interface{}{"thread_id": thread.ID}); err != nil {
			return nil, err
		}
		condition.ThreadID = &thread.ID
	}
	return condition, nil
}

// Find searches conditions by name. Disabled entries are only listed for
// admins.
func (s *ConditionService) Find(ctx context.Context, actorID, search string, includeDisabled bool) ([]models.Condition, error) {
	if includeDisabled {
		actor, err := loadActor(ctx, s.users, actorID)
		if err != nil {
			return nil, err
		}
		includeDisabled = actor.HasAccountType(models.AccountAdmin)
	}
	return s.conditions.Find(ctx, search, includeDisabled)
}

// Get loads a condition. Disabled conditions are hidden from non-admins.
func (s *ConditionService) Get(ctx context.Context, actorID, id string) (*models.Condition, error) {
	condition, err := s.conditions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if condition.Disabled {
		actor, err := loadActor(ctx, s.users, actorID)
		if err != nil || !actor.HasAccountType(models.AccountAdmin) {
			return nil, apperrors.NewNotFoundError("Condition not found")
		}
	}
	return condition, nil
}

// Update edits a condition. Admins may only toggle disabled; professionals
// and institutions edit the content.
func (s *ConditionService) Update(ctx context.Context, actorID, id string, in UpdateConditionInput) (*models.Condition, error) {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	condition, err := s.conditions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	isAdmin := actor.HasAccountType(models.AccountAdmin)
	switch {
	case isAdmin && in.hasContent():
		return nil, apperrors.NewUnauthorizedError("Admins may only enable or disable conditions")
	case !isAdmin && in.Disabled != nil:
		return nil, apperrors.NewUnauthorizedError("Only admins can enable or disable conditions")
	case !isAdmin && !actor.HasAccountType(models.AccountProfessional, models.AccountInstitution):
		return nil, apperrors.NewUnauthorizedError("Patients cannot edit conditions")
	case !isAdmin && condition.Disabled:
		return nil, apperrors.NewNotFoundError("Condition not found")
	}

	fields := map[string]interface{}{}
	if in.Disabled != nil {
		fields["disabled"] = *in.Disabled
		condition.Disabled = *in.Disabled
	}
	if in.Name != nil {
		name := strings.ToLower(strings.TrimSpace(*in.Name))
		if name == "" {
			return nil, apperrors.NewValidationError("name must not be empty")
		}
		taken, err := s.conditions.NameTaken(ctx, name, condition.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperrors.NewConflictError("possible duplicate")
		}
		fields["name"] = name
		condition.Name = name
	}
	setString(fields, "description", in.Description, &condition.Description)
	setString(fields, "symptoms", in.Symptoms, &condition.Symptoms)
	setString(fields, "remedies", in.Remedies, &condition.Remedies)

	if len(fields) > 0 {
		if err := s.conditions.Update(ctx, condition.ID, fields); err != nil {
			return nil, err
		}
	}
	return condition, nil
}

// AddComment posts a remark on a visible condition.
func (s *ConditionService) AddComment(ctx context.Context, actorID, conditionID, body string) (*models.CommentView, error) {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, actorID, conditionID); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("comment must not be empty")
	}

	comment := &models.Comment{ConditionID: conditionID, UserID: actor.ID, Body: body}
	if err := s.conditions.AddComment(ctx, comment); err != nil {
		return nil, err
	}
	comment.User = *actor
	view := comment.View()
	return &view, nil
}

// ListComments returns the comments of a condition, oldest first.
func (s *ConditionService) ListComments(ctx context.Context, conditionID string) ([]models.CommentView, error) {
	comments, err := s.conditions.ListComments(ctx, conditionID)
	if err != nil {
		return nil, err
	}
	out := make([]models.CommentView, 0, len(comments))
	for i := range comments {
		out = append(out, comments[i].View())
	}
	return out, nil
}

// Media resolves a stored media file for streaming.
func (s *ConditionService) Media(name string) (string, error) {
	path, err := s.files.Path(storage.BucketConditionMedia, name)
	if err != nil {
		return "", storageError(err, "File not found")
	}
	return path, nil
}
