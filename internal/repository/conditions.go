package repository

import (
	"context"
	"strings"

	"careconnect-server/internal/models"

	"gorm.io/gorm"
)

const (
	msgConditionNotFound  = "Condition not found"
	msgConditionDuplicate = "possible duplicate"
)

// ConditionRepository persists conditions and their comments.
type ConditionRepository struct {
	DB *gorm.DB
}

// NewConditionRepository creates a new ConditionRepository.
func NewConditionRepository(db *gorm.DB) *ConditionRepository {
	return &ConditionRepository{DB: db}
}

// Create inserts a condition.
func (r *ConditionRepository) Create(ctx context.Context, condition *models.Condition) error {
	return translate(r.DB.WithContext(ctx).Create(condition).Error, msgConditionNotFound, msgConditionDuplicate)
}

// Delete removes a condition.
func (r *ConditionRepository) Delete(ctx context.Context, id string) error {
	err := r.DB.WithContext(ctx).Delete(&models.Condition{}, "id = ?", id).Error
	return translate(err, msgConditionNotFound, msgConditionDuplicate)
}

// FindByID loads a condition.
func (r *ConditionRepository) FindByID(ctx context.Context, id string) (*models.Condition, error) {
	var condition models.Condition
	if err := r.DB.WithContext(ctx).First(&condition, "id = ?", id).Error; err != nil {
		return nil, translate(err, msgConditionNotFound, msgConditionDuplicate)
	}
	return &condition, nil
}

// NameTaken reports whether another condition already uses name.
func (r *ConditionRepository) NameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	query := r.DB.WithContext(ctx).Model(&models.Condition{}).Where("name = ?", name)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, translate(err, msgConditionNotFound, msgConditionDuplicate)
	}
	return count > 0, nil
}

// Find lists conditions whose name contains search.
func (r *ConditionRepository) Find(ctx context.Context, search string, includeDisabled bool) ([]models.Condition, error) {
	query := r.DB.WithContext(ctx).Model(&models.Condition{})
	if search = strings.TrimSpace(strings.ToLower(search)); search != "" {
		query = query.Where("name LIKE ?", "%"+search+"%")
	}
	if !includeDisabled {
		query = query.Where("disabled = ?", false)
	}
	var conditions []models.Condition
	err := query.Order("name asc").Find(&conditions).Error
	return conditions, translate(err, msgConditionNotFound, msgConditionDuplicate)
}

// Update applies fields to the condition.
func (r *ConditionRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	err := r.DB.WithContext(ctx).Model(&models.Condition{}).Where("id = ?", id).Updates(fields).Error
	return translate(err, msgConditionNotFound, msgConditionDuplicate)
}

// AddComment inserts a comment.
func (r *ConditionRepository) AddComment(ctx context.Context, comment *models.Comment) error {
	return translate(r.DB.WithContext(ctx).Create(comment).Error, msgConditionNotFound, msgConditionDuplicate)
}

// ListComments returns a condition's comments, oldest first.
func (r *ConditionRepository) ListComments(ctx context.Context, conditionID string) ([]models.Comment, error) {
	var comments []models.Comment
	err := r.DB.WithContext(ctx).
		Preload("User", selectRef).
		Where("condition_id = ?", conditionID).
		Order("created_at asc").
		Find(&comments).Error
	return comments, translate(err, msgConditionNotFound, msgConditionDuplicate)
}
