package repo

import (
	"context"
	"strings"

	"wainbox/pkg/models"

	"gorm.io/gorm"
)

// UserRepository handles user and assignment data access
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByUsername gets a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByID gets a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// Update updates a user
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// List lists all users ordered by ID
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).Order("id").Find(&users).Error
	return users, err
}

// ToggleActive flips the active flag of a user
func (r *UserRepository) ToggleActive(ctx context.Context, id uint) (*models.User, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.IsActive = !user.IsActive
	if err := r.db.WithContext(ctx).Model(user).Update("is_active", user.IsActive).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// AssignedNumberIDs returns the IDs of the numbers assigned to a user
func (r *UserRepository) AssignedNumberIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("user_id = ?", userID).
		Order("wa_number_id").
		Pluck("wa_number_id", &ids).Error
	return ids, err
}

// ReplaceAssignments replaces all number assignments of a user
func (r *UserRepository) ReplaceAssignments(ctx context.Context, userID uint, numberIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.Assignment{}).Error; err != nil {
			return err
		}

		seen := make(map[uint]bool, len(numberIDs))
		for _, id := range numberIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			if err := tx.Create(&models.Assignment{UserID: userID, WaNumberID: id}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
