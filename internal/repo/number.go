package repo

import (
	"context"

	"wainbox/pkg/models"

	"gorm.io/gorm"
)

// NumberRepository handles WhatsApp number data access
type NumberRepository struct {
	db *gorm.DB
}

// NewNumberRepository creates a new number repository
func NewNumberRepository(db *gorm.DB) *NumberRepository {
	return &NumberRepository{db: db}
}

// GetByID gets a number by ID
func (r *NumberRepository) GetByID(ctx context.Context, id uint) (*models.WhatsAppNumber, error) {
	var number models.WhatsAppNumber
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&number).Error
	if err != nil {
		return nil, err
	}
	return &number, nil
}

// GetActiveByPhoneNumberID gets an active number by its Meta phone_number_id
func (r *NumberRepository) GetActiveByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.WhatsAppNumber, error) {
	var number models.WhatsAppNumber
	err := r.db.WithContext(ctx).
		Where("phone_number_id = ? AND is_active = ?", phoneNumberID, true).
		First(&number).Error
	if err != nil {
		return nil, err
	}
	return &number, nil
}

// Create creates a new number
func (r *NumberRepository) Create(ctx context.Context, number *models.WhatsAppNumber) error {
	return r.db.WithContext(ctx).Create(number).Error
}

// List lists all numbers ordered by ID
func (r *NumberRepository) List(ctx context.Context) ([]models.WhatsAppNumber, error) {
	var numbers []models.WhatsAppNumber
	err := r.db.WithContext(ctx).Order("id").Find(&numbers).Error
	return numbers, err
}

// ListActiveByIDs lists the active numbers among ids
func (r *NumberRepository) ListActiveByIDs(ctx context.Context, ids []uint) ([]models.WhatsAppNumber, error) {
	numbers := []models.WhatsAppNumber{}
	if len(ids) == 0 {
		return numbers, nil
	}
	err := r.db.WithContext(ctx).
		Where("id IN ? AND is_active = ?", ids, true).
		Order("id").
		Find(&numbers).Error
	return numbers, err
}

// AllIDs returns the IDs of every number
func (r *NumberRepository) AllIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.WhatsAppNumber{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

// ToggleActive flips the active flag of a number
func (r *NumberRepository) ToggleActive(ctx context.Context, id uint) (*models.WhatsAppNumber, error) {
	number, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	number.IsActive = !number.IsActive
	if err := r.db.WithContext(ctx).Model(number).Update("is_active", number.IsActive).Error; err != nil {
		return nil, err
	}
	return number, nil
}
