package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

// PaymentMethod is the tender type recorded on payments and refunds
// (cash, card, mobile wallet, bank transfer).
type PaymentMethod struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:100;not null" json:"name" binding:"required"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPaymentMethod struct {
	Name string `json:"name" binding:"required"`
}

func CreatePaymentMethod(ctx context.Context, h *TenantHandle, input *NewPaymentMethod) (*PaymentMethod, error) {
	var method PaymentMethod
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := validateUnique[PaymentMethod](tx, "name", input.Name, 0); err != nil {
			return err
		}
		method = PaymentMethod{Name: input.Name, IsActive: utils.NewTrue()}
		return tx.Create(&method).Error
	})
	if err != nil {
		return nil, err
	}
	return &method, nil
}

func GetPaymentMethods(ctx context.Context, h *TenantHandle) ([]*PaymentMethod, error) {
	return fetchAllModels[PaymentMethod](h.DB(ctx).Order("name"))
}
