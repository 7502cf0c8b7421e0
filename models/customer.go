package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

type Customer struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Phone     string    `gorm:"index;size:32" json:"phone"`
	Email     string    `gorm:"size:255" json:"email"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

func CreateCustomer(ctx context.Context, h *TenantHandle, input *NewCustomer) (*Customer, error) {
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return nil, fmt.Errorf("invalid email")
	}
	var customer Customer
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		customer = Customer{
			Name:     input.Name,
			Phone:    input.Phone,
			Email:    input.Email,
			IsActive: utils.NewTrue(),
		}
		return tx.Create(&customer).Error
	})
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func GetCustomer(ctx context.Context, h *TenantHandle, id int) (*Customer, error) {
	return fetchModel[Customer](h.DB(ctx), id)
}

func GetCustomers(ctx context.Context, h *TenantHandle) ([]*Customer, error) {
	return fetchAllModels[Customer](h.DB(ctx).Order("name"))
}
