package models

import (
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

/* DB fetching helpers, scoped to a tenant transaction/session */

// fetch model by id (may return RecordNotFound)
func fetchModel[T any](tx *gorm.DB, id int, associations ...string) (*T, error) {
	dbCtx := tx
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// fetch model by id with a row lock (MySQL) for read-modify-write
func fetchModelForUpdate[T any](tx *gorm.DB, id int, associations ...string) (*T, error) {
	return fetchModel[T](lockForUpdate(tx), id, associations...)
}

func fetchAllModels[T any](tx *gorm.DB, associations ...string) ([]*T, error) {
	dbCtx := tx
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var results []*T
	if err := dbCtx.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// validateResourceId fails with RecordNotFound when the id does not exist.
func validateResourceId[T any](tx *gorm.DB, id int) error {
	var count int64
	var model T
	if err := tx.Model(&model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count <= 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

// validateUnique fails with ErrDuplicateKey when another row (id != excludeId)
// already carries the value in the given column.
func validateUnique[T any](tx *gorm.DB, column string, value any, excludeId int) error {
	var count int64
	var model T
	dbCtx := tx.Model(&model).Where(fmt.Sprintf("%s = ?", column), value)
	if excludeId > 0 {
		dbCtx = dbCtx.Where("id != ?", excludeId)
	}
	if err := dbCtx.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%s already in use: %w", column, utils.ErrDuplicateKey)
	}
	return nil
}

func resourceCountWhere[T any](tx *gorm.DB, query string, args ...any) (int64, error) {
	var count int64
	var model T
	if err := tx.Model(&model).Where(query, args...).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// toggleActiveModel flips the IsActive column (soft activation toggle).
func toggleActiveModel[T any](tx *gorm.DB, id int, isActive bool) (*T, error) {
	result, err := fetchModel[T](tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Model(result).UpdateColumn("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	return result, nil
}
