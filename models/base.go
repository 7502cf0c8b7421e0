package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxTxRetries = 3

// runInTenantTransaction executes fn inside a single all-or-nothing
// transaction on the tenant's database. Deadlocks and lock-wait timeouts are
// retried a bounded number of times before surfacing as ErrConflict; every
// other failure rolls back and returns as-is, leaving the store in its prior
// state.
func (h *TenantHandle) runInTenantTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxTxRetries; attempt++ {
		err := h.DB(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !isRetryableTxError(err) {
			return err
		}
		lastErr = err
		time.Sleep(time.Duration(attempt) * 20 * time.Millisecond)
	}
	return fmt.Errorf("%w: %v", utils.ErrConflict, lastErr)
}

// MySQL 1213 = deadlock, 1205 = lock wait timeout.
func isRetryableTxError(err error) bool {
	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	return false
}

// lockForUpdate adds SELECT ... FOR UPDATE where the dialect supports it.
// The sqlite test stores run single-writer, so skipping the clause there is
// safe and keeps the statements valid.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "mysql" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// DocumentSequence backs the per-year sequential document numbers
// (PO2026-00001, EXP2026-00001, RET2026-00001). The row is locked inside the
// creating transaction so concurrent creations cannot collide.
type DocumentSequence struct {
	ID        int          `gorm:"primary_key" json:"id"`
	DocType   DocumentType `gorm:"uniqueIndex:idx_doc_type_year;size:8;not null" json:"doc_type"`
	Year      int          `gorm:"uniqueIndex:idx_doc_type_year;not null" json:"year"`
	LastSeq   int          `gorm:"not null;default:0" json:"last_seq"`
	UpdatedAt time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// nextDocumentNumber reserves the next number of the series for the current
// year. Must run inside the caller's transaction.
func nextDocumentNumber(tx *gorm.DB, docType DocumentType, now time.Time) (string, error) {
	year := now.Year()

	var seq DocumentSequence
	err := lockForUpdate(tx).
		Where("doc_type = ? AND year = ?", docType, year).
		First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seq = DocumentSequence{DocType: docType, Year: year, LastSeq: 0}
		if err := tx.Create(&seq).Error; err != nil {
			// Lost the creation race; re-read under lock.
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return "", err
			}
			if err := lockForUpdate(tx).
				Where("doc_type = ? AND year = ?", docType, year).
				First(&seq).Error; err != nil {
				return "", err
			}
		}
	} else if err != nil {
		return "", err
	}

	seq.LastSeq++
	if err := tx.Model(&DocumentSequence{}).
		Where("id = ?", seq.ID).
		Update("LastSeq", seq.LastSeq).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%d-%05d", docType, year, seq.LastSeq), nil
}

func actorIdFromContext(ctx context.Context) int {
	actorId, _ := utils.GetActorIdFromContext(ctx)
	return actorId
}
