package tires

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AllocateNumber reserves the next sequential tire number across all months.
// A missing counter row is provisioned with total 1 instead of failing.
func (s *Service) AllocateNumber(ctx context.Context) (string, error) {
	if err := s.ready(opAllocateNumber); err != nil {
		return "", err
	}

	var allocated int64
	err := s.runTransaction(ctx, opAllocateNumber, func(tx *gorm.DB) error {
		next, err := incrementCounter(tx)
		if err != nil {
			return err
		}
		allocated = next
		return nil
	})
	if err != nil {
		s.logError(opAllocateNumber, "transaction_failed", err)
		return "", newServiceError(opAllocateNumber, "transaction_failed", err)
	}

	s.observer.NumberAllocated()
	number := FormatNumber(allocated)
	s.loggerOrDefault().Debug("tire number allocated", zap.String("numero", number))
	return number, nil
}

// incrementCounter performs the compare-and-swap step; losing the race reports errWriteConflict.
func incrementCounter(tx *gorm.DB) (int64, error) {
	var counter Counter
	err := tx.Where("id = ?", counterRowID).Take(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created := Counter{ID: counterRowID, Total: 1}
		if err := tx.Create(&created).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return 0, errWriteConflict
			}
			return 0, err
		}
		return created.Total, nil
	}
	if err != nil {
		return 0, err
	}

	next := counter.Total + 1
	result := tx.Model(&Counter{}).
		Where("id = ? AND total = ?", counterRowID, counter.Total).
		Update("total", next)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, errWriteConflict
	}
	return next, nil
}

// CounterTotal reports the current counter value and whether the row exists.
func (s *Service) CounterTotal(ctx context.Context) (int64, bool, error) {
	if err := s.ready(opAllocateNumber); err != nil {
		return 0, false, err
	}
	var counter Counter
	err := s.db.WithContext(ctx).Where("id = ?", counterRowID).Take(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, newServiceError(opAllocateNumber, reasonQueryFailed, err)
	}
	return counter.Total, true, nil
}
