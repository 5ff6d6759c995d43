package tires

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MonthDeletion reports what a month deletion left behind.
type MonthDeletion struct {
	MonthID string
	// OrphanedTires counts tire rows that still reference the deleted month.
	OrphanedTires int64
}

// CreateMonth opens a new in-progress bucket for the period.
func (s *Service) CreateMonth(ctx context.Context, period Period) (Month, error) {
	if err := s.ready(opCreateMonth); err != nil {
		return Month{}, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateMonth, reasonIDFailed, err)
		return Month{}, newServiceError(opCreateMonth, reasonIDFailed, err)
	}

	month := Month{
		ID:         id,
		Name:       period.DisplayName(),
		Year:       period.Year,
		Number:     period.Month,
		Status:     StatusInProgress,
		TotalTires: 0,
		CreatedAt:  s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&month).Error; err != nil {
		s.logError(opCreateMonth, reasonInsertFailed, err, zap.String("nome", month.Name))
		return Month{}, newServiceError(opCreateMonth, reasonInsertFailed, err)
	}
	s.loggerOrDefault().Info("month created",
		zap.String("mes_id", month.ID),
		zap.String("nome", month.Name))
	return month, nil
}

// ListMonths returns every month, newest first.
func (s *Service) ListMonths(ctx context.Context) ([]Month, error) {
	if err := s.ready(opListMonths); err != nil {
		return nil, err
	}
	var months []Month
	if err := s.db.WithContext(ctx).Order("criado_em DESC").Find(&months).Error; err != nil {
		s.logError(opListMonths, reasonQueryFailed, err)
		return nil, newServiceError(opListMonths, reasonQueryFailed, err)
	}
	return months, nil
}

// GetMonth loads a single month.
func (s *Service) GetMonth(ctx context.Context, monthID MonthID) (Month, error) {
	if err := s.ready(opGetMonth); err != nil {
		return Month{}, err
	}
	return s.loadMonth(ctx, s.db, opGetMonth, monthID)
}

// ToggleMonthStatus flips the month between in-progress and finalized.
func (s *Service) ToggleMonthStatus(ctx context.Context, monthID MonthID) (Month, error) {
	if err := s.ready(opToggleMonth); err != nil {
		return Month{}, err
	}
	var month Month
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.loadMonth(ctx, tx, opToggleMonth, monthID)
		if err != nil {
			return err
		}
		next := StatusFinalized
		if loaded.Finalized() {
			next = StatusInProgress
		}
		updatedAt := s.now()
		if err := tx.Model(&Month{}).
			Where("id = ?", monthID.String()).
			Updates(map[string]any{"status": next, "atualizado_em": updatedAt}).Error; err != nil {
			s.logError(opToggleMonth, reasonUpdateFailed, err, zap.String("mes_id", monthID.String()))
			return newServiceError(opToggleMonth, reasonUpdateFailed, err)
		}
		loaded.Status = next
		loaded.UpdatedAt = &updatedAt
		month = loaded
		return nil
	})
	if err != nil {
		return Month{}, err
	}
	return month, nil
}

// FinalizeMonth locks the month. It reports changed=false when it was already locked.
func (s *Service) FinalizeMonth(ctx context.Context, monthID MonthID) (Month, bool, error) {
	if err := s.ready(opFinalizeMonth); err != nil {
		return Month{}, false, err
	}
	month, err := s.loadMonth(ctx, s.db, opFinalizeMonth, monthID)
	if err != nil {
		return Month{}, false, err
	}
	if month.Finalized() {
		return month, false, nil
	}

	finalizedAt := s.now()
	if err := s.db.WithContext(ctx).Model(&Month{}).
		Where("id = ?", monthID.String()).
		Updates(map[string]any{"status": StatusFinalized, "finalizado_em": finalizedAt}).Error; err != nil {
		s.logError(opFinalizeMonth, reasonUpdateFailed, err, zap.String("mes_id", monthID.String()))
		return Month{}, false, newServiceError(opFinalizeMonth, reasonUpdateFailed, err)
	}
	month.Status = StatusFinalized
	month.FinalizedAt = &finalizedAt
	s.loggerOrDefault().Info("month finalized", zap.String("mes_id", month.ID))
	return month, true, nil
}

// DeleteMonth removes the month row only; its tires are left in place and counted.
func (s *Service) DeleteMonth(ctx context.Context, monthID MonthID) (MonthDeletion, error) {
	if err := s.ready(opDeleteMonth); err != nil {
		return MonthDeletion{}, err
	}
	result := s.db.WithContext(ctx).Where("id = ?", monthID.String()).Delete(&Month{})
	if result.Error != nil {
		s.logError(opDeleteMonth, "delete_failed", result.Error, zap.String("mes_id", monthID.String()))
		return MonthDeletion{}, newServiceError(opDeleteMonth, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return MonthDeletion{}, newServiceError(opDeleteMonth, reasonNotFound, ErrMonthNotFound)
	}

	deletion := MonthDeletion{MonthID: monthID.String()}
	if err := s.db.WithContext(ctx).Model(&Tire{}).
		Where("mes_id = ?", monthID.String()).
		Count(&deletion.OrphanedTires).Error; err != nil {
		s.loggerOrDefault().Warn("orphaned tire count failed",
			zap.String("mes_id", monthID.String()),
			zap.Error(err))
	}
	if deletion.OrphanedTires > 0 {
		s.loggerOrDefault().Warn("month deleted with remaining tires",
			zap.String("mes_id", monthID.String()),
			zap.Int64("orphaned_tires", deletion.OrphanedTires))
	}
	return deletion, nil
}

func (s *Service) loadMonth(ctx context.Context, db *gorm.DB, operation string, monthID MonthID) (Month, error) {
	var month Month
	err := db.WithContext(ctx).Where("id = ?", monthID.String()).Take(&month).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Month{}, newServiceError(operation, reasonNotFound, ErrMonthNotFound)
	}
	if err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("mes_id", monthID.String()))
		return Month{}, newServiceError(operation, reasonQueryFailed, err)
	}
	if month.Status == "" {
		month.Status = StatusInProgress
	}
	return month, nil
}
