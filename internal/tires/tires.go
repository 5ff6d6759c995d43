package tires

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateTire allocates the next number and opens an empty record under the month.
// The month's tire count is bumped in a separate write after the insert.
func (s *Service) CreateTire(ctx context.Context, monthID MonthID) (Tire, error) {
	if err := s.ready(opCreateTire); err != nil {
		return Tire{}, err
	}
	if _, err := s.unlockedMonth(ctx, opCreateTire, monthID); err != nil {
		return Tire{}, err
	}

	number, err := s.AllocateNumber(ctx)
	if err != nil {
		return Tire{}, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateTire, reasonIDFailed, err)
		return Tire{}, newServiceError(opCreateTire, reasonIDFailed, err)
	}

	now := s.now()
	tire := Tire{
		ID:           id,
		MonthID:      monthID.String(),
		Number:       number,
		Status:       StatusInProgress,
		Responsibles: datatypes.JSONSlice[string]{},
		Photos:       datatypes.JSONSlice[string]{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.insertTire(ctx, opCreateTire, &tire); err != nil {
		return Tire{}, err
	}
	s.loggerOrDefault().Info("tire created",
		zap.String("mes_id", tire.MonthID),
		zap.String("pneu_id", tire.ID),
		zap.String("numero", tire.Number))
	return tire, nil
}

// DuplicateTire copies every field of the source into a new record with a fresh
// number, an in-progress status and current timestamps.
func (s *Service) DuplicateTire(ctx context.Context, ref TireRef) (Tire, error) {
	if err := s.ready(opDuplicateTire); err != nil {
		return Tire{}, err
	}
	if _, err := s.unlockedMonth(ctx, opDuplicateTire, ref.MonthID); err != nil {
		return Tire{}, err
	}
	source, err := s.loadTire(ctx, s.db, opDuplicateTire, ref)
	if err != nil {
		return Tire{}, err
	}

	number, err := s.AllocateNumber(ctx)
	if err != nil {
		return Tire{}, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opDuplicateTire, reasonIDFailed, err)
		return Tire{}, newServiceError(opDuplicateTire, reasonIDFailed, err)
	}

	now := s.now()
	duplicate := source
	duplicate.ID = id
	duplicate.Number = number
	duplicate.Status = StatusInProgress
	duplicate.Responsibles = append(datatypes.JSONSlice[string]{}, source.Responsibles...)
	duplicate.Photos = append(datatypes.JSONSlice[string]{}, source.Photos...)
	duplicate.CreatedAt = now
	duplicate.UpdatedAt = now
	duplicate.FinalizedAt = nil
	if err := s.insertTire(ctx, opDuplicateTire, &duplicate); err != nil {
		return Tire{}, err
	}
	s.loggerOrDefault().Info("tire duplicated",
		zap.String("mes_id", duplicate.MonthID),
		zap.String("origem_id", source.ID),
		zap.String("pneu_id", duplicate.ID),
		zap.String("numero", duplicate.Number))
	return duplicate, nil
}

// DeleteTire removes the tire and decrements the month count and the global counter
// in one transaction. It fails with ErrCounterMissing when the counter row is absent.
func (s *Service) DeleteTire(ctx context.Context, ref TireRef) error {
	if err := s.ready(opDeleteTire); err != nil {
		return err
	}
	if _, err := s.unlockedMonth(ctx, opDeleteTire, ref.MonthID); err != nil {
		return err
	}

	err := s.runTransaction(ctx, opDeleteTire, func(tx *gorm.DB) error {
		var counter Counter
		err := tx.Where("id = ?", counterRowID).Take(&counter).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opDeleteTire, "counter_missing", ErrCounterMissing)
		}
		if err != nil {
			return newServiceError(opDeleteTire, reasonQueryFailed, err)
		}

		deleted := tx.Where("id = ? AND mes_id = ?", ref.TireID, ref.MonthID.String()).Delete(&Tire{})
		if deleted.Error != nil {
			return newServiceError(opDeleteTire, "delete_failed", deleted.Error)
		}
		if deleted.RowsAffected == 0 {
			return newServiceError(opDeleteTire, reasonNotFound, ErrTireNotFound)
		}

		monthUpdate := tx.Model(&Month{}).
			Where("id = ?", ref.MonthID.String()).
			UpdateColumn("total_pneus", gorm.Expr("total_pneus - ?", 1))
		if monthUpdate.Error != nil {
			return newServiceError(opDeleteTire, "month_count_update_failed", monthUpdate.Error)
		}
		if monthUpdate.RowsAffected == 0 {
			return newServiceError(opDeleteTire, "month_count_update_failed", ErrMonthNotFound)
		}

		counterUpdate := tx.Model(&Counter{}).
			Where("id = ?", counterRowID).
			UpdateColumn("total", gorm.Expr("total - ?", 1))
		if counterUpdate.Error != nil {
			return newServiceError(opDeleteTire, "counter_update_failed", counterUpdate.Error)
		}
		return nil
	})
	if err != nil {
		var serviceErr *ServiceError
		if !errors.As(err, &serviceErr) {
			err = newServiceError(opDeleteTire, "transaction_failed", err)
		}
		s.logError(opDeleteTire, "transaction_failed", err,
			zap.String("mes_id", ref.MonthID.String()),
			zap.String("pneu_id", ref.TireID))
		return err
	}
	s.loggerOrDefault().Info("tire deleted",
		zap.String("mes_id", ref.MonthID.String()),
		zap.String("pneu_id", ref.TireID))
	return nil
}

// ListTires returns the month's tires, newest first.
func (s *Service) ListTires(ctx context.Context, monthID MonthID) ([]Tire, error) {
	return s.listTires(ctx, monthID, "criado_em DESC")
}

// ListTiresByNumber returns the month's tires in allocation order.
func (s *Service) ListTiresByNumber(ctx context.Context, monthID MonthID) ([]Tire, error) {
	return s.listTires(ctx, monthID, "LENGTH(numero) ASC, numero ASC")
}

func (s *Service) listTires(ctx context.Context, monthID MonthID, order string) ([]Tire, error) {
	if err := s.ready(opListTires); err != nil {
		return nil, err
	}
	var tires []Tire
	if err := s.db.WithContext(ctx).
		Where("mes_id = ?", monthID.String()).
		Order(order).
		Find(&tires).Error; err != nil {
		s.logError(opListTires, reasonQueryFailed, err, zap.String("mes_id", monthID.String()))
		return nil, newServiceError(opListTires, reasonQueryFailed, err)
	}
	for index := range tires {
		normalizeSlices(&tires[index])
	}
	return tires, nil
}

// GetTire loads one tire record.
func (s *Service) GetTire(ctx context.Context, ref TireRef) (Tire, error) {
	if err := s.ready(opGetTire); err != nil {
		return Tire{}, err
	}
	return s.loadTire(ctx, s.db, opGetTire, ref)
}

// SaveTire overwrites the editable sections. When newPhotos is non-empty they are
// appended to the stored photos, keeping at most MaxPhotos.
func (s *Service) SaveTire(ctx context.Context, ref TireRef, form TireForm, newPhotos []string) (Tire, error) {
	if err := s.ready(opSaveTire); err != nil {
		return Tire{}, err
	}
	var saved Tire
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tire, err := s.loadTire(ctx, tx, opSaveTire, ref)
		if err != nil {
			return err
		}
		if tire.Finalized() {
			return newServiceError(opSaveTire, reasonFinalized, ErrTireFinalized)
		}
		applyForm(&tire, form.normalized())
		if len(newPhotos) > 0 {
			tire.Photos = mergePhotos(tire.Photos, newPhotos)
		}
		tire.UpdatedAt = s.now()
		if err := tx.Model(&Tire{}).
			Where("id = ? AND mes_id = ?", ref.TireID, ref.MonthID.String()).
			Updates(formColumns(tire)).Error; err != nil {
			s.logError(opSaveTire, reasonUpdateFailed, err, zap.String("pneu_id", ref.TireID))
			return newServiceError(opSaveTire, reasonUpdateFailed, err)
		}
		saved = tire
		return nil
	})
	if err != nil {
		return Tire{}, err
	}
	return saved, nil
}

// AttachPhotos appends uploaded photo URLs to an editable tire.
func (s *Service) AttachPhotos(ctx context.Context, ref TireRef, urls []string) (Tire, error) {
	if err := s.ready(opAttachPhotos); err != nil {
		return Tire{}, err
	}
	var updated Tire
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tire, err := s.loadTire(ctx, tx, opAttachPhotos, ref)
		if err != nil {
			return err
		}
		if tire.Finalized() {
			return newServiceError(opAttachPhotos, reasonFinalized, ErrTireFinalized)
		}
		if len(urls) == 0 {
			updated = tire
			return nil
		}
		tire.Photos = mergePhotos(tire.Photos, urls)
		tire.UpdatedAt = s.now()
		if err := tx.Model(&Tire{}).
			Where("id = ? AND mes_id = ?", ref.TireID, ref.MonthID.String()).
			Updates(map[string]any{"fotos": tire.Photos, "atualizado_em": tire.UpdatedAt}).Error; err != nil {
			s.logError(opAttachPhotos, reasonUpdateFailed, err, zap.String("pneu_id", ref.TireID))
			return newServiceError(opAttachPhotos, reasonUpdateFailed, err)
		}
		updated = tire
		return nil
	})
	if err != nil {
		return Tire{}, err
	}
	return updated, nil
}

// FinalizeTire saves the optional form and then locks the tire. Locking an already
// finalized tire is a no-op reported as changed=false.
func (s *Service) FinalizeTire(ctx context.Context, ref TireRef, form *TireForm) (Tire, bool, error) {
	if err := s.ready(opFinalizeTire); err != nil {
		return Tire{}, false, err
	}
	current, err := s.loadTire(ctx, s.db, opFinalizeTire, ref)
	if err != nil {
		return Tire{}, false, err
	}
	if current.Finalized() {
		return current, false, nil
	}
	if form != nil {
		saved, err := s.SaveTire(ctx, ref, *form, nil)
		if err != nil {
			return Tire{}, false, err
		}
		current = saved
	}

	finalizedAt := s.now()
	if err := s.db.WithContext(ctx).Model(&Tire{}).
		Where("id = ? AND mes_id = ?", ref.TireID, ref.MonthID.String()).
		Updates(map[string]any{
			"status":        StatusFinalized,
			"finalizado_em": finalizedAt,
			"atualizado_em": finalizedAt,
		}).Error; err != nil {
		s.logError(opFinalizeTire, reasonUpdateFailed, err, zap.String("pneu_id", ref.TireID))
		return Tire{}, false, newServiceError(opFinalizeTire, reasonUpdateFailed, err)
	}
	current.Status = StatusFinalized
	current.FinalizedAt = &finalizedAt
	current.UpdatedAt = finalizedAt
	s.loggerOrDefault().Info("tire finalized",
		zap.String("mes_id", current.MonthID),
		zap.String("pneu_id", current.ID),
		zap.String("numero", current.Number))
	return current, true, nil
}

func (s *Service) insertTire(ctx context.Context, operation string, tire *Tire) error {
	if err := s.db.WithContext(ctx).Create(tire).Error; err != nil {
		s.logError(operation, reasonInsertFailed, err, zap.String("numero", tire.Number))
		return newServiceError(operation, reasonInsertFailed, err)
	}
	if err := s.db.WithContext(ctx).Model(&Month{}).
		Where("id = ?", tire.MonthID).
		UpdateColumn("total_pneus", gorm.Expr("total_pneus + ?", 1)).Error; err != nil {
		s.logError(operation, "month_count_update_failed", err,
			zap.String("mes_id", tire.MonthID),
			zap.String("pneu_id", tire.ID))
		return newServiceError(operation, "month_count_update_failed", err)
	}
	return nil
}

// unlockedMonth loads the month and rejects it when finalized.
func (s *Service) unlockedMonth(ctx context.Context, operation string, monthID MonthID) (Month, error) {
	month, err := s.loadMonth(ctx, s.db, operation, monthID)
	if err != nil {
		return Month{}, err
	}
	if month.Finalized() {
		return Month{}, newServiceError(operation, reasonFinalized, ErrMonthFinalized)
	}
	return month, nil
}

func (s *Service) loadTire(ctx context.Context, db *gorm.DB, operation string, ref TireRef) (Tire, error) {
	var tire Tire
	err := db.WithContext(ctx).
		Where("id = ? AND mes_id = ?", ref.TireID, ref.MonthID.String()).
		Take(&tire).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Tire{}, newServiceError(operation, reasonNotFound, ErrTireNotFound)
	}
	if err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("pneu_id", ref.TireID))
		return Tire{}, newServiceError(operation, reasonQueryFailed, err)
	}
	normalizeSlices(&tire)
	return tire, nil
}

func applyForm(tire *Tire, form TireForm) {
	tire.Planning = form.Planning
	tire.Schedule = form.Schedule
	tire.Location = form.Location
	tire.Responsibles = datatypes.JSONSlice[string](form.Responsibles)
	tire.Characteristics = form.Characteristics
	tire.Inspection = form.Inspection
}

// formColumns lists every editable column so zero values are written too.
func formColumns(tire Tire) map[string]any {
	return map[string]any{
		"planejamento_como":            tire.Planning.How,
		"planejamento_instrucoes":      tire.Planning.Instructions,
		"quando_inicio":                tire.Schedule.Start,
		"quando_fim":                   tire.Schedule.End,
		"onde_nome":                    tire.Location.Name,
		"onde_razao_social":            tire.Location.CompanyName,
		"onde_endereco":                tire.Location.Address,
		"responsaveis":                 tire.Responsibles,
		"caracteristicas_marca":        tire.Characteristics.Brand,
		"caracteristicas_medida":       tire.Characteristics.Size,
		"caracteristicas_desenho":      tire.Characteristics.Pattern,
		"caracteristicas_profundidade": tire.Characteristics.TreadDepth,
		"caracteristicas_vida":         tire.Characteristics.Life,
		"informacoes_dot":              tire.Inspection.DOT,
		"informacoes_numero_fogo":      tire.Inspection.FireNumber,
		"informacoes_cliente":          tire.Inspection.Customer,
		"informacoes_data":             tire.Inspection.Date,
		"informacoes_mes_referencia":   tire.Inspection.ReferenceMonth,
		"informacoes_avaria":           tire.Inspection.Damage,
		"informacoes_causa":            tire.Inspection.Cause,
		"fotos":                        tire.Photos,
		"atualizado_em":                tire.UpdatedAt,
	}
}

func mergePhotos(existing []string, added []string) datatypes.JSONSlice[string] {
	merged := make(datatypes.JSONSlice[string], 0, MaxPhotos)
	merged = append(merged, existing...)
	merged = append(merged, added...)
	if len(merged) > MaxPhotos {
		merged = merged[:MaxPhotos]
	}
	return merged
}

func normalizeSlices(tire *Tire) {
	if tire.Responsibles == nil {
		tire.Responsibles = datatypes.JSONSlice[string]{}
	}
	if tire.Photos == nil {
		tire.Photos = datatypes.JSONSlice[string]{}
	}
	if tire.Status == "" {
		tire.Status = StatusInProgress
	}
}
