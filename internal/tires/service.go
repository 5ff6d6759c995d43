package tires

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultTransactionAttempts = 5

var (
	// ErrMonthNotFound indicates the month document does not exist.
	ErrMonthNotFound = errors.New("tires: month not found")
	// ErrTireNotFound indicates the tire document does not exist under the month.
	ErrTireNotFound = errors.New("tires: tire not found")
	// ErrMonthFinalized indicates the month locks creation, duplication and deletion.
	ErrMonthFinalized = errors.New("tires: month is finalized")
	// ErrTireFinalized indicates the tire is read-only.
	ErrTireFinalized = errors.New("tires: tire is finalized")
	// ErrCounterMissing indicates the shared counter row has not been provisioned yet.
	ErrCounterMissing = errors.New("tires: counter document missing")
	// ErrTransactionAborted indicates the transaction kept conflicting past its attempt budget.
	ErrTransactionAborted = errors.New("tires: transaction aborted after repeated conflicts")

	errWriteConflict     = errors.New("tires: write conflict")
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable "<operation>.<reason>" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable error code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew       = "tires.service.new"
	opAllocateNumber   = "tires.allocate_number"
	opCreateMonth      = "tires.create_month"
	opListMonths       = "tires.list_months"
	opGetMonth         = "tires.get_month"
	opToggleMonth      = "tires.toggle_month_status"
	opFinalizeMonth    = "tires.finalize_month"
	opDeleteMonth      = "tires.delete_month"
	opCreateTire       = "tires.create_tire"
	opDuplicateTire    = "tires.duplicate_tire"
	opDeleteTire       = "tires.delete_tire"
	opListTires        = "tires.list_tires"
	opGetTire          = "tires.get_tire"
	opSaveTire         = "tires.save_tire"
	opFinalizeTire     = "tires.finalize_tire"
	opAttachPhotos     = "tires.attach_photos"
	reasonMissingDB    = "missing_database"
	reasonQueryFailed  = "query_failed"
	reasonNotFound     = "not_found"
	reasonFinalized    = "finalized"
	reasonInsertFailed = "insert_failed"
	reasonUpdateFailed = "update_failed"
	reasonIDFailed     = "id_generation_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for new months and tires.
type IDProvider interface {
	NewID() (string, error)
}

// Observer receives allocation and transaction events; metrics implement it.
type Observer interface {
	NumberAllocated()
	TransactionRetried(operation string)
}

type noOpObserver struct{}

func (noOpObserver) NumberAllocated()          {}
func (noOpObserver) TransactionRetried(string) {}

// ServiceConfig describes the dependencies of the month/tire service.
type ServiceConfig struct {
	Database            *gorm.DB
	Clock               func() time.Time
	IDProvider          IDProvider
	Logger              *zap.Logger
	Observer            Observer
	TransactionAttempts int
}

// Service owns months, tires and the shared number counter.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	idProvider  IDProvider
	logger      *zap.Logger
	observer    Observer
	maxAttempts int
}

// NewService validates dependencies and constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDB, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	var observer Observer = noOpObserver{}
	if cfg.Observer != nil {
		observer = cfg.Observer
	}
	attempts := cfg.TransactionAttempts
	if attempts <= 0 {
		attempts = defaultTransactionAttempts
	}
	return &Service{
		db:          cfg.Database,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		logger:      logger,
		observer:    observer,
		maxAttempts: attempts,
	}, nil
}

// runTransaction executes fn in a transaction and re-runs it from scratch when it
// reports a write conflict, up to the configured attempt budget.
func (s *Service) runTransaction(ctx context.Context, operation string, fn func(tx *gorm.DB) error) error {
	for attempt := 1; ; attempt++ {
		err := s.db.WithContext(ctx).Transaction(fn)
		if err == nil || !errors.Is(err, errWriteConflict) {
			return err
		}
		if attempt >= s.maxAttempts {
			return fmt.Errorf("%w: %d attempts", ErrTransactionAborted, attempt)
		}
		s.observer.TransactionRetried(operation)
		s.loggerOrDefault().Debug("transaction conflict, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt))
	}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) ready(operation string) error {
	if s == nil || s.db == nil {
		s.logError(operation, reasonMissingDB, errMissingDatabase)
		return newServiceError(operation, reasonMissingDB, errMissingDatabase)
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("tires service error", attrs...)
}
