package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrMissingCredentials indicates an empty name or password after trimming.
	ErrMissingCredentials = errors.New("users: name and password are required")
	// ErrInvalidCredentials indicates no active user matched the name/password pair.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrUserExists indicates the name is already registered.
	ErrUserExists = errors.New("users: user already exists")
)

// ServiceConfig describes the dependencies required for credential checks.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service looks up and provisions login rows.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// Authenticate returns the active user whose name and password both equal the trimmed input.
func (s *Service) Authenticate(ctx context.Context, name, password string) (User, error) {
	name = normalize(name)
	password = normalize(password)
	if name == "" || password == "" {
		return User{}, ErrMissingCredentials
	}

	var user User
	err := s.db.WithContext(ctx).
		Where("nome = ? AND senha = ? AND ativo = ?", name, password, true).
		Take(&user).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Info("login rejected", zap.String("nome", name))
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		s.logger.Error("user lookup failed", zap.String("nome", name), zap.Error(err))
		return User{}, err
	}
	return user, nil
}

// Create provisions an active user.
func (s *Service) Create(ctx context.Context, name, password string) (User, error) {
	name = normalize(name)
	password = normalize(password)
	if name == "" || password == "" {
		return User{}, ErrMissingCredentials
	}
	user := User{Name: name, Password: password, Active: true, CreatedAt: s.now().UTC()}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return User{}, ErrUserExists
		}
		return User{}, err
	}
	s.logger.Info("user created", zap.String("nome", user.Name))
	return user, nil
}

// SetActive enables or disables logins for the named user.
func (s *Service) SetActive(ctx context.Context, name string, active bool) error {
	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("nome = ?", normalize(name)).
		Update("ativo", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidCredentials
	}
	return nil
}
