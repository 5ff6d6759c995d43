package tires

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type sequenceIDProvider struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("%s-%03d", p.prefix, p.next), nil
}

type steppingClock struct {
	mu      sync.Mutex
	current time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{current: time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(time.Second)
	return c.current
}

type recordingObserver struct {
	mu        sync.Mutex
	allocated int
	retries   map[string]int
}

func (o *recordingObserver) NumberAllocated() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.allocated++
}

func (o *recordingObserver) TransactionRetried(operation string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.retries == nil {
		o.retries = make(map[string]int)
	}
	o.retries[operation]++
}

func (o *recordingObserver) retriesFor(operation string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.retries[operation]
}

func openTestDatabase(testContext *testing.T) *gorm.DB {
	testContext.Helper()
	path := filepath.Join(testContext.TempDir(), "pneus.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	testContext.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&Month{}, &Tire{}, &Counter{}); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(testContext *testing.T) (*Service, *recordingObserver) {
	testContext.Helper()
	observer := &recordingObserver{}
	service, err := NewService(ServiceConfig{
		Database:   openTestDatabase(testContext),
		Clock:      newSteppingClock().Now,
		IDProvider: &sequenceIDProvider{prefix: "id"},
		Observer:   observer,
	})
	if err != nil {
		testContext.Fatalf("failed to construct service: %v", err)
	}
	return service, observer
}

func mustMonth(testContext *testing.T, service *Service, year, month int) Month {
	testContext.Helper()
	period, err := NewPeriod(year, month)
	if err != nil {
		testContext.Fatalf("invalid period: %v", err)
	}
	created, err := service.CreateMonth(context.Background(), period)
	if err != nil {
		testContext.Fatalf("create month failed: %v", err)
	}
	return created
}

func mustTire(testContext *testing.T, service *Service, month Month) Tire {
	testContext.Helper()
	tire, err := service.CreateTire(context.Background(), MonthID(month.ID))
	if err != nil {
		testContext.Fatalf("create tire failed: %v", err)
	}
	return tire
}

func mustRef(testContext *testing.T, tire Tire) TireRef {
	testContext.Helper()
	ref, err := NewTireRef(tire.MonthID, tire.ID)
	if err != nil {
		testContext.Fatalf("invalid tire ref: %v", err)
	}
	return ref
}

func mustCounterTotal(testContext *testing.T, service *Service) int64 {
	testContext.Helper()
	total, exists, err := service.CounterTotal(context.Background())
	if err != nil {
		testContext.Fatalf("counter lookup failed: %v", err)
	}
	if !exists {
		testContext.Fatalf("expected counter row to exist")
	}
	return total
}

func mustReloadMonth(testContext *testing.T, service *Service, monthID string) Month {
	testContext.Helper()
	month, err := service.GetMonth(context.Background(), MonthID(monthID))
	if err != nil {
		testContext.Fatalf("get month failed: %v", err)
	}
	return month
}
