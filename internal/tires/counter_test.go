package tires

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"gorm.io/gorm"
)

func TestAllocateNumberProvisionsMissingCounter(testContext *testing.T) {
	service, observer := newTestService(testContext)

	_, exists, err := service.CounterTotal(context.Background())
	if err != nil {
		testContext.Fatalf("counter lookup failed: %v", err)
	}
	if exists {
		testContext.Fatalf("expected no counter row before the first allocation")
	}

	number, err := service.AllocateNumber(context.Background())
	if err != nil {
		testContext.Fatalf("allocate failed: %v", err)
	}
	if number != "000001" {
		testContext.Fatalf("expected 000001, got %s", number)
	}
	if total := mustCounterTotal(testContext, service); total != 1 {
		testContext.Fatalf("expected counter total 1, got %d", total)
	}

	second, err := service.AllocateNumber(context.Background())
	if err != nil {
		testContext.Fatalf("second allocate failed: %v", err)
	}
	if second != "000002" {
		testContext.Fatalf("expected 000002, got %s", second)
	}
	if observer.allocated != 2 {
		testContext.Fatalf("expected observer to record 2 allocations, got %d", observer.allocated)
	}
}

func TestAllocateNumberConcurrentCallersReceiveDistinctNumbers(testContext *testing.T) {
	service, _ := newTestService(testContext)
	const callers = 24

	var (
		wait    sync.WaitGroup
		mu      sync.Mutex
		numbers []string
		errs    []error
	)
	for index := 0; index < callers; index++ {
		wait.Add(1)
		go func() {
			defer wait.Done()
			number, err := service.AllocateNumber(context.Background())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers = append(numbers, number)
		}()
	}
	wait.Wait()

	if len(errs) > 0 {
		testContext.Fatalf("unexpected allocation errors: %v", errs)
	}
	sort.Strings(numbers)
	for index, number := range numbers {
		expected := FormatNumber(int64(index + 1))
		if number != expected {
			testContext.Fatalf("expected consecutive numbers, position %d has %s want %s", index, number, expected)
		}
	}
	if total := mustCounterTotal(testContext, service); total != callers {
		testContext.Fatalf("expected counter total %d, got %d", callers, total)
	}
}

func TestRunTransactionRetriesWriteConflicts(testContext *testing.T) {
	service, observer := newTestService(testContext)

	attempts := 0
	err := service.runTransaction(context.Background(), opAllocateNumber, func(tx *gorm.DB) error {
		attempts++
		if attempts < 3 {
			return errWriteConflict
		}
		return nil
	})
	if err != nil {
		testContext.Fatalf("expected transaction to succeed after retries, got %v", err)
	}
	if attempts != 3 {
		testContext.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if retries := observer.retriesFor(opAllocateNumber); retries != 2 {
		testContext.Fatalf("expected 2 recorded retries, got %d", retries)
	}
}

func TestRunTransactionAbortsAfterAttemptBudget(testContext *testing.T) {
	service, _ := newTestService(testContext)

	attempts := 0
	err := service.runTransaction(context.Background(), opAllocateNumber, func(tx *gorm.DB) error {
		attempts++
		return errWriteConflict
	})
	if !errors.Is(err, ErrTransactionAborted) {
		testContext.Fatalf("expected ErrTransactionAborted, got %v", err)
	}
	if attempts != defaultTransactionAttempts {
		testContext.Fatalf("expected %d attempts, got %d", defaultTransactionAttempts, attempts)
	}
}

func TestRunTransactionDoesNotRetryOtherErrors(testContext *testing.T) {
	service, _ := newTestService(testContext)
	failure := errors.New("boom")

	attempts := 0
	err := service.runTransaction(context.Background(), opDeleteTire, func(tx *gorm.DB) error {
		attempts++
		return failure
	})
	if !errors.Is(err, failure) {
		testContext.Fatalf("expected the query failure to surface, got %v", err)
	}
	if attempts != 1 {
		testContext.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestFormatNumberPadsToSixDigits(testContext *testing.T) {
	testCases := []struct {
		value    int64
		expected string
	}{
		{value: 1, expected: "000001"},
		{value: 42, expected: "000042"},
		{value: 999999, expected: "999999"},
		{value: 1000000, expected: "1000000"},
	}
	for _, testCase := range testCases {
		if got := FormatNumber(testCase.value); got != testCase.expected {
			testContext.Fatalf("FormatNumber(%d) = %s, want %s", testCase.value, got, testCase.expected)
		}
	}
}
