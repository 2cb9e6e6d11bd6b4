// Package exception provides the error types and classification helpers used by the ledger batch engine.
// Every failure that crosses a component boundary is either transient (caused by contention with another
// writer, worth retrying) or domain (a business-rule or data problem that retrying cannot fix).
package exception

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// errorRegistry maps error names referenced in configuration to sentinel errors.
var errorRegistry = make(map[string]error)

// registryMutex protects access to errorRegistry.
var registryMutex sync.RWMutex

// RegisterErrorType registers a named sentinel error so configuration can refer to it.
// If prototype is nil or name is empty, this function panics.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("Error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("Cannot register nil prototype for name: %s", name))
	}

	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered checks if the specified error type name is registered in the registry.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// Class is the retry classification of an error.
type Class int

const (
	// ClassDomain marks failures that are terminal on the first attempt.
	ClassDomain Class = iota
	// ClassTransient marks contention failures that may succeed on retry.
	ClassTransient
)

// String returns the label used in logs and metrics.
func (c Class) String() string {
	if c == ClassTransient {
		return "transient"
	}
	return "domain"
}

// Transient failures.
var (
	// ErrOptimisticLockingFailure signals that the row version changed under us.
	ErrOptimisticLockingFailure = errors.New(OptimisticLockingFailureException)
	// ErrLockAcquisitionTimeout signals that a row lock could not be obtained in time.
	ErrLockAcquisitionTimeout = errors.New("LockAcquisitionTimeoutException")
	// ErrDeadlock signals that the datastore aborted the statement to break a deadlock.
	ErrDeadlock = errors.New("DeadlockException")
)

// Domain failures.
var (
	ErrAccountNotFound  = errors.New("AccountNotFoundException")
	ErrIneligibleParent = errors.New("IneligibleParentException")
	ErrBusinessRule     = errors.New("BusinessRuleViolationException")
	ErrInvalidState     = errors.New("InvalidStateException")
)

// OptimisticLockingFailureException is the registered name of ErrOptimisticLockingFailure.
const OptimisticLockingFailureException = "OptimisticLockingFailureException"

// BatchError is the error type raised by batch components.
// It carries the module where the error occurred, a message, the wrapped cause,
// and whether the failure is worth retrying.
type BatchError struct {
	// Module indicates where the error occurred (e.g., "fetcher", "retry", "store").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	isRetryable bool
}

// NewBatchError creates a new BatchError instance.
func NewBatchError(module, message string, originalErr error, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
	}
}

// NewBatchErrorf creates a BatchError with a formatted message. If the last argument is an error it is
// wrapped as the cause instead of being formatted.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	args := a
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	return &BatchError{
		Module:      module,
		Message:     fmt.Sprintf(format, args...),
		OriginalErr: originalErr,
		isRetryable: Classify(originalErr) == ClassTransient,
	}
}

// NewOptimisticLockingFailureException creates a retryable BatchError for a version conflict.
func NewOptimisticLockingFailureException(module, message string, originalErr error) *BatchError {
	var errToWrap error
	if originalErr != nil {
		errToWrap = errors.Join(ErrOptimisticLockingFailure, originalErr)
	} else {
		errToWrap = ErrOptimisticLockingFailure
	}
	return NewBatchError(module, message, errToWrap, true)
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// Classify reports whether err is transient or domain.
// Anything that is not recognisably contention is treated as domain so that it is never retried.
func Classify(err error) Class {
	if err == nil {
		return ClassDomain
	}
	var be *BatchError
	if errors.As(err, &be) && be.IsRetryable() {
		return ClassTransient
	}
	if errors.Is(err, ErrOptimisticLockingFailure) ||
		errors.Is(err, ErrLockAcquisitionTimeout) ||
		errors.Is(err, ErrDeadlock) {
		return ClassTransient
	}
	return ClassDomain
}

// IsTransient is shorthand for Classify(err) == ClassTransient.
func IsTransient(err error) bool {
	return err != nil && Classify(err) == ClassTransient
}

// IsOptimisticLockingFailure determines if an error indicates an optimistic locking failure.
func IsOptimisticLockingFailure(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrOptimisticLockingFailure)
}

// IsErrorOfType checks if an error matches a registered name, a message substring or a type name.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	targetError, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, targetError) {
		return true
	}

	currentErr := err
	for currentErr != nil {
		if strings.Contains(currentErr.Error(), errorTypeName) {
			return true
		}
		errType := reflect.TypeOf(currentErr)
		if errType != nil {
			if errType.String() == errorTypeName || (errType.Kind() == reflect.Ptr && errType.Elem().String() == errorTypeName) {
				return true
			}
		}
		currentErr = errors.Unwrap(currentErr)
	}
	return false
}

// ExtractErrorMessage extracts the error message string from an error.
// For BatchError, it returns the Message field joined with the root cause.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		if be.OriginalErr != nil {
			return be.Message + ": " + be.OriginalErr.Error()
		}
		return be.Message
	}
	return err.Error()
}

func init() {
	RegisterErrorType(OptimisticLockingFailureException, ErrOptimisticLockingFailure)
	RegisterErrorType("LockAcquisitionTimeoutException", ErrLockAcquisitionTimeout)
	RegisterErrorType("DeadlockException", ErrDeadlock)
	RegisterErrorType("AccountNotFoundException", ErrAccountNotFound)
	RegisterErrorType("IneligibleParentException", ErrIneligibleParent)
	RegisterErrorType("BusinessRuleViolationException", ErrBusinessRule)
	RegisterErrorType("InvalidStateException", ErrInvalidState)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
}
