// Package cgserrors provides the categorized error type shared across the
// simulation core. Error codes are grouped into 256-value hex ranges per
// subsystem so the originating subsystem can be recovered from the code
// alone, without string matching.
package cgserrors

import (
	"errors"
	"fmt"
)

// Code is a subsystem-categorized error code.
type Code uint32

const (
	// General (0x0000-0x00FF)
	Success         Code = 0x0000
	Unknown         Code = 0x0001
	InvalidArgument Code = 0x0002
	NotFound        Code = 0x0003
	AlreadyExists   Code = 0x0004
	NotImplemented  Code = 0x0005

	// Database (0x0200-0x02FF)
	DatabaseError           Code = 0x0200
	QueryFailed             Code = 0x0201
	TransactionFailed       Code = 0x0202
	ConnectionPoolExhausted Code = 0x0203
	ConnectionPoolTimeout   Code = 0x0204
	NotConnected            Code = 0x0205
	PreparedStatementFailed Code = 0x0206

	// ECS (0x0300-0x03FF)
	EntityNotFound    Code = 0x0300
	ComponentNotFound Code = 0x0301
	SystemError       Code = 0x0302

	// Config (0x0600-0x06FF)
	ConfigLoadFailed   Code = 0x0600
	ConfigKeyNotFound  Code = 0x0601
	ConfigTypeMismatch Code = 0x0602

	// Logger (0x0800-0x08FF)
	LoggerError          Code = 0x0800
	LoggerNotInitialized Code = 0x0801
	LoggerFlushFailed    Code = 0x0802

	// Monitoring (0x0900-0x09FF)
	MonitoringError        Code = 0x0900
	MetricNotFound         Code = 0x0901
	InvalidMetricType      Code = 0x0902
	HistogramNotRegistered Code = 0x0903

	// Serialization (0x0A00-0x0AFF)
	SerializationError Code = 0x0A00
	InvalidBinaryData  Code = 0x0A01
	InvalidJSONData    Code = 0x0A02

	// GameServer (0x0B00-0x0BFF)
	GameServerError            Code = 0x0B00
	MapInstanceNotFound        Code = 0x0B01
	MapInstanceLimitReached    Code = 0x0B02
	MapInstanceInvalidState    Code = 0x0B03
	GameLoopAlreadyRunning     Code = 0x0B04
	GameLoopNotRunning         Code = 0x0B05
	PlayerAlreadyInWorld       Code = 0x0B06
	PlayerNotInWorld           Code = 0x0B07
	InstanceFull               Code = 0x0B08
	SystemSchedulerBuildFailed Code = 0x0B09

	// DBProxy (0x0D00-0x0DFF)
	DBProxyError        Code = 0x0D00
	CacheMiss           Code = 0x0D01
	CacheInvalidation   Code = 0x0D02
	ReplicaUnavailable  Code = 0x0D03
	PrimaryUnavailable  Code = 0x0D04
	QueryRoutingFailed  Code = 0x0D05
	DBProxyNotStarted   Code = 0x0D06

	// Persistence (0x0F00-0x0FFF)
	PersistenceError          Code = 0x0F00
	WalWriteFailed            Code = 0x0F01
	WalReadFailed             Code = 0x0F02
	WalCorrupted              Code = 0x0F03
	WalTruncateFailed         Code = 0x0F04
	SnapshotWriteFailed       Code = 0x0F05
	SnapshotReadFailed        Code = 0x0F06
	SnapshotCorrupted         Code = 0x0F07
	RecoveryFailed            Code = 0x0F08
	PersistenceNotStarted     Code = 0x0F09
	PersistenceAlreadyStarted Code = 0x0F0A
)

// Subsystem returns the human-readable subsystem name for a code, derived
// from its high byte.
func (c Code) Subsystem() string {
	switch c & 0xFF00 {
	case 0x0000:
		return "General"
	case 0x0200:
		return "Database"
	case 0x0300:
		return "ECS"
	case 0x0600:
		return "Config"
	case 0x0800:
		return "Logger"
	case 0x0900:
		return "Monitoring"
	case 0x0A00:
		return "Serialization"
	case 0x0B00:
		return "GameServer"
	case 0x0D00:
		return "DBProxy"
	case 0x0F00:
		return "Persistence"
	default:
		return "Unknown"
	}
}

func (c Code) String() string {
	return fmt.Sprintf("0x%04X", uint32(c))
}

// Error is the structured error type every fallible core operation returns
// as its concrete error value. The code doubles as the tag an idiomatic
// (T, error) pair would otherwise need a separate field for.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s %s] %s: %v", e.Code, e.Code.Subsystem(), e.Message, e.Err)
	}
	return fmt.Sprintf("[%s %s] %s", e.Code, e.Code.Subsystem(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails attaches structured context and returns the receiver for
// chaining.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New builds a fresh Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error around an existing cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// As extracts an *Error from err's chain, if present.
func As(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Is reports whether err's chain contains an *Error with the given code.
func Is(err error, code Code) bool {
	ce, ok := As(err)
	return ok && ce.Code == code
}
