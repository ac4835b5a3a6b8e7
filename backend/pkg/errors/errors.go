package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeNotFound represents a missing node, edge, canvas or session
	ErrorTypeNotFound ErrorType = "notfound"
	// ErrorTypeHierarchy represents an edge that violates the node hierarchy
	ErrorTypeHierarchy ErrorType = "hierarchy"
	// ErrorTypeProtected represents an operation on a protected resource
	ErrorTypeProtected ErrorType = "protected"
	// ErrorTypeCollaborator represents an unavailable or failing collaborator
	ErrorTypeCollaborator ErrorType = "collaborator"
	// ErrorTypePersistence represents an I/O or serialization failure
	ErrorTypePersistence ErrorType = "persistence"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Not-found errors

// ErrNodeNotFound is returned when a referenced node is absent from the graph
type ErrNodeNotFound struct {
	*BaseError
	NodeID string
}

func NewNodeNotFound(nodeID string) *ErrNodeNotFound {
	return &ErrNodeNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("node not found: %s", nodeID), nil),
		NodeID:    nodeID,
	}
}

// ErrEdgeNotFound is returned when a referenced edge is absent from the graph
type ErrEdgeNotFound struct {
	*BaseError
	Source string
	Target string
}

func NewEdgeNotFound(source, target string) *ErrEdgeNotFound {
	return &ErrEdgeNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("edge not found: %s -> %s", source, target), nil),
		Source:    source,
		Target:    target,
	}
}

// ErrCanvasNotFound is returned when a canvas id is not in the registry
type ErrCanvasNotFound struct {
	*BaseError
	CanvasID string
}

func NewCanvasNotFound(canvasID string) *ErrCanvasNotFound {
	return &ErrCanvasNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("canvas not found: %s", canvasID), nil),
		CanvasID:  canvasID,
	}
}

// ErrSessionNotFound is returned when a chat session id is unknown
type ErrSessionNotFound struct {
	*BaseError
	SessionID string
}

func NewSessionNotFound(sessionID string) *ErrSessionNotFound {
	return &ErrSessionNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("session not found: %s", sessionID), nil),
		SessionID: sessionID,
	}
}

// Hierarchy errors

// ErrHierarchyViolation is returned when an edge would point from a
// higher-rank node down to a strictly lower-rank node
type ErrHierarchyViolation struct {
	*BaseError
	Source     string
	SourceType string
	Target     string
	TargetType string
}

func NewHierarchyViolation(source, sourceType, target, targetType string) *ErrHierarchyViolation {
	return &ErrHierarchyViolation{
		BaseError: NewBaseError(ErrorTypeHierarchy,
			fmt.Sprintf("%s (%s) cannot point down to %s (%s)", source, sourceType, target, targetType), nil),
		Source:     source,
		SourceType: sourceType,
		Target:     target,
		TargetType: targetType,
	}
}

// Protected-resource errors

// ErrProtectedCanvas is returned on an attempt to delete the default canvas
type ErrProtectedCanvas struct {
	*BaseError
	CanvasID string
}

func NewProtectedCanvas(canvasID string) *ErrProtectedCanvas {
	return &ErrProtectedCanvas{
		BaseError: NewBaseError(ErrorTypeProtected, fmt.Sprintf("canvas is protected: %s", canvasID), nil),
		CanvasID:  canvasID,
	}
}

// Collaborator errors

// ErrCollaboratorUnavailable is returned when content intelligence or
// retrieval is not configured or failing
var ErrCollaboratorUnavailable = NewBaseError(ErrorTypeCollaborator, "content intelligence not available", nil)

// ErrRetrievalFailed is returned when fetching external content fails
type ErrRetrievalFailed struct {
	*BaseError
	URL string
}

func NewRetrievalFailed(url string, err error) *ErrRetrievalFailed {
	return &ErrRetrievalFailed{
		BaseError: NewBaseError(ErrorTypeCollaborator, fmt.Sprintf("retrieval failed: %s", url), err),
		URL:       url,
	}
}

// Persistence errors

// ErrPersistenceFailed is returned when reading or writing a backing
// document fails
type ErrPersistenceFailed struct {
	*BaseError
	Path string
}

func NewPersistenceFailed(path string, err error) *ErrPersistenceFailed {
	return &ErrPersistenceFailed{
		BaseError: NewBaseError(ErrorTypePersistence, fmt.Sprintf("persistence failed: %s", path), err),
		Path:      path,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}
	// Typed errors embed *BaseError, which carries the category
	if embedded, ok := err.(interface{ base() *BaseError }); ok {
		return embedded.base().Type == errType
	}
	if wrapper, ok := err.(interface{ Unwrap() error }); ok {
		return IsErrorType(wrapper.Unwrap(), errType)
	}
	return false
}

func (e *BaseError) base() *BaseError { return e }

// IsNotFound reports whether err is a not-found rejection
func IsNotFound(err error) bool { return IsErrorType(err, ErrorTypeNotFound) }

// IsHierarchyViolation reports whether err is a hierarchy rejection
func IsHierarchyViolation(err error) bool { return IsErrorType(err, ErrorTypeHierarchy) }

// IsProtected reports whether err is a protected-resource rejection
func IsProtected(err error) bool { return IsErrorType(err, ErrorTypeProtected) }
