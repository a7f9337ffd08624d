package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	ResultID  ID
	AttemptID ID
	RecordID  ID
)

func (id ResultID) String() string  { return ID(id).String() }
func (id AttemptID) String() string { return ID(id).String() }
func (id RecordID) String() string  { return ID(id).String() }

// NewResultID creates an identifier for a SuiteResult
func NewResultID() ResultID { return ResultID(NewID()) }

// NewAttemptID creates an identifier for a fit attempt
func NewAttemptID() AttemptID { return AttemptID(NewID()) }

// NewRecordID creates an identifier for a provenance record
func NewRecordID() RecordID { return RecordID(NewID()) }

// ParseRecordID parses a string into RecordID
func ParseRecordID(s string) (RecordID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("record ID cannot be empty")
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("record ID %q is not a UUID: %w", s, err)
	}
	return RecordID(s), nil
}
