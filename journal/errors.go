package journal

import (
	"fmt"

	"github.com/google/uuid"
)

// indicates that the journal hasn't been opened with Init
type NotOpenError struct {
}

func (e NotOpenError) Error() string {
	return "The submission journal is not open."
}

// indicates that the journal's database couldn't be opened
type CantOpenError struct {
	Message string
}

func (e CantOpenError) Error() string {
	return fmt.Sprintf("The submission journal couldn't be opened: %s", e.Message)
}

// indicates that the journal's database couldn't be closed
type CantCloseError struct {
	Message string
}

func (e CantCloseError) Error() string {
	return fmt.Sprintf("The submission journal couldn't be closed: %s", e.Message)
}

// indicates trouble writing a new journal record
type NewRecordError struct {
	Id      uuid.UUID
	Message string
}

func (e NewRecordError) Error() string {
	return fmt.Sprintf("Couldn't journal submission %s: %s", e.Id.String(), e.Message)
}

// indicates a stored journal record that couldn't be read back
type InvalidRecordError struct {
	Id      uuid.UUID
	Message string
}

func (e InvalidRecordError) Error() string {
	return fmt.Sprintf("Invalid journal record %s: %s", e.Id.String(), e.Message)
}
