package upload

import "fmt"

// indicates a file record with no data location, explicit or recorded
type NoSourceError struct {
	FileId string
}

func (e NoSourceError) Error() string {
	return fmt.Sprintf("The file record %s names no data to upload.", e.FileId)
}

// indicates a failed upload command, with its captured output for triage
type FileUploadFailedError struct {
	Command        string
	ExitCode       int
	Stdout, Stderr string
	Cause          error
}

func (e FileUploadFailedError) Error() string {
	return fmt.Sprintf("The upload command %q failed with exit code %d. Stderr: %s",
		e.Command, e.ExitCode, e.Stderr)
}

func (e FileUploadFailedError) Unwrap() error {
	return e.Cause
}
