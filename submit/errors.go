package submit

import (
	"fmt"
	"strings"
)

// the panic message used when Update is handed a payload without the
// reserved id key, which is a programming error rather than a runtime
// condition
const MissingIdKey = "submit: the payload carries no _enc_id key"

// indicates a payload with no identifier to look a record up by
type RecordIDNotPresentError struct {
}

func (e RecordIDNotPresentError) Error() string {
	return "The payload carries no identifier (no _enc_id, aliases, or md5sum)."
}

// indicates that none of a record's identifiers found it on the portal
type RecordNotFoundError struct {
	Ids []string
}

func (e RecordNotFoundError) Error() string {
	return fmt.Sprintf("No record was found under any of: %s.", strings.Join(e.Ids, ", "))
}

// indicates a payload that names no profile under the _profile key
type ProfileNotSpecifiedError struct {
}

func (e ProfileNotSpecifiedError) Error() string {
	return "The payload names no profile under the _profile key."
}

// indicates a new record of an alias-bearing profile submitted without any
// aliases to trace it by
type MissingAliasError struct {
	Profile string
}

func (e MissingAliasError) Error() string {
	return fmt.Sprintf("New %s records need at least one alias.", e.Profile)
}
