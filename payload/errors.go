package payload

import "fmt"

// indicates an alias with no lab prefix and no configured prefix to add
type MissingPrefixError struct {
	Alias string
}

func (e MissingPrefixError) Error() string {
	return fmt.Sprintf("The alias %q has no lab prefix and no default prefix is configured.", e.Alias)
}

// indicates an attachment whose mime type couldn't be determined
type UnknownMimeTypeError struct {
	Path string
}

func (e UnknownMimeTypeError) Error() string {
	return fmt.Sprintf("Couldn't determine a mime type for the attachment %s.", e.Path)
}

// indicates a record that needs an award but has none (explicit or default)
type AwardPropertyMissingError struct {
	Profile string
}

func (e AwardPropertyMissingError) Error() string {
	return fmt.Sprintf("Records of the %s profile need an award, and none was given or configured.", e.Profile)
}

// indicates a record that needs a lab but has none (explicit or default)
type LabPropertyMissingError struct {
	Profile string
}

func (e LabPropertyMissingError) Error() string {
	return fmt.Sprintf("Records of the %s profile need a lab, and none was given or configured.", e.Profile)
}

// indicates a property whose value takes the wrong shape for its schema
type SchemaError struct {
	Profile, Property string
	Expected, Actual  string
}

func (e SchemaError) Error() string {
	return fmt.Sprintf("The %s property of the %s profile takes %s, but the payload holds %s.",
		e.Property, e.Profile, e.Expected, e.Actual)
}
