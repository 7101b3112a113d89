package profiles

import "fmt"

// indicates that a requested profile doesn't exist on the portal
type UnknownProfileError struct {
	Name string
}

func (e UnknownProfileError) Error() string {
	return fmt.Sprintf("The portal has no profile matching %q.", e.Name)
}
