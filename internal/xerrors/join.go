// Package xerrors joins multiple teardown/termination failures into one
// error, mirroring the teacher's (unretrieved) internal/xerrors package.
package xerrors

import "errors"

// Join combines zero or more errors into one. A nil is returned if errs is
// empty or every entry is nil.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
