package models

import "errors"

// ErrEventNotFound is shared by every package that looks up incidents.
var ErrEventNotFound = errors.New("alert event not found")
