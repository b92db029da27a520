package lib

import "errors"

var (
	ErrFolderNotFound = errors.New("folder not found")
	ErrEmailNotFound  = errors.New("email not found")
	ErrNotOpen        = errors.New("folder not open")
	ErrAlreadyOpen    = errors.New("folder already open")
	ErrStopped        = errors.New("queue stopped")
)
