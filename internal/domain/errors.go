package domain

import "errors"

var (
	ErrNotAnImage      = errors.New("candidate is not an acceptable image")
	ErrBadImage        = errors.New("image data could not be decoded")
	ErrLayoutChanged   = errors.New("page layout changed: no image matched")
	ErrPoolDirectory   = errors.New("image pool directory is not usable")
	ErrPersistence     = errors.New("composite persistence failed")
	ErrNoImage         = errors.New("no image available")
	ErrShutdown        = errors.New("component has been shut down")
	ErrHistoryDisabled = errors.New("image history is disabled")
)
