package app

import "errors"

var (
	ErrUsernameAndPasswordRequired = errors.New("username and password are required")
	ErrUsernameTaken               = errors.New("username already exists")
	ErrInvalidCredentials          = errors.New("invalid credentials")
	ErrNotFound                    = errors.New("not found")
	ErrForbidden                   = errors.New("forbidden")
	ErrInvalidInput                = errors.New("invalid input")
	ErrDocumentNotReady            = errors.New("document is not ready")
	ErrTooManyFiles                = errors.New("too many files in upload")
	ErrNotPDF                      = errors.New("only pdf files are accepted")
	ErrFileTooLarge                = errors.New("file exceeds the size limit")
)
