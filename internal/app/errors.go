package app

import "errors"

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("resource not found")
	ErrQuotaExceeded = errors.New("knowledge base document quota exceeded")
	ErrUpstream      = errors.New("upstream capability failed")
	ErrMessageEmpty  = errors.New("message content is empty")
)
