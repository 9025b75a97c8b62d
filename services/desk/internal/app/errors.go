package app

import "errors"

var (
	// ErrValidation marks operator input the wizard must correct before
	// retrying. Always wrapped with the field detail.
	ErrValidation = errors.New("validation failed")
	// ErrTemplateNotFound indicates a contract referenced a template id
	// that is not in the store.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrContractNotFound indicates a lookup against an unknown contract id.
	ErrContractNotFound = errors.New("contract not found")
)
