package registry

import "errors"

// Error kinds. Each is caller-recoverable and leaves state untouched.
var (
	ErrUnauthorized    = errors.New("registry: caller is not authorized")
	ErrNotFound        = errors.New("registry: market not found")
	ErrAlreadyResolved = errors.New("registry: market already resolved")
	ErrNotResolved     = errors.New("registry: market not resolved")
	ErrInvalidOutcome  = errors.New("registry: outcome must be YES or NO")
	ErrInvalidChoice   = errors.New("registry: choice must be YES or NO")
	ErrInvalidAmount   = errors.New("registry: amount must be a positive integer within range")
	ErrInvalidQuestion = errors.New("registry: question must be non-empty and at most 1024 bytes")
	ErrAlreadyClaimed  = errors.New("registry: reward already claimed")
	ErrNothingToClaim  = errors.New("registry: nothing to claim")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrUnauthorized, "Unauthorized"},
	{ErrNotFound, "NotFound"},
	{ErrAlreadyResolved, "AlreadyResolved"},
	{ErrNotResolved, "NotResolved"},
	{ErrInvalidOutcome, "InvalidOutcome"},
	{ErrInvalidChoice, "InvalidChoice"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInvalidQuestion, "InvalidQuestion"},
	{ErrAlreadyClaimed, "AlreadyClaimed"},
	{ErrNothingToClaim, "NothingToClaim"},
}

// Kind returns the stable name of err's kind, "Internal" for errors that
// are not one of the registry kinds, and "" for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}
