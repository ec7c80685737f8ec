package uniqueness

import (
	"github.com/irfndi/gatekeeper/internal/authority"
	"github.com/irfndi/gatekeeper/internal/cache"
)

// Form owns the checkers of one sign-up or profile screen. Each form has its
// own caches so that forms never observe each other's state.
type Form struct {
	Username *Checker
	Phone    *Checker
}

func NewForm(usernames authority.UsernameDirectory, phones authority.PhoneDirectory, opts ...Option) *Form {
	return &Form{
		Username: NewChecker(FieldUsername, UsernameLookup(usernames), opts...),
		Phone:    NewChecker(FieldPhone, PhoneLookup(phones), opts...),
	}
}

// Field returns the checker for name.
func (f *Form) Field(name Field) (*Checker, bool) {
	switch name {
	case FieldUsername:
		return f.Username, true
	case FieldPhone:
		return f.Phone, true
	default:
		return nil, false
	}
}

// CacheStats sums the cache counters of both fields.
func (f *Form) CacheStats() cache.Stats {
	return f.Username.CacheStats().Add(f.Phone.CacheStats())
}

// Close tears down every checker in the form.
func (f *Form) Close() {
	f.Username.Close()
	f.Phone.Close()
}
