package uniqueness

import (
	"context"
	"errors"

	"github.com/irfndi/gatekeeper/internal/authority"
)

// errUnconfirmed is returned when the authority answered without success,
// so the answer cannot be trusted either way.
var errUnconfirmed = errors.New("authority did not confirm the lookup")

// Directory answers whether a value is already held by someone.
type Directory interface {
	Exists(ctx context.Context, value string) (bool, error)
}

// DirectoryFunc adapts a function to Directory.
type DirectoryFunc func(ctx context.Context, value string) (bool, error)

func (f DirectoryFunc) Exists(ctx context.Context, value string) (bool, error) {
	return f(ctx, value)
}

func UsernameLookup(d authority.UsernameDirectory) Directory {
	return DirectoryFunc(func(ctx context.Context, value string) (bool, error) {
		res, err := d.CheckUsernameExists(ctx, value)
		if err != nil {
			return false, err
		}
		if !res.Success {
			return false, errUnconfirmed
		}
		return res.Taken(), nil
	})
}

func PhoneLookup(d authority.PhoneDirectory) Directory {
	return DirectoryFunc(func(ctx context.Context, value string) (bool, error) {
		res, err := d.CheckPhoneExists(ctx, value)
		if err != nil {
			return false, err
		}
		if !res.Success {
			return false, errUnconfirmed
		}
		return res.Exists, nil
	})
}
