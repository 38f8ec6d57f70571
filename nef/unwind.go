package nef

import (
	"github.com/hashicorp/go-multierror"
)

// unwinder records release functions for resources acquired while opening
// a file. On failure they run newest first.
type unwinder struct {
	releases []func() error
}

func (u *unwinder) push(release func() error) {
	u.releases = append(u.releases, release)
}

// unwind releases everything and returns cause, with any release failures
// appended.
func (u *unwinder) unwind(cause error) error {
	var result *multierror.Error
	for i := len(u.releases) - 1; i >= 0; i-- {
		if err := u.releases[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	u.releases = nil
	if result == nil {
		return cause
	}
	return multierror.Append(cause, result.Errors...)
}

// commit hands ownership of every recorded resource to the caller.
func (u *unwinder) commit() {
	u.releases = nil
}
