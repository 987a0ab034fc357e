//go:build !linux

package affinity

import "errors"

func setAffinity(int) error {
	return errors.ErrUnsupported
}
