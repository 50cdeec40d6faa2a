//go:build !windows

package imagex

import "errors"

// LoadProcessModule is only available on Windows; elsewhere images are
// loaded from disk with Open.
func LoadProcessModule(path string) (*Image, error) {
	return nil, errors.New("in-process module loading is only supported on windows")
}
