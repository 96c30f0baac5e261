package secrets

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrMount         = errors.New("mount error")
	ErrDecryption    = errors.New("decryption error")
	ErrFilesystem    = errors.New("filesystem error")
	ErrOwnership     = errors.New("ownership resolution error")
)

// InstallError ties a failure to the secret being installed.
type InstallError struct {
	Secret string
	Err    error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("secret %v: %v", e.Secret, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// FailedSecret returns the name of the secret err was raised for, if any.
func FailedSecret(err error) string {
	var ie *InstallError
	if errors.As(err, &ie) {
		return ie.Secret
	}
	return ""
}
