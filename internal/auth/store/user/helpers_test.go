package user

import (
	"errors"

	"realreview/pkg/platform/sentinel"
)

func isAlreadyUsed(err error) bool {
	return errors.Is(err, sentinel.ErrAlreadyUsed)
}
