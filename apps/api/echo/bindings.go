package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/account"
)

type (
	RegisterRequest struct {
		account.Credentials
		Department string `json:"department"`
	}

	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token   string           `json:"token"`
		Account *account.Account `json:"account,omitempty"`
	}
)

func (lr *LoginRequest) Validate() error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return core.Validate.Struct(lr)
}

// bind decodes the request into data, reporting malformed bodies as validation errors.
func bind(ctx echo.Context, data interface{}, name string) error {
	if err := ctx.Bind(data); err != nil {
		if herr, ok := err.(*echo.HTTPError); ok {
			return core.NewValidationError(errors.Errorf("invalid %s: %v", name, herr.Message))
		}
		return errors.Wrapf(err, "binding to %s", name)
	}
	return nil
}
