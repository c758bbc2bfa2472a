package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/access"
	"github.com/trezcool/minimoodle/core/account"
	"github.com/trezcool/minimoodle/core/enrollment"
)

var (
	errUnauthorized   = echo.NewHTTPError(http.StatusUnauthorized, "account not authenticated")
	errRefreshExpired = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpNotFound   = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// error codes telling apart the 403 responses
const (
	codePermissionDenied   = "permission_denied"
	codeRoleMismatch       = "role_mismatch"
	codePendingApproval    = "pending_approval"
	codeApprovalRevoked    = "approval_revoked"
	codeEnrollmentInactive = "enrollment_inactive"
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *core.NotFoundError:
			code = http.StatusNotFound
			message = origErr.Error()
		case *access.AuthorizationError:
			code = http.StatusForbidden
			message = echo.Map{"error": "permission denied", "code": codePermissionDenied, "reason": origErr.Reason}
		case *account.RoleMismatchError:
			code = http.StatusForbidden
			message = echo.Map{"error": origErr.Error(), "code": codeRoleMismatch}
		case *account.PendingApprovalError:
			code = http.StatusForbidden
			errCode := codePendingApproval
			if origErr.Revoked {
				errCode = codeApprovalRevoked
			}
			message = echo.Map{"error": origErr.Error(), "code": errCode}
		case *enrollment.InactiveError:
			code = http.StatusForbidden
			message = echo.Map{"error": origErr.Error(), "code": codeEnrollmentInactive, "state": origErr.State}
		default:
			if origErr == account.ErrInvalidCredentials {
				code = http.StatusUnauthorized
				message = origErr.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			args := []interface{}{errors.Wrap(err, msg)}
			if acc, aErr := getContextAccount(ctx); aErr == nil {
				args = append(args, acc)
			}
			logger.Error(msg, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
