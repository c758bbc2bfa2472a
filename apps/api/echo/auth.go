package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/access"
	"github.com/trezcool/minimoodle/core/account"
)

const (
	contextTokenKey   = "accountToken"
	contextAccountKey = "account"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64       `json:"oriat,omitempty"`
	Username     string      `json:"username,omitempty"`
	Email        string      `json:"email,omitempty"`
	Role         access.Role `json:"role,omitempty"` // -> STUDENT | INSTRUCTOR | MODERATOR PORTAL
}

type tokenAuth struct {
	issuer            string
	expiration        time.Duration
	refreshExpiration time.Duration
	config            middleware.JWTConfig
}

func newTokenAuth(conf *core.Config) *tokenAuth {
	return &tokenAuth{
		issuer:            conf.AppName,
		expiration:        conf.Server.JWTExpirationDelta,
		refreshExpiration: conf.Server.JWTRefreshExpirationDelta,
		config: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
	}
}

// accountClaims builds the claims of acc. Tokens live on the wall clock, whatever the engine clock says.
func (ta *tokenAuth) accountClaims(acc account.Account, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    ta.issuer,
			Subject:   acc.ID,
			ExpiresAt: now.Add(ta.expiration).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     acc.Username,
		Email:        acc.Email,
		Role:         acc.Role(),
	}
}

// generateToken generates a signed JWT token string representing the account Claims.
func (ta *tokenAuth) generateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(ta.config.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(ta.config.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextAccount returns the account loaded by accountMiddleware.
func getContextAccount(ctx echo.Context) (account.Account, error) {
	if acc, ok := ctx.Get(contextAccountKey).(account.Account); ok {
		return acc, nil
	}
	return account.Account{}, errUnauthorized
}

// contextActor is the actor of the authenticated request. The zero Actor is denied everything.
func contextActor(ctx echo.Context) access.Actor {
	acc, _ := getContextAccount(ctx)
	return acc.Actor()
}

// accountMiddleware loads the account behind the token on every request,
// so that approvals and revocations apply immediately.
func (s *server) accountMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			acc, err := s.deps.AccountSvc.GetByID(ctx.Request().Context(), claims.Subject)
			if err != nil {
				if core.IsNotFound(err) {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding account by ID")
			}
			ctx.Set(contextAccountKey, acc)
			return next(ctx)
		}
	}
}

func (s *server) refreshToken(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}
	acc, err := getContextAccount(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context account")
	}

	// check if account is still approved
	if !acc.IsApproved() {
		return "", &account.PendingApprovalError{AccountID: acc.ID, Revoked: acc.State() == account.StateRevoked}
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(s.auth.refreshExpiration)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := s.auth.generateToken(s.auth.accountClaims(acc, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}
