package handlers

import (
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/relmon/pkg/api/errors"
	"github.com/opst/relmon/pkg/callback"
	"github.com/opst/relmon/pkg/domain"
)

// headers set by the SSO proxy in front of the service.
const (
	HeaderLogin    = "Adfs-Login"
	HeaderFullname = "Adfs-Fullname"
	HeaderEmail    = "Adfs-Email"
	HeaderGroup    = "Adfs-Group"
)

// User is who sends the request.
type User struct {
	domain.UserInfo

	// lower-cased group names
	Groups []string
}

// UserOf reads the user from request headers.
func UserOf(req *http.Request) User {
	groups := []string{}
	for _, g := range strings.Split(req.Header.Get(HeaderGroup), ";") {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" {
			continue
		}
		groups = append(groups, g)
	}
	return User{
		UserInfo: domain.UserInfo{
			Login:    req.Header.Get(HeaderLogin),
			Fullname: req.Header.Get(HeaderFullname),
			Email:    req.Header.Get(HeaderEmail),
		},
		Groups: groups,
	}
}

// In reports whether the user is a member of the group. Case insensitive.
func (u User) In(group string) bool {
	return slices.Contains(u.Groups, strings.ToLower(strings.TrimSpace(group)))
}

// RequireGroup rejects requests from users out of the group with 403.
func RequireGroup(group string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !UserOf(c.Request()).In(group) {
				return apierr.Forbidden("only members of " + group + " can do this")
			}
			return next(c)
		}
	}
}

// RequireCallbackAuth accepts requests from service accounts, or with a valid bearer token.
//
// verifier can be nil. Then, only service accounts are accepted.
func RequireCallbackAuth(serviceAccounts []string, verifier *callback.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if login := req.Header.Get(HeaderLogin); login != "" && slices.Contains(serviceAccounts, login) {
				return next(c)
			}

			authz := req.Header.Get(echo.HeaderAuthorization)
			if verifier == nil || authz == "" {
				return apierr.Forbidden("callback is accepted only from service accounts")
			}
			token, err := callback.BearerToken(authz)
			if err != nil {
				return apierr.Unauthorized("send a bearer token", err)
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				return apierr.Unauthorized("token is not acceptable", err)
			}
			c.Logger().Debugf("callback from %s", claims.Subject)
			return next(c)
		}
	}
}

type userResponse struct {
	Login          string `json:"login"`
	Fullname       string `json:"fullname"`
	Email          string `json:"email"`
	AuthorizedUser bool   `json:"authorized_user"`
}

// UserHandler responds who the requester is, and whether it can change RelMons.
func UserHandler(adminGroup string) echo.HandlerFunc {
	return func(c echo.Context) error {
		u := UserOf(c.Request())
		return c.JSON(http.StatusOK, userResponse{
			Login:          u.Login,
			Fullname:       u.Fullname,
			Email:          u.Email,
			AuthorizedUser: u.In(adminGroup),
		})
	}
}
