package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-identity"
)

const principalKey = "identity.principal"

type authMode int

const (
	modeBearer authMode = iota
	modeAny
	modeOptional
)

func (s *Server) bearer() fiber.Handler        { return s.protect(modeBearer) }
func (s *Server) authenticated() fiber.Handler { return s.protect(modeAny) }
func (s *Server) optional() fiber.Handler      { return s.protect(modeOptional) }

// protect resolves the request principal. Bearer mode only consults the
// Authorization header; the other modes run the full session then bearer
// chain.
func (s *Server) protect(mode authMode) fiber.Handler {
	return func(c *fiber.Ctx) error {
		creds := identity.RequestCredentials{
			SessionID:     c.Cookies(s.sessionCookie),
			Authorization: c.Get(fiber.HeaderAuthorization),
		}

		var res identity.Resolution
		if mode == modeBearer {
			res = s.services.Authenticator.ResolveOnly(c.UserContext(), identity.SourceBearer, creds)
		} else {
			res = s.services.Authenticator.Resolve(c.UserContext(), creds)
		}

		if !res.OK() {
			if mode == modeOptional {
				return c.Next()
			}
			return identity.ErrUnauthenticated
		}

		c.Locals(principalKey, res.Principal)
		c.SetUserContext(identity.WithPrincipal(c.UserContext(), res.Principal))
		return c.Next()
	}
}

// PrincipalFrom returns the principal resolved for the request, or nil
func PrincipalFrom(c *fiber.Ctx) *identity.Principal {
	p, _ := c.Locals(principalKey).(*identity.Principal)
	return p
}

func mustPrincipal(c *fiber.Ctx) (*identity.Principal, error) {
	p := PrincipalFrom(c)
	if p == nil {
		return nil, identity.ErrUnauthenticated
	}
	return p, nil
}
