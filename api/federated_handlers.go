package api

import (
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-identity"
)

// Callback failure reasons appended to the frontend login redirect
const (
	ReasonAuthenticationFailed = "authentication_failed"
	ReasonNoUser               = "no_user"
	ReasonSessionError         = "session_error"
)

var errFederationDisabled = fiber.NewError(fiber.StatusNotFound, "federated login is not configured")

func (s *Server) federatedLogin(c *fiber.Ctx) error {
	if s.flow == nil {
		return errFederationDisabled
	}

	redirect, err := s.flow.Begin(c.Query("redirect"))
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     s.stateCookie,
		Value:    redirect.State,
		Path:     "/federated",
		Expires:  s.now().Add(s.flow.StateTTL()),
		HTTPOnly: true,
		Secure:   s.secureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.Redirect(redirect.URL, fiber.StatusFound)
}

func (s *Server) federatedCallback(c *fiber.Ctx) error {
	if s.flow == nil {
		return errFederationDisabled
	}

	ctx := c.UserContext()
	stateToken := c.Query("state")
	s.clearCookie(c, s.stateCookie, "/federated")

	if providerErr := c.Query("error"); providerErr != "" {
		s.logger.Info("federated provider returned error=%s", providerErr)
		return s.loginFailure(c, ReasonAuthenticationFailed)
	}

	if stateToken == "" || c.Cookies(s.stateCookie) != stateToken {
		s.logger.Warn("federated callback state does not match the browser cookie")
		return s.loginFailure(c, ReasonAuthenticationFailed)
	}

	assertion, _, err := s.flow.Complete(ctx, stateToken, c.Query("code"))
	if err != nil {
		return s.loginFailure(c, ReasonAuthenticationFailed)
	}

	result, err := s.services.Reconciler.Reconcile(ctx, *assertion)
	if err != nil || result == nil || result.Identity == nil {
		s.logger.Error("federated reconcile failed: %v", err)
		return s.loginFailure(c, ReasonNoUser)
	}

	sess, err := s.sessions.Start(ctx, result.Identity.ID)
	if err != nil {
		s.logger.Error("federated session start failed: %v", err)
		return s.loginFailure(c, ReasonSessionError)
	}

	c.Cookie(&fiber.Cookie{
		Name:     s.sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HTTPOnly: true,
		Secure:   s.secureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	target := "/dashboard"
	if !result.Identity.ProfileCompleted {
		target = "/complete-profile"
	}

	return c.Redirect(s.frontendURL+target+"?token="+url.QueryEscape(result.Token), fiber.StatusFound)
}

func (s *Server) loginFailure(c *fiber.Ctx, reason string) error {
	return c.Redirect(s.frontendURL+"/login?error="+url.QueryEscape(reason), fiber.StatusFound)
}

func (s *Server) completeProfile(c *fiber.Ctx) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}

	var msg identity.CompleteProfileMessage
	if err := parseBody(c, &msg); err != nil {
		return err
	}

	res, err := s.services.Accounts.CompleteProfile(c.UserContext(), p.IdentityID, msg)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"user": res.Identity, "token": res.Token})
}

func (s *Server) federatedUser(c *fiber.Ctx) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}

	record, err := s.services.Accounts.Me(c.UserContext(), p.IdentityID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"user": record})
}

func (s *Server) federatedStatus(c *fiber.Ctx) error {
	p := PrincipalFrom(c)
	if p == nil {
		return c.JSON(fiber.Map{"is_authenticated": false, "user": nil})
	}

	record, err := s.services.Accounts.Me(c.UserContext(), p.IdentityID)
	if identity.IsNotFound(err) {
		return c.JSON(fiber.Map{"is_authenticated": false, "user": nil})
	}
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"is_authenticated": true, "user": record})
}

func (s *Server) federatedLogout(c *fiber.Ctx) error {
	if id := c.Cookies(s.sessionCookie); id != "" && s.sessions != nil {
		if err := s.sessions.Delete(c.UserContext(), id); err != nil {
			return err
		}
	}
	s.clearCookie(c, s.sessionCookie, "/")
	return c.JSON(fiber.Map{"message": "logged out"})
}

func (s *Server) clearCookie(c *fiber.Ctx, name, path string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   s.secureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
