package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-identity"
)

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return identity.ValidationError("invalid request body", map[string]any{"body": err.Error()})
	}
	return nil
}

func (s *Server) register(c *fiber.Ctx) error {
	var msg identity.RegisterMessage
	if err := parseBody(c, &msg); err != nil {
		return err
	}

	res, err := s.services.Accounts.Register(c.UserContext(), msg)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"token": res.Token})
}

func (s *Server) login(c *fiber.Ctx) error {
	var msg identity.LoginMessage
	if err := parseBody(c, &msg); err != nil {
		return err
	}

	res, err := s.services.Accounts.Login(c.UserContext(), msg)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"token": res.Token})
}

// logout is stateless for bearer clients; dropping the token is enough.
func (s *Server) logout(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "logged out"})
}

func (s *Server) me(c *fiber.Ctx) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}

	record, err := s.services.Accounts.Me(c.UserContext(), p.IdentityID)
	if err != nil {
		return err
	}

	return c.JSON(record)
}

func (s *Server) profileStatus(c *fiber.Ctx) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}

	status, err := s.services.Accounts.ProfileStatus(c.UserContext(), p.IdentityID)
	if err != nil {
		return err
	}

	return c.JSON(status)
}
