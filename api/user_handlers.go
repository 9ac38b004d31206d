package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-identity"
)

type deleteAccountRequest struct {
	Password string `json:"password"`
}

type creditsResponse struct {
	Credits   int                      `json:"credits"`
	Previous  int                      `json:"previous"`
	Operation identity.CreditOperation `json:"operation"`
	Token     string                   `json:"token"`
	Identity  *identity.Identity       `json:"user"`
}

func (s *Server) getProfile(c *fiber.Ctx) error {
	return s.me(c)
}

func (s *Server) updateProfile(c *fiber.Ctx) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}

	var msg identity.ProfileUpdateMessage
	if err := parseBody(c, &msg); err != nil {
		return err
	}

	record, err := s.services.Accounts.UpdateProfile(c.UserContext(), p.IdentityID, msg)
	if err != nil {
		return err
	}

	return c.JSON(record)
}

func (s *Server) updateEmail(c *fiber.Ctx) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}

	var msg identity.EmailUpdateMessage
	if err := parseBody(c, &msg); err != nil {
		return err
	}

	res, err := s.services.Accounts.UpdateEmail(c.UserContext(), p.IdentityID, msg)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"token": res.Token, "user": res.Identity})
}

func (s *Server) updatePassword(c *fiber.Ctx) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}

	var msg identity.PasswordUpdateMessage
	if err := parseBody(c, &msg); err != nil {
		return err
	}

	if err := s.services.Accounts.UpdatePassword(c.UserContext(), p.IdentityID, msg); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"message": "password updated"})
}

func (s *Server) deleteAccount(c *fiber.Ctx) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}

	var req deleteAccountRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if err := s.services.Accounts.DeleteAccount(c.UserContext(), p.IdentityID, req.Password); err != nil {
		return err
	}

	if s.sessions != nil && p.SessionID != "" {
		if err := s.sessions.Delete(c.UserContext(), p.SessionID); err != nil {
			s.logger.Warn("failed to drop session for deleted identity %s: %v", p.IdentityID, err)
		}
	}

	return c.JSON(fiber.Map{"message": "account deleted"})
}

func (s *Server) updateCredits(c *fiber.Ctx) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}

	var msg identity.CreditMessage
	if err := parseBody(c, &msg); err != nil {
		return err
	}

	receipt, err := s.services.Ledger.ApplyMessage(c.UserContext(), p.IdentityID, msg)
	if err != nil {
		return err
	}

	return c.JSON(creditsResponse{
		Credits:   receipt.Current,
		Previous:  receipt.Previous,
		Operation: receipt.Operation,
		Token:     receipt.Token,
		Identity:  receipt.Identity,
	})
}
