package v1

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/mnuddindev/koishi/internal/auth"
	"github.com/mnuddindev/koishi/internal/models/user"
	"github.com/mnuddindev/koishi/pkg/notify"
	"github.com/mnuddindev/koishi/pkg/utils"
)

func smtpConfig() notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:      Cfg.SMTPHost,
		Port:      Cfg.SMTPPort,
		Username:  Cfg.SMTPUsername,
		Password:  Cfg.SMTPPassword,
		FromEmail: Cfg.FromEmail,
		AppURL:    Cfg.WebURL,
	}
}

// Register creates a pending account and mails its verification code.
func Register(c *fiber.Ctx) error {
	type RegisterInput struct {
		Name            string `json:"name" validate:"required,min=2,max=30"`
		Email           string `json:"email" validate:"required,email,max=100"`
		Password        string `json:"password" validate:"required,min=6,eqfield=ConfirmPassword"`
		ConfirmPassword string `json:"confirm_password" validate:"required,min=6"`
	}
	in := new(RegisterInput)
	if err := utils.StrictBodyParser(c, in); err != nil {
		Logger.Warn(c.UserContext()).WithFields("error", err.Error()).Logs("Failed to parse register body")
		return utils.SendError(c, utils.NewError(utils.ErrBadRequest.Code, "Invalid request format"))
	}
	if err := Validator.Validate(in); err != nil {
		return utils.Error(c, utils.NewError(utils.ErrBadRequest.Code, "Validation failed")).WithData(err).Send()
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	u, err := user.NewUser(c.UserContext(), Redis, DB, in.Name, in.Email, in.Password)
	if err != nil {
		Logger.Warn(c.UserContext()).WithFields("email", in.Email).Logs(fmt.Sprintf("Registration failed: %v", err))
		return utils.SendError(c, err)
	}

	go func(email, name, code string) {
		notify.SendVerificationEmail(context.Background(), smtpConfig(), email, name, code, Logger)
	}(u.Email, u.Name, u.VerificationCode)

	return utils.Success(c).
		WithStatus(fiber.StatusCreated).
		WithMessage("Account created, check your email for the verification code").
		WithData(u).
		Send()
}

// Activate verifies a pending account against its emailed code.
func Activate(c *fiber.Ctx) error {
	type ActivateInput struct {
		Email string `json:"email" validate:"required,email"`
		Code  string `json:"code" validate:"required"`
	}
	in := new(ActivateInput)
	if err := utils.StrictBodyParser(c, in); err != nil {
		return utils.SendError(c, utils.NewError(utils.ErrBadRequest.Code, "Invalid request format"))
	}
	if err := Validator.Validate(in); err != nil {
		return utils.Error(c, utils.NewError(utils.ErrBadRequest.Code, "Validation failed")).WithData(err).Send()
	}

	u, err := user.ActivateUser(c.UserContext(), Redis, DB, strings.ToLower(strings.TrimSpace(in.Email)), in.Code)
	if err != nil {
		return utils.SendError(c, err)
	}

	return utils.Success(c).WithMessage("Account verified").WithData(u).Send()
}

// Login checks credentials and returns a session token.
func Login(c *fiber.Ctx) error {
	type LoginInput struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	in := new(LoginInput)
	if err := utils.StrictBodyParser(c, in); err != nil {
		return utils.SendError(c, utils.NewError(utils.ErrBadRequest.Code, "Invalid request format"))
	}
	if err := Validator.Validate(in); err != nil {
		return utils.Error(c, utils.NewError(utils.ErrBadRequest.Code, "Validation failed")).WithData(err).Send()
	}

	u, err := user.GetUserBy(c.UserContext(), Redis, DB, "email", strings.ToLower(strings.TrimSpace(in.Email)))
	if err != nil || utils.ComparePasswords(u.Password, in.Password) != nil {
		// Same answer whether the email or the password was wrong
		return utils.SendError(c, utils.NewError(utils.ErrUnauthorized.Code, "Invalid email or password"))
	}
	if u.Status != user.StatusVerified {
		return utils.SendError(c, utils.NewError(utils.ErrForbidden.Code, "Account not verified"))
	}

	token, err := auth.GenerateToken(u.ID, u.Email, u.IsAdmin)
	if err != nil {
		Logger.Error(c.UserContext()).WithFields("email", u.Email).Logs(fmt.Sprintf("Failed to issue session token: %v", err))
		return utils.SendError(c, err)
	}

	return utils.Success(c).WithData(fiber.Map{"token": token, "user": u}).Send()
}
