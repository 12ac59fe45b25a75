package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mnuddindev/koishi/pkg/logger"
	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the application-level SMTP settings used for account
// emails (as opposed to the per-collection connectors users configure).
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	AppURL    string
}

// SendVerificationEmail sends the account verification email to a newly
// registered user.
func SendVerificationEmail(ctx context.Context, cfg SMTPConfig, email, name, code string, log *logger.Logger) error {
	verifyLink := fmt.Sprintf("%s/verify?email=%s&code=%s", cfg.AppURL, email, code)

	textBody := fmt.Sprintf(`
Hello %s,

Welcome to Koishi! Please verify your account by visiting:

%s

If the link does not work, enter this code on the verification page: %s

If you did not sign up, ignore this email.

The Koishi Team
(c) %d Koishi
`, name, verifyLink, code, time.Now().Year())

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Verify your Koishi account</title>
</head>
<body style="font-family: Calibri, Arial, sans-serif; background-color: whitesmoke; padding: 40px;">
    <div style="text-align: center; background-color: white; border: 1px solid lightgray; border-radius: 6px; padding: 20px;">
        <p style="font-weight: bold; font-size: 36px; color: #0066ff;">Welcome to Koishi</p>
        <p>Hello %s, please confirm your account to start collecting data.</p>
        <p style="font-size: 20px; color: rgb(90, 90, 90);">%s</p>
        <p><a href="%s">Verify your account</a></p>
    </div>
</body>
</html>
`, name, code, verifyLink)

	msg := gomail.NewMessage()
	msg.SetHeader("From", cfg.FromEmail)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", "Verify your Koishi account")
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		log.Warn(ctx).WithMeta(map[string]string{"email": email}).Logs(fmt.Sprintf("Failed to send verification email: %v", err))
		return err
	}

	log.Info(ctx).WithMeta(map[string]string{"email": email}).Logs("Verification email sent")
	return nil
}
