package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// Connector configs carry no port; every connector dials the implicit-TLS
// submission port.
const smtpPort = 465

// SendEmail reports a triggered action rule (or a connector probe) to all
// receivers configured on the collection's email connector.
func (s *Service) SendEmail(ctx context.Context, conn EmailConnector, subject, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>%s</title>
    <style>
        body {
            font-family: Calibri, Arial, sans-serif;
            margin: 0;
            padding: 40px;
            background-color: whitesmoke;
            color: rgb(90, 90, 90);
        }
        .main {
            text-align: center;
            background-color: white;
            border: 1px solid lightgray;
            border-radius: 6px;
            padding: 20px;
        }
        .heading {
            font-weight: bold;
            font-size: 36px;
            color: #0066ff;
            margin: 10px;
        }
        .divider {
            height: 1px;
            width: 100%%;
            background-color: lightgrey;
        }
        .text {
            padding: 30px 60px;
        }
    </style>
</head>
<body>
    <div class="main">
        <p class="heading">Warning</p>
        <div class="divider"></div>
        <p class="text">%s</p>
        <div class="divider"></div>
        <p><a href="%s">Koishi</a></p>
    </div>
</body>
</html>
`, subject, message, s.WebURL)

	msg := gomail.NewMessage()
	msg.SetHeader("From", conn.User)
	msg.SetHeader("To", conn.Receivers...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", message)
	msg.AddAlternative("text/html", htmlBody)

	dialer := gomail.NewDialer(conn.Host, smtpPort, conn.User, conn.Password)
	return dialer.DialAndSend(msg)
}
