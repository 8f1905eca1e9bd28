package monitor

import (
	"fmt"
	"net/smtp"
)

// EmailAlerter delivers state-change notifications over SMTP with
// plain auth.
type EmailAlerter struct {
	Host     string
	Port     string
	From     string
	To       string
	Password string
}

func (a *EmailAlerter) Alert(subject, body string) error {
	auth := smtp.PlainAuth("", a.From, a.Password, a.Host)
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s", a.To, subject, body))
	if err := smtp.SendMail(a.Host+":"+a.Port, auth, a.From, []string{a.To}, msg); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}
