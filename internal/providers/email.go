package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"

	"rule-engine-service/internal/config"
	"rule-engine-service/internal/models"
)

type emailConfig struct {
	Email string `json:"email"`
}

// EmailRecipient extracts the destination address from a contact point.
func EmailRecipient(cp models.ContactPoint) string {
	var eCfg emailConfig
	if err := json.Unmarshal(cp.Configuration, &eCfg); err != nil {
		return ""
	}
	return eCfg.Email
}

// SendEmail delivers an alert notification over SMTP.
func SendEmail(ctx context.Context, cp models.ContactPoint, subject, body string, cfg config.Config) error {
	var eCfg emailConfig
	if err := json.Unmarshal(cp.Configuration, &eCfg); err != nil {
		return fmt.Errorf("failed to parse email configuration for contact point %s: %w", cp.ID, err)
	}
	if eCfg.Email == "" || !strings.Contains(eCfg.Email, "@") {
		return fmt.Errorf("invalid email address in configuration for contact point %s", cp.ID)
	}

	if cfg.Email.SMTPServer == "" || cfg.Email.SMTPPort == 0 || cfg.Email.Username == "" || cfg.Email.Password == "" {
		return fmt.Errorf("missing email configuration: SMTPServer, SMTPPort, Username, or Password is empty")
	}

	message := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		cfg.Email.FromName, eCfg.Email, subject, body)

	auth := smtp.PlainAuth("", cfg.Email.Username, cfg.Email.Password, cfg.Email.SMTPServer)
	addr := fmt.Sprintf("%s:%d", cfg.Email.SMTPServer, cfg.Email.SMTPPort)

	if err := smtp.SendMail(addr, auth, cfg.Email.Username, []string{eCfg.Email}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", eCfg.Email, err)
	}
	return nil
}
