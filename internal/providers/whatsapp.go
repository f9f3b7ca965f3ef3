package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"rule-engine-service/internal/config"
	"rule-engine-service/internal/models"
)

type whatsappConfig struct {
	Phone string `json:"phone"`
}

// WhatsAppRecipient extracts the destination phone number from a contact point.
func WhatsAppRecipient(cp models.ContactPoint) string {
	var wCfg whatsappConfig
	if err := json.Unmarshal(cp.Configuration, &wCfg); err != nil {
		return ""
	}
	return wCfg.Phone
}

// SendWhatsApp delivers an alert notification via the Twilio WhatsApp API.
func SendWhatsApp(ctx context.Context, cp models.ContactPoint, subject, body string, cfg config.Config) error {
	var wCfg whatsappConfig
	if err := json.Unmarshal(cp.Configuration, &wCfg); err != nil {
		return fmt.Errorf("failed to parse WhatsApp configuration for contact point %s: %w", cp.ID, err)
	}
	if !strings.HasPrefix(wCfg.Phone, "+") {
		return fmt.Errorf("invalid phone number in configuration for contact point %s", cp.ID)
	}
	if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" || cfg.Twilio.WhatsAppFrom == "" {
		return fmt.Errorf("missing Twilio configuration: AccountSID, AuthToken, or WhatsAppFrom is empty")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.Twilio.AccountSID,
		Password: cfg.Twilio.AuthToken,
	})

	to := "whatsapp:" + wCfg.Phone
	text := fmt.Sprintf("%s\n%s", subject, body)

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(cfg.Twilio.WhatsAppFrom)
	params.SetBody(text)

	if _, err := client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send WhatsApp message to %s: %w", wCfg.Phone, err)
	}
	return nil
}
