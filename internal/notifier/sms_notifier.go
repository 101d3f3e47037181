package notifier

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	config "github.com/jsmidelov/TomasosTre/configs"
)

type SMSResponse struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			StatusCode int    `json:"statusCode"`
			Number     string `json:"number"`
			Cost       string `json:"cost"`
			Status     string `json:"status"`
			MessageID  string `json:"messageId"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

// SMSNotifier texts order confirmations through Africa's Talking.
type SMSNotifier struct {
	cfg    config.AfricaTalkingConfig
	client *resty.Client
}

func NewSMSNotifier(cfg config.AfricaTalkingConfig) *SMSNotifier {
	return &SMSNotifier{cfg: cfg, client: resty.New()}
}

func (n *SMSNotifier) OrderPlaced(ctx context.Context, receipt Receipt) error {
	if receipt.Phone == "" {
		return nil
	}

	message := fmt.Sprintf("Your order #%d has been placed! Total: SEK %.2f. Thank you for ordering from Tomasos!", receipt.OrderID, receipt.Total)

	var smsResp SMSResponse
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader("apikey", n.cfg.APIKey).
		SetFormData(map[string]string{
			"username": n.cfg.Username,
			"to":       receipt.Phone,
			"message":  message,
			"from":     n.cfg.SenderID,
		}).
		SetResult(&smsResp).
		Post(n.cfg.SMSURL)

	if err != nil {
		return fmt.Errorf("SMS send failed: %w", err)
	}

	if resp.StatusCode() != http.StatusCreated && resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("SMS API returned non-success status: %d", resp.StatusCode())
	}

	return nil
}
