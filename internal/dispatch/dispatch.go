package dispatch

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/example/food-donation/internal/models"
)

// Notifier delivers claim notices to donors.
type Notifier interface {
	Notify(donorID string, notice models.ClaimNotice) error
}

// PushNotifier tries the donor's live websocket first and falls back to a
// best-effort webhook POST when no socket is connected.
type PushNotifier struct {
	WS       *WSRegistry
	Endpoint string
	Client   *http.Client
}

func NewPushNotifier(ws *WSRegistry, endpoint string) *PushNotifier {
	return &PushNotifier{WS: ws, Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (p *PushNotifier) Notify(donorID string, notice models.ClaimNotice) error {
	if p.WS != nil {
		if err := p.WS.Notify(donorID, notice); err == nil {
			return nil
		}
	}
	if p.Endpoint == "" {
		return nil
	}
	b, _ := json.Marshal(map[string]any{"donor_id": donorID, "notice": notice})
	resp, err := p.Client.Post(p.Endpoint, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
