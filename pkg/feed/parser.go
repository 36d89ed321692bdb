package feed

import (
	"encoding/json"
	"fmt"
)

// wsTableMessage is any message of the realtime API: a table action, a subscription
// acknowledgment or an error status.
type wsTableMessage struct {
	Table  string   `json:"table"`
	Action string   `json:"action"`
	Keys   []string `json:"keys"`
	Data   []row    `json:"data"`

	Subscribe string `json:"subscribe"`
	Success   *bool  `json:"success"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Info      string `json:"info"`
}

func parseTableMessage(e []byte) (wsTableMessage, error) {
	var msg wsTableMessage
	if err := json.Unmarshal(e, &msg); err != nil {
		return wsTableMessage{}, fmt.Errorf("fail to parse stream message: %w", err)
	}
	if msg.Success != nil && !*msg.Success {
		return msg, fmt.Errorf("unable to subscribe to %s: %s", msg.Subscribe, msg.Error)
	}
	if msg.Status >= 400 {
		return msg, fmt.Errorf("stream error %d: %s", msg.Status, msg.Error)
	}
	return msg, nil
}
