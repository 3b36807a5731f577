package gateway

import "encoding/json"

// Event names carried in Frame.Event.
const (
	EventRegister       = "register"
	EventSendMessage    = "sendMessage"
	EventReceiveMessage = "receiveMessage"
	EventError          = "error"
)

// Frame is one JSON text message on the socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RegisterData is the payload of EventRegister.
type RegisterData struct {
	Username string `json:"username"`
}

// ErrorData is the payload of an inbound EventError.
type ErrorData struct {
	Message string `json:"message"`
}

func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}
