package models

// CallRequest is the payload sent to the calls endpoint to start an outbound call.
type CallRequest struct {
	Phone string `json:"phone"`
}
