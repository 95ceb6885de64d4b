package invalidation

import (
	"errors"

	"github.com/goccy/go-json"
	"github.com/goevery/realtimesync/internal/ierr"
)

const (
	TypeCustomerUpdated           = "customer_updated"
	TypeCustomerCreated           = "customer_created"
	TypeTransactionCompleted      = "transaction_completed"
	TypeVerificationStatusChanged = "verification_status_changed"
)

// InboundMessage is one update frame pushed by the server.
type InboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	SubjectId string          `json:"subjectId,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

func ParseMessage(payload []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return InboundMessage{}, ierr.New(ierr.ErrorCodeInvalidArgument, err)
	}

	if msg.Type == "" {
		return InboundMessage{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("message type is missing"))
	}

	return msg, nil
}
