package conversation

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ConversationID identifies a conversation. The format is opaque to this
// subsystem; ids coming from the capture layer are accepted as-is.
type ConversationID string

func NewConversationID() ConversationID {
	return ConversationID(uuid.NewString())
}

func (id ConversationID) String() string {
	return string(id)
}

func (id ConversationID) IsZero() bool {
	return id == ""
}

// MessageID identifies a message within a conversation.
type MessageID string

func NewMessageID() MessageID {
	return MessageID(uuid.NewString())
}

func (id MessageID) String() string {
	return string(id)
}

func (id MessageID) IsZero() bool {
	return id == ""
}

// LinkID identifies a conversation link. It lives here rather than in the
// links package because ContextConfig records link ids.
type LinkID string

func NewLinkID() LinkID {
	return LinkID(uuid.NewString())
}

func (id LinkID) String() string {
	return string(id)
}

func (id LinkID) IsZero() bool {
	return id == ""
}

var _ json.Marshaler = ConversationID("")

func (id ConversationID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

func (id *ConversationID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = ConversationID(s)
	return nil
}
