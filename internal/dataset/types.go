package dataset

import "time"

// Role is the dialogue role a turn is rendered with.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContactType is the Telegram chat type of a contact.
type ContactType string

const (
	PersonalChat      ContactType = "personal_chat"
	PrivateGroup      ContactType = "private_group"
	PrivateSupergroup ContactType = "private_supergroup"
	PublicSupergroup  ContactType = "public_supergroup"
	SavedMessages     ContactType = "saved_messages"
	BotChat           ContactType = "bot_chat"
	PrivateChannel    ContactType = "private_channel"
	PublicChannel     ContactType = "public_channel"
)

// IsGroup reports whether the contact is a multi-party chat.
func (t ContactType) IsGroup() bool {
	switch t {
	case PrivateGroup, PrivateSupergroup, PublicSupergroup:
		return true
	}
	return false
}

// IsDialogue reports whether chats of this type can produce training conversations.
// Channels, bots and saved messages are not dialogues.
func (t ContactType) IsDialogue() bool {
	return t == PersonalChat || t.IsGroup()
}

// Contact identifies the chat a message stream belongs to.
type Contact struct {
	ID   int64
	Name string
	Type ContactType
}

// RawMessage is a message record as supplied by an export reader, before normalization.
type RawMessage struct {
	ID         int64
	Kind       string // "message" or "service"
	SenderID   string
	SenderName string
	Timestamp  time.Time
	Text       string
	MediaType  string
}

// Message is a normalized, included message.
type Message struct {
	SenderID   string
	SenderName string
	Timestamp  time.Time
	Text       string
}

// Turn is one or more consecutive same-sender messages merged under the turn window.
type Turn struct {
	SenderID   string
	SenderName string
	Role       Role // set by role assignment
	Start      time.Time
	End        time.Time // timestamp of the last merged message
	Text       string
	Messages   int
}

// Conversation is a maximal run of turns with no gap reaching the conversation gap.
type Conversation struct {
	Contact Contact
	Turns   []Turn
}

// Start returns the first turn's timestamp, or the zero time for an empty conversation.
func (c Conversation) Start() time.Time {
	if len(c.Turns) == 0 {
		return time.Time{}
	}
	return c.Turns[0].Start
}

// End returns the last turn's end timestamp.
func (c Conversation) End() time.Time {
	if len(c.Turns) == 0 {
		return time.Time{}
	}
	return c.Turns[len(c.Turns)-1].End
}

// Entry is a single role-tagged message of a serialized record.
type Entry struct {
	Role    Role   `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// Record is the serialized form of one kept conversation.
type Record struct {
	Messages []Entry `json:"messages"`
}
