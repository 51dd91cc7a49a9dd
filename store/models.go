package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/i2y/interpreter/provider"
)

// Conversation is a saved chat session.
type Conversation struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	Title     string
	Model     string
	Messages  []Message `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Conversation) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ShortID is the first eight characters of the ID.
func (c *Conversation) ShortID() string {
	return c.ID.String()[:8]
}

// Message is one history entry. Seq orders messages within a conversation.
type Message struct {
	ID                uuid.UUID `gorm:"type:text;primaryKey"`
	ConversationID    uuid.UUID `gorm:"type:text;index"`
	Seq               int
	Role              string `gorm:"type:text"`
	Content           string
	Name              string
	HasFunctionCall   bool
	FunctionName      string
	FunctionArguments string
	CreatedAt         time.Time
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func fromProvider(m provider.Message) Message {
	msg := Message{
		Role:    string(m.Role),
		Content: m.Content,
		Name:    m.Name,
	}
	if m.FunctionCall != nil {
		msg.HasFunctionCall = true
		msg.FunctionName = m.FunctionCall.Name
		msg.FunctionArguments = m.FunctionCall.Arguments
	}
	return msg
}

// Provider converts m back into a history message.
func (m Message) Provider() provider.Message {
	msg := provider.Message{
		Role:    provider.Role(m.Role),
		Content: m.Content,
		Name:    m.Name,
	}
	if m.HasFunctionCall {
		msg.FunctionCall = &provider.FunctionCall{
			Name:      m.FunctionName,
			Arguments: m.FunctionArguments,
		}
	}
	return msg
}
