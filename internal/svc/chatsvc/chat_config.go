package chatsvc

import "github.com/mkrupp/ircsvc/internal/domain"

// ChatConfig contains configuration parameters for the chat service.
type ChatConfig struct {
	// MaxLineLength bounds a request line in bytes, excluding the terminator
	MaxLineLength int `env:"MAX_LINE_LENGTH" default:"1024"`

	// MessageLogCapacity is the number of messages each room retains
	MessageLogCapacity int `env:"MESSAGE_LOG_CAPACITY" default:"100"`
}

func (c ChatConfig) sanitize() ChatConfig {
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = 1024
	}

	if c.MessageLogCapacity <= 0 {
		c.MessageLogCapacity = domain.DefaultMessageLogCapacity
	}

	return c
}
