package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxMessageLength is the largest chat message accepted, in characters.
const MaxMessageLength = 4000

// ValidateMessageContent validates a chat message.
func ValidateMessageContent(content string) error {
	if !utf8.ValidString(content) {
		return errors.New("message must be valid UTF-8")
	}
	if strings.TrimSpace(content) == "" {
		return errors.New("message is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return errors.New("message exceeds maximum length")
	}
	return nil
}

// CanonicalConversationID parses id in any form uuid.Parse accepts and
// returns the lowercase hyphenated form ids are stored in.
func CanonicalConversationID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", errors.New("invalid conversation ID format")
	}
	return parsed.String(), nil
}

// ValidateLanguage accepts an empty preference or a short language tag.
func ValidateLanguage(lang string) error {
	if len(lang) > 16 {
		return errors.New("preferred_language is too long")
	}
	return nil
}
