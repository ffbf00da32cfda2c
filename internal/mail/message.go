package mail

import (
	"encoding/base64"
	"strings"
)

// Message is the plain-text payload of one send. Templating and multipart
// bodies are out of scope; the body goes out as-is.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Build renders the RFC-5322 byte string the provider expects in its raw
// field. Lines are joined with \n, headers first, then a blank line and the
// body.
func Build(m Message) string {
	lines := []string{
		"From: " + m.From,
		"To: " + m.To,
		"Subject: " + m.Subject,
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="UTF-8"`,
		"",
		m.Body,
	}
	return strings.Join(lines, "\n")
}

// EncodeRaw base64url-encodes a built message without padding, which is the
// exact alphabet the provider's raw field requires.
func EncodeRaw(msg string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(msg))
}

// DecodeRaw is the inverse of EncodeRaw.
func DecodeRaw(raw string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
