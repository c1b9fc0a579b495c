// Package clientmail builds the mail payload pushed to browser clients.
package clientmail

import (
	"encoding/json"
	"time"

	"github.io/infrasutra/shortmail/internal/mimeparse"
	"github.io/infrasutra/shortmail/internal/store"
)

// Same shape as JavaScript's Date.toISOString.
const dateLayout = "2006-01-02T15:04:05.000Z07:00"

type ClientMail struct {
	Subject  string `json:"subject"`
	Text     string `json:"text"`
	Date     string `json:"date"`
	From     string `json:"from"`
	TextHTML string `json:"texthtml"`
	HTML     string `json:"html"`
}

// FromRecord projects a stored record. When the record has no HTML body the
// text rendered as HTML stands in for it.
func FromRecord(m store.Mail) ClientMail {
	textHTML := mimeparse.TextToHTML(m.Text)
	html := m.HTML
	if html == "" {
		html = textHTML
	}
	return ClientMail{
		Subject:  m.Subject,
		Text:     m.Text,
		Date:     time.Unix(m.CreatedAt, 0).UTC().Format(dateLayout),
		From:     m.Sender,
		TextHTML: textHTML,
		HTML:     html,
	}
}

// Payload marshals the projection for a "mail" event.
func Payload(m store.Mail) json.RawMessage {
	data, _ := json.Marshal(FromRecord(m))
	return data
}
