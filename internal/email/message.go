package email

import (
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// parsedMessage is the distilled view of one alert email: decoded headers
// plus every inline text part flattened into a single plain-text body.
type parsedMessage struct {
	Sender  string
	Subject string
	Date    time.Time
	Body    string
}

// parseMessage decodes a raw RFC 822 message. Attachments are skipped;
// HTML parts are converted to text so the regex extraction sees the same
// content regardless of which variant the bank sent.
func parseMessage(r io.Reader) (parsedMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return parsedMessage{}, err
	}
	defer mr.Close()

	var pm parsedMessage
	if addrs, err := mr.Header.AddressList("From"); err == nil {
		names := make([]string, 0, len(addrs))
		for _, a := range addrs {
			names = append(names, a.String())
		}
		pm.Sender = strings.Join(names, ", ")
	} else {
		pm.Sender = mr.Header.Get("From")
	}
	pm.Subject, _ = mr.Header.Subject()
	pm.Date, _ = mr.Header.Date()

	var parts []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep whatever text was already collected; bank emails often
			// have one broken part among several good ones.
			break
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ctype, _, err := h.ContentType()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(part.Body)
		if err != nil || len(data) == 0 {
			continue
		}
		switch ctype {
		case "text/html":
			parts = append(parts, htmlToText(string(data)))
		case "text/plain":
			parts = append(parts, string(data))
		}
	}
	pm.Body = strings.Join(parts, "\n")
	return pm, nil
}
