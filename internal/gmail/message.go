package gmail

import (
	"encoding/base64"
	"errors"
	"fmt"

	gmail "google.golang.org/api/gmail/v1"
)

// NoSubject is used when a message has no Subject header or an empty one.
const NoSubject = "(No Subject)"

// MIME types picked out of a message's parts.
const (
	MimeTextPlain = "text/plain"
	MimeTextHTML  = "text/html"
)

// MessageRecord is the normalized view of one message sent to the frontend.
type MessageRecord struct {
	Subject   string `json:"subject"`
	From      string `json:"from"`
	Date      string `json:"date"`
	Snippet   string `json:"snippet"`
	TextPlain string `json:"textPlain"`
	TextHTML  string `json:"textHtml"`
}

// Inbox pairs an account with its most recent messages.
type Inbox struct {
	Email    string          `json:"email"`
	Messages []MessageRecord `json:"messages"`
}

// DecodeError reports a body that was left empty because its data was not
// valid base64 in any accepted alphabet.
type DecodeError struct {
	MessageID string
	Part      string // MimeTextPlain, MimeTextHTML or "body"
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("message %s: failed to decode %s: %v", e.MessageID, e.Part, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// HeaderValue returns the value of the first payload header named exactly
// header, or "".
func HeaderValue(m *gmail.Message, header string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if h.Name == header {
			return h.Value
		}
	}
	return ""
}

// Extract builds a MessageRecord from a full-format message.
//
// When the payload has parts, each part is visited once in order and the
// last text/plain and last text/html part with body data win. A part whose
// body data is empty does not count as the last one of its type. Nested
// multiparts are not descended into. Without parts, the payload's own body
// becomes TextPlain and TextHTML stays empty.
//
// The returned record is always usable. A non-nil error joins a *DecodeError
// for every body that failed to decode; those fields are left empty.
func Extract(m *gmail.Message) (MessageRecord, error) {
	if m == nil {
		return MessageRecord{Subject: NoSubject}, nil
	}

	rec := MessageRecord{
		Subject: HeaderValue(m, "Subject"),
		From:    HeaderValue(m, "From"),
		Date:    HeaderValue(m, "Date"),
		Snippet: m.Snippet,
	}
	if rec.Subject == "" {
		rec.Subject = NoSubject
	}

	if m.Payload == nil {
		return rec, nil
	}

	var errs []error
	decodeInto := func(dst *string, part string, body *gmail.MessagePartBody) {
		if body == nil || body.Data == "" {
			return
		}
		text, err := DecodeBody(body.Data)
		if err != nil {
			errs = append(errs, &DecodeError{MessageID: m.Id, Part: part, Err: err})
			*dst = ""
			return
		}
		*dst = text
	}

	if len(m.Payload.Parts) > 0 {
		for _, part := range m.Payload.Parts {
			if part == nil {
				continue
			}
			switch part.MimeType {
			case MimeTextPlain:
				decodeInto(&rec.TextPlain, MimeTextPlain, part.Body)
			case MimeTextHTML:
				decodeInto(&rec.TextHTML, MimeTextHTML, part.Body)
			}
		}
	} else {
		decodeInto(&rec.TextPlain, "body", m.Payload.Body)
	}

	return rec, errors.Join(errs...)
}

// bodyEncodings are tried in order. Gmail sends padded base64url; the other
// alphabets cover unpadded data and bodies re-encoded by intermediaries.
var bodyEncodings = []*base64.Encoding{
	base64.URLEncoding,
	base64.RawURLEncoding,
	base64.StdEncoding,
}

// DecodeBody decodes a message body's data field into text.
func DecodeBody(data string) (string, error) {
	var firstErr error
	for _, enc := range bodyEncodings {
		decoded, err := enc.DecodeString(data)
		if err == nil {
			return string(decoded), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", firstErr
}
