package api

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// UID identifies a message within one address. The backend sends it either as
// a JSON number or a string.
type UID string

func (u *UID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = UID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*u = UID(n.String())
	return nil
}

func (u UID) String() string { return string(u) }

// Envelope is the summary of one received message.
type Envelope struct {
	UID            UID    `json:"uid"`
	Sender         string `json:"sender"`
	Subject        string `json:"subject"`
	Date           string `json:"date"`
	HasAttachments bool   `json:"has_attachments"`
}

// Time parses Date, returning the zero time when no known layout matches.
func (e Envelope) Time() time.Time { return ParseDate(e.Date) }

// Content is the full body of one message, fetched on demand.
type Content struct {
	Subject         string `json:"subject"`
	Sender          string `json:"sender"`
	Recipient       string `json:"recipient"`
	Date            string `json:"date"`
	HTMLContent     string `json:"html_content,omitempty"`
	TextContent     string `json:"text_content,omitempty"`
	HasAttachments  bool   `json:"has_attachments"`
	AttachmentCount int    `json:"attachment_count"`
}

func (c Content) Time() time.Time { return ParseDate(c.Date) }

// Attachment describes one file attached to a message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// AttachmentList decodes either a bare array or {"attachments": [...]}.
type AttachmentList []Attachment

func (l *AttachmentList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []Attachment
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var wrapped struct {
		Attachments []Attachment `json:"attachments"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*l = wrapped.Attachments
	return nil
}

// GeneratedAddress is the backend's answer to an address generation request.
// Fields other than the address are kept verbatim in Extra.
type GeneratedAddress struct {
	Email string
	Extra map[string]json.RawMessage
}

func (g *GeneratedAddress) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["email"]; ok {
		if err := json.Unmarshal(raw, &g.Email); err != nil {
			return err
		}
		delete(fields, "email")
	}
	g.Extra = fields
	return nil
}

type domainsResponse struct {
	Domains []string `json:"domains"`
}

type envelopesResponse struct {
	Envelopes []Envelope `json:"envelopes"`
}

type generateRequest struct {
	Username string `json:"username,omitempty"`
	Domain   string `json:"domain"`
}

// errorBody is the shape of backend error payloads.
type errorBody struct {
	Msg     string `json:"msg"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (b errorBody) text() string {
	switch {
	case b.Msg != "":
		return b.Msg
	case b.Message != "":
		return b.Message
	default:
		return b.Error
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"2006-01-02 15:04:05",
}

// ParseDate parses the date formats mail backends commonly emit. A trailing
// "(MST)" style comment is stripped before the last attempts.
func ParseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	noComment := value
	if open := strings.LastIndex(noComment, " ("); open != -1 {
		if closing := strings.LastIndex(noComment, ")"); closing > open {
			noComment = strings.TrimSpace(noComment[:open] + noComment[closing+1:])
		}
	}
	if noComment != value {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, noComment); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
