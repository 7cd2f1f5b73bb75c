package whatsapp

import (
	"encoding/json"
	"fmt"
)

// ObjectWhatsAppBusinessAccount is the object type of every WhatsApp webhook
const ObjectWhatsAppBusinessAccount = "whatsapp_business_account"

// Payload is an inbound webhook delivery. Messages and statuses are kept raw
// and handed to downstream handlers untouched.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes of one business account
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is one webhook change record
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value is the body of a change
type Value struct {
	MessagingProduct string          `json:"messaging_product,omitempty"`
	Metadata         *Metadata       `json:"metadata,omitempty"`
	Contacts         json.RawMessage `json:"contacts,omitempty"`
	Messages         json.RawMessage `json:"messages,omitempty"`
	Statuses         json.RawMessage `json:"statuses,omitempty"`
	Errors           json.RawMessage `json:"errors,omitempty"`
}

// Metadata identifies the business phone number that received the event
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number,omitempty"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// ParsePayload decodes a webhook body. Shape checks are left to the router.
func ParsePayload(body []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("invalid webhook json: %w", err)
	}
	return &p, nil
}

// PhoneNumberID returns the phone-number-id of the first change, if any
func (p *Payload) PhoneNumberID() string {
	if p == nil || len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return ""
	}
	md := p.Entry[0].Changes[0].Value.Metadata
	if md == nil {
		return ""
	}
	return md.PhoneNumberID
}
