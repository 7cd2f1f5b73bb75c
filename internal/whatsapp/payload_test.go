package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "waba-1",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "15550100", "phone_number_id": "phone-123"},
					"messages": [{"from": "15550199", "id": "wamid.1", "type": "text", "text": {"body": "hi"}}]
				}
			}]
		}]
	}`)

	p, err := ParsePayload(body)
	require.NoError(t, err)
	assert.Equal(t, ObjectWhatsAppBusinessAccount, p.Object)
	assert.Equal(t, "phone-123", p.PhoneNumberID())
	assert.JSONEq(t, `[{"from":"15550199","id":"wamid.1","type":"text","text":{"body":"hi"}}]`, string(p.Entry[0].Changes[0].Value.Messages))
}

func TestPayload_PhoneNumberIDMissing(t *testing.T) {
	cases := map[string]*Payload{
		"nil":         nil,
		"no entries":  {Object: ObjectWhatsAppBusinessAccount},
		"no changes":  {Entry: []Entry{{ID: "e"}}},
		"no metadata": {Entry: []Entry{{Changes: []Change{{Field: "messages"}}}}},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, p.PhoneNumberID())
		})
	}
}

func TestParsePayload_InvalidJSON(t *testing.T) {
	_, err := ParsePayload([]byte(`{"object":`))
	assert.Error(t, err)
}
