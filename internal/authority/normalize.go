package authority

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/irfndi/gatekeeper/internal/models"
)

// ErrMissingAnswer is returned when a lookup claims success but the answer
// field is absent or unreadable. Reading it as "not taken" would report a
// registered value as available.
var ErrMissingAnswer = errors.New("lookup response has no usable answer")

// payload is a decoded JSON object with case-insensitive field access. The
// upstream endpoints disagree on casing (Success/success, Message/message),
// so nothing past this file looks at raw keys.
type payload map[string]json.RawMessage

func decodePayload(body []byte) (payload, error) {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	p := make(payload, len(raw))
	for k, v := range raw {
		p[strings.ToLower(k)] = v
	}
	return p, nil
}

func (p payload) field(name string) (json.RawMessage, bool) {
	v, ok := p[strings.ToLower(name)]
	if !ok || string(v) == "null" {
		return nil, false
	}
	return v, true
}

// bool accepts JSON booleans as well as "true"/"false" strings and 0/1.
func (p payload) bool(name string) bool {
	b, _ := p.boolean(name)
	return b
}

// boolean is bool that also reports whether the field held a readable value.
func (p payload) boolean(name string) (bool, bool) {
	v, ok := p.field(name)
	if !ok {
		return false, false
	}
	var b bool
	if json.Unmarshal(v, &b) == nil {
		return b, true
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return false, false
	}
	var n float64
	if json.Unmarshal(v, &n) == nil {
		return n != 0, true
	}
	return false, false
}

// present reports whether name was sent at all, null included.
func (p payload) present(name string) bool {
	_, ok := p[strings.ToLower(name)]
	return ok
}

func (p payload) string(name string) string {
	v, ok := p.field(name)
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		return s
	}
	return ""
}

func (p payload) object(name string) (payload, bool) {
	v, ok := p.field(name)
	if !ok {
		return nil, false
	}
	nested, err := decodePayload(v)
	if err != nil {
		return nil, false
	}
	return nested, true
}

func normalizeAck(body []byte) (models.Ack, error) {
	p, err := decodePayload(body)
	if err != nil {
		return models.Ack{}, err
	}
	msg := p.string("message")
	if msg == "" {
		msg = p.string("error")
	}
	return models.Ack{Success: p.bool("success"), Message: msg}, nil
}

// AckMessage returns the message the authority attached to ack, or fallback
// when there is none. Some endpoints send the bare word "error" instead of a
// message; that is treated as no message.
func AckMessage(ack models.Ack, fallback string) string {
	msg := strings.TrimSpace(ack.Message)
	if msg == "" || strings.EqualFold(msg, "error") {
		return fallback
	}
	return msg
}

// normalizePhoneExists reads "exists" at the top level or under "data". An
// unconfirmed answer is returned as is; a confirmed one without a readable
// "exists" is an error.
func normalizePhoneExists(body []byte) (models.PhoneExists, error) {
	p, err := decodePayload(body)
	if err != nil {
		return models.PhoneExists{}, err
	}
	out := models.PhoneExists{Success: p.bool("success")}
	if !out.Success {
		return out, nil
	}

	exists, ok := p.boolean("exists")
	if !ok {
		if data, found := p.object("data"); found {
			exists, ok = data.boolean("exists")
		}
	}
	if !ok {
		return models.PhoneExists{}, fmt.Errorf("phone lookup: %w", ErrMissingAnswer)
	}
	out.Exists = exists
	return out, nil
}

// normalizeUsernameMatches accepts matches as a list under "matches" or
// "data", where each element is either a string or an object carrying a
// username/id. An explicit null is an empty list.
func normalizeUsernameMatches(body []byte) (models.UsernameMatches, error) {
	p, err := decodePayload(body)
	if err != nil {
		return models.UsernameMatches{}, err
	}

	out := models.UsernameMatches{Success: p.bool("success"), Matches: []string{}}
	if !out.Success {
		return out, nil
	}

	key := "matches"
	if !p.present(key) {
		key = "data"
	}
	if !p.present(key) {
		return models.UsernameMatches{}, fmt.Errorf("username lookup: %w", ErrMissingAnswer)
	}
	raw, ok := p.field(key)
	if !ok {
		return out, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return models.UsernameMatches{}, fmt.Errorf("username lookup: %s is not a list: %w", key, ErrMissingAnswer)
	}
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			out.Matches = append(out.Matches, s)
			continue
		}
		obj, err := decodePayload(item)
		if err != nil {
			return models.UsernameMatches{}, fmt.Errorf("username lookup: unreadable match %s: %w", item, ErrMissingAnswer)
		}
		name := obj.string("username")
		if name == "" {
			name = obj.string("id")
		}
		out.Matches = append(out.Matches, name)
	}
	return out, nil
}
