package core

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"pkt.systems/browserx/schema"
)

// Payload caps applied before anything reaches the backend.
const (
	maxCodeRunes = 12000
	maxTextRunes = 5000
)

var requestTags = []struct {
	tag  string
	kind schema.RequestKind
}{
	{schema.TagCodeRequest, schema.RequestCodeExplain},
	{schema.TagXRayRequest, schema.RequestLinkScan},
	{schema.TagAssistantRequest, schema.RequestAssistant},
	{schema.TagTranslateRequest, schema.RequestTranslate},
	{schema.TagAutocompleteRequest, schema.RequestAutocomplete},
}

type codePayload struct {
	Code   string `json:"code"`
	Prompt string `json:"prompt"`
}

type textPayload struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"targetLanguage"`
}

type autocompletePayload struct {
	Text    string `json:"text"`
	FieldID string `json:"fieldId"`
	Mode    string `json:"mode"`
}

// ParsePageMessage parses a tagged console line. Lines without a known tag return
// schema.ErrNotTagged; malformed payloads return *schema.ParseError.
func ParsePageMessage(line string) (schema.PageMessage, error) {
	for _, entry := range requestTags {
		payload, ok := strings.CutPrefix(line, entry.tag+":")
		if !ok {
			continue
		}
		msg, err := parsePayload(entry.kind, strings.TrimSpace(payload))
		if err != nil {
			return schema.PageMessage{}, &schema.ParseError{Tag: entry.tag, Err: err}
		}
		return msg, nil
	}
	return schema.PageMessage{}, schema.ErrNotTagged
}

func parsePayload(kind schema.RequestKind, payload string) (schema.PageMessage, error) {
	msg := schema.PageMessage{Kind: kind}
	switch kind {
	case schema.RequestLinkScan:
		if payload == "" {
			return msg, errors.New("missing url")
		}
		msg.URL = payload
	case schema.RequestCodeExplain:
		var p codePayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return msg, err
		}
		msg.Text = clip(strings.TrimSpace(p.Code), maxCodeRunes)
		msg.Prompt = clip(strings.TrimSpace(p.Prompt), maxCodeRunes+1000)
		if msg.Text == "" && msg.Prompt == "" {
			return msg, errors.New("missing code")
		}
	case schema.RequestAssistant, schema.RequestTranslate:
		var p textPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return msg, err
		}
		msg.Text = clip(strings.TrimSpace(p.Text), maxTextRunes)
		if msg.Text == "" {
			return msg, errors.New("missing text")
		}
		if kind == schema.RequestTranslate && strings.TrimSpace(p.TargetLanguage) != "" {
			lang, err := schema.NormalizeLanguage(p.TargetLanguage)
			if err != nil {
				return msg, err
			}
			msg.TargetLanguage = lang
		}
	case schema.RequestAutocomplete:
		var p autocompletePayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return msg, err
		}
		if strings.TrimSpace(p.FieldID) == "" {
			return msg, errors.New("missing field id")
		}
		switch schema.AutocompleteMode(p.Mode) {
		case "", schema.AutocompletePredict:
			msg.Mode = schema.AutocompletePredict
		case schema.AutocompleteCompose:
			msg.Mode = schema.AutocompleteCompose
		default:
			return msg, errors.New("unknown autocomplete mode")
		}
		msg.Text = p.Text
		msg.FieldID = p.FieldID
	}
	return msg, nil
}

func clip(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}
