package schema

// RequestKind discriminates page requests handled by the bridge.
type RequestKind string

const (
	// RequestCodeExplain asks for an explanation of a code block.
	RequestCodeExplain RequestKind = "code-explain"
	// RequestLinkScan asks for a short preview of a linked page.
	RequestLinkScan RequestKind = "link-scan"
	// RequestTranslate asks for a translation of selected text.
	RequestTranslate RequestKind = "translate"
	// RequestAssistant asks for an explanation of selected text.
	RequestAssistant RequestKind = "ai-assistant"
	// RequestAutocomplete asks for the continuation of a text field.
	RequestAutocomplete RequestKind = "autocomplete"
)

// Console tags emitted by injected page scripts.
const (
	TagCodeRequest         = "AI_CODE_REQUEST"
	TagXRayRequest         = "XRAY_REQUEST"
	TagAssistantRequest    = "AI_ASSISTANT_REQUEST"
	TagTranslateRequest    = "TRANSLATE_REQUEST"
	TagAutocompleteRequest = "AUTOCOMPLETE_REQUEST"
	// TagContextMenu is reserved for the selection script; surfaces turn it into a context-menu event.
	TagContextMenu = "__SURFACE_CONTEXT_MENU__"
)

// AutocompleteMode selects the completion flavour of a text field.
type AutocompleteMode string

const (
	// AutocompletePredict completes short inputs such as search boxes.
	AutocompletePredict AutocompleteMode = "predict"
	// AutocompleteCompose completes longer prose in text areas.
	AutocompleteCompose AutocompleteMode = "compose"
)

// PageMessage is a parsed console request from a page script.
type PageMessage struct {
	Kind           RequestKind      `json:"kind"`
	Prompt         string           `json:"prompt,omitempty"`
	URL            string           `json:"url,omitempty"`
	Text           string           `json:"text,omitempty"`
	TargetLanguage LanguageCode     `json:"targetLanguage,omitempty"`
	FieldID        string           `json:"fieldId,omitempty"`
	Mode           AutocompleteMode `json:"mode,omitempty"`
}

// HostMessageType discriminates structured messages posted into a page.
type HostMessageType string

const (
	MsgAssistantResult        HostMessageType = "AI_ASSISTANT_RESULT"
	MsgTranslationResult      HostMessageType = "TRANSLATION_RESULT"
	MsgCodeExplanationResult  HostMessageType = "CODE_EXPLANATION_RESULT"
	MsgXRayResult             HostMessageType = "XRAY_RESULT"
	MsgAutocompleteResult     HostMessageType = "AUTOCOMPLETE_RESULT"
	MsgError                  HostMessageType = "AI_ERROR"
	MsgSetTranslationLanguage HostMessageType = "SET_TRANSLATION_LANGUAGE"
)

// HostMessage is posted into the page with window.postMessage.
type HostMessage struct {
	Type         HostMessageType `json:"type"`
	RequestID    RequestID       `json:"requestId,omitempty"`
	Answer       string          `json:"answer,omitempty"`
	Translation  string          `json:"translation,omitempty"`
	Explanation  string          `json:"explanation,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	URL          string          `json:"url,omitempty"`
	Suggestion   string          `json:"suggestion,omitempty"`
	Input        string          `json:"input,omitempty"`
	FieldID      string          `json:"fieldId,omitempty"`
	OriginalText string          `json:"originalText,omitempty"`
	Language     LanguageCode    `json:"language,omitempty"`
	Kind         RequestKind     `json:"kind,omitempty"`
	Error        string          `json:"error,omitempty"`
}
