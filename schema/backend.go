package schema

// CompletionRequest is one chat completion call against the LLM backend.
type CompletionRequest struct {
	System      string
	Prompt      string
	Model       ModelID
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// PagePreview is the readable content of a fetched link target.
type PagePreview struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// PreviewTextLimit caps the text handed to the summarizer.
const PreviewTextLimit = 2000
