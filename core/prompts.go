package core

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"pkt.systems/browserx/schema"
)

const (
	systemAssistant = "You are a concise assistant embedded in a web browser. Answer in plain text without markdown headings."
	systemTranslate = "You are a professional translator. Reply with the translation only, no comments or quotes."
	systemLinkScan  = "You summarize web pages for a link preview tooltip."
	systemCompose   = "You complete the user's text. Reply with the continuation only, never repeat the input."
	systemOrganize  = "You group browser tabs by topic. Reply with JSON only."
	systemSearch    = "You locate answers inside web page text. Quote the page exactly."

	autocompleteTailRunes = 2000
	smartSearchPageRunes  = 30000
	notesContextRunes     = 20000

	// notFoundMarker is the reply the search prompt asks for when nothing matches.
	notFoundMarker = "NOT_FOUND"
)

var autocompleteStop = []string{"\n", ".", "!", "?"}

var codeHint = regexp.MustCompile(`(?m)(^\s*(func|def|class|import|package|const|let|var|public|private|#include)\b|[{};]\s*$|=>|:=)`)

func looksLikeCode(text string) bool {
	return codeHint.MatchString(text)
}

func codeExplainRequest(models schema.ModelSet, msg schema.PageMessage) schema.CompletionRequest {
	prompt := msg.Prompt
	if prompt == "" {
		prompt = "Explain briefly what this code does, the main functions it uses, and any bugs or improvements.\n\n```\n" + msg.Text + "\n```"
	}
	return schema.CompletionRequest{
		System:      systemAssistant,
		Prompt:      prompt,
		Model:       models.Large,
		Temperature: 0.5,
		MaxTokens:   500,
	}
}

func assistantRequest(models schema.ModelSet, msg schema.PageMessage) schema.CompletionRequest {
	if looksLikeCode(msg.Text) {
		return schema.CompletionRequest{
			System:      systemAssistant,
			Prompt:      "Explain this code briefly:\n\n```\n" + msg.Text + "\n```",
			Model:       models.Large,
			Temperature: 0.5,
			MaxTokens:   500,
		}
	}
	return schema.CompletionRequest{
		System:      systemAssistant,
		Prompt:      "Explain this briefly and simply:\n\n" + msg.Text,
		Model:       models.Fast,
		Temperature: 0.5,
		MaxTokens:   200,
	}
}

func translateRequest(models schema.ModelSet, msg schema.PageMessage, fallback schema.LanguageCode) schema.CompletionRequest {
	lang := msg.TargetLanguage
	if lang == "" {
		lang = fallback
	}
	return schema.CompletionRequest{
		System:      systemTranslate,
		Prompt:      fmt.Sprintf("Translate the following text to %s:\n\n%s", schema.LanguageName(lang), msg.Text),
		Model:       models.Large,
		Temperature: 0.3,
		MaxTokens:   1000,
	}
}

func linkScanRequest(models schema.ModelSet, preview schema.PagePreview) schema.CompletionRequest {
	var b strings.Builder
	b.WriteString("Summarize what this page is about in 10-15 words.\n\n")
	if preview.Title != "" {
		b.WriteString("Title: ")
		b.WriteString(preview.Title)
		b.WriteString("\n")
	}
	b.WriteString("URL: ")
	b.WriteString(preview.URL)
	b.WriteString("\n\n")
	b.WriteString(preview.Text)
	return schema.CompletionRequest{
		System:      systemLinkScan,
		Prompt:      b.String(),
		Model:       models.Large,
		Temperature: 0.3,
		MaxTokens:   100,
	}
}

func autocompleteRequest(models schema.ModelSet, msg schema.PageMessage) schema.CompletionRequest {
	text := tail(msg.Text, autocompleteTailRunes)
	prompt := "Complete this search query or sentence with the next few words:\n\n" + text
	if msg.Mode == schema.AutocompleteCompose {
		prompt = "Continue this text with the next 3-6 words:\n\n" + text
	}
	return schema.CompletionRequest{
		System:      systemCompose,
		Prompt:      prompt,
		Model:       models.Complete,
		Temperature: 0.1,
		MaxTokens:   15,
		Stop:        autocompleteStop,
	}
}

func organizeRequest(models schema.ModelSet, tabs []schema.TabSnapshot) schema.CompletionRequest {
	var b strings.Builder
	b.WriteString("Group these browser tabs into a few named topics. ")
	b.WriteString(`Reply as {"groups":[{"name":"Topic","tabIds":[1,2]}]} and use every id at most once.`)
	b.WriteString("\n\n")
	for _, tab := range tabs {
		fmt.Fprintf(&b, "%d: %s - %s\n", tab.ID, tab.Title, tab.URL)
	}
	return schema.CompletionRequest{
		System:      systemOrganize,
		Prompt:      b.String(),
		Model:       models.Large,
		Temperature: 0.5,
		MaxTokens:   1000,
	}
}

func smartSearchRequest(models schema.ModelSet, query, page string) schema.CompletionRequest {
	var b strings.Builder
	b.WriteString("Find the ONE sentence or short phrase (at most 15 words) in the page text below that best answers the question. ")
	b.WriteString("Return it exactly as written in the text, with nothing else. If nothing answers it, reply " + notFoundMarker + ".\n\n")
	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\n\nPage text:\n")
	b.WriteString(head(page, smartSearchPageRunes))
	return schema.CompletionRequest{
		System:      systemSearch,
		Prompt:      b.String(),
		Model:       models.Large,
		Temperature: 0.3,
		MaxTokens:   100,
	}
}

func askRequest(models schema.ModelSet, prompt string, notes []schema.Note) schema.CompletionRequest {
	if len(notes) > 0 {
		var b strings.Builder
		b.WriteString(prompt)
		b.WriteString("\n\nMy notes:\n")
		for _, note := range notes {
			b.WriteString("- ")
			b.WriteString(strings.TrimSpace(note.Text))
			if note.URL != "" {
				b.WriteString(" (")
				b.WriteString(note.URL)
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
		prompt = head(b.String(), notesContextRunes)
	}
	return schema.CompletionRequest{
		System:      systemAssistant,
		Prompt:      prompt,
		Model:       models.Large,
		Temperature: 0.7,
		MaxTokens:   2048,
	}
}

// cleanSuggestion trims the echo of the input some models prepend.
func cleanSuggestion(input, suggestion string) string {
	suggestion = strings.Trim(suggestion, "\"' \t\r\n")
	trimmedInput := strings.TrimSpace(input)
	if trimmedInput != "" && len(suggestion) >= len(trimmedInput) && strings.EqualFold(suggestion[:len(trimmedInput)], trimmedInput) {
		suggestion = strings.TrimSpace(suggestion[len(trimmedInput):])
	}
	return suggestion
}

func tail(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[len(runes)-limit:])
}

func head(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}
