package core

import (
	"context"

	"pkt.systems/browserx/schema"
)

// Service is the transport-agnostic API of the browser shell: tabs, geometry, and shell-level AI features.
type Service interface {
	CreateTab(ctx context.Context, req schema.CreateTabRequest) (schema.CreateTabResponse, error)
	CloseTab(ctx context.Context, req schema.CloseTabRequest) (schema.CloseTabResponse, error)
	SwitchTab(ctx context.Context, req schema.SwitchTabRequest) (schema.SwitchTabResponse, error)
	ListTabs(ctx context.Context, req schema.ListTabsRequest) (schema.ListTabsResponse, error)
	Navigate(ctx context.Context, req schema.NavigateRequest) (schema.NavigateResponse, error)
	MoveHistory(ctx context.Context, req schema.HistoryMoveRequest) (schema.HistoryMoveResponse, error)

	SetPanel(ctx context.Context, req schema.SetPanelRequest) (schema.LayoutResponse, error)
	ResizeWindow(ctx context.Context, req schema.ResizeWindowRequest) (schema.LayoutResponse, error)

	OrganizeTabs(ctx context.Context, req schema.OrganizeTabsRequest) (schema.OrganizeTabsResponse, error)
	// SmartSearch finds and selects the passage of a tab's text that answers a question.
	SmartSearch(ctx context.Context, req schema.SmartSearchRequest) (schema.SmartSearchResponse, error)
	AskAssistant(ctx context.Context, req schema.AskAssistantRequest) (schema.AskAssistantResponse, error)
	SetTranslationLanguage(ctx context.Context, req schema.SetTranslationLanguageRequest) (schema.SetTranslationLanguageResponse, error)
	SaveSession(ctx context.Context, req schema.SaveSessionRequest) (schema.SaveSessionResponse, error)
	RestoreSession(ctx context.Context, req schema.RestoreSessionRequest) (schema.RestoreSessionResponse, error)

	// Close destroys every surface and stops background work.
	Close(ctx context.Context) error
}
