package httpapi

import (
	"context"
	"sync"

	"pkt.systems/browserx/schema"
)

// fakeService keeps an in-memory tab list and records layout and language calls.
type fakeService struct {
	mu        sync.Mutex
	tabs      []schema.TabSnapshot
	active    schema.TabID
	nextID    schema.TabID
	panels    []schema.SetPanelRequest
	languages []schema.LanguageCode
	moves     []schema.HistoryMoveRequest
	searches  []schema.SmartSearchRequest
}

func newFakeService() *fakeService {
	return &fakeService{}
}

func (f *fakeService) CreateTab(_ context.Context, req schema.CreateTabRequest) (schema.CreateTabResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	tab := schema.TabSnapshot{ID: f.nextID, URL: req.URL, Status: schema.TabStatusLoading}
	f.tabs = append(f.tabs, tab)
	if f.active == 0 || req.Activate {
		f.active = tab.ID
	}
	tab.Active = tab.ID == f.active
	return schema.CreateTabResponse{Tab: tab, ActiveTab: f.active}, nil
}

func (f *fakeService) CloseTab(_ context.Context, req schema.CloseTabRequest) (schema.CloseTabResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, tab := range f.tabs {
		if tab.ID == req.TabID {
			f.tabs = append(f.tabs[:i], f.tabs[i+1:]...)
			tab.Status = schema.TabStatusClosed
			return schema.CloseTabResponse{Tab: tab, ActiveTab: f.active}, nil
		}
	}
	return schema.CloseTabResponse{}, schema.ErrTabNotFound
}

func (f *fakeService) SwitchTab(_ context.Context, req schema.SwitchTabRequest) (schema.SwitchTabResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tab := range f.tabs {
		if tab.ID == req.TabID {
			f.active = tab.ID
			tab.Active = true
			return schema.SwitchTabResponse{Tab: tab}, nil
		}
	}
	return schema.SwitchTabResponse{}, schema.ErrTabNotFound
}

func (f *fakeService) ListTabs(context.Context, schema.ListTabsRequest) (schema.ListTabsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tabs := make([]schema.TabSnapshot, len(f.tabs))
	copy(tabs, f.tabs)
	for i := range tabs {
		tabs[i].Active = tabs[i].ID == f.active
	}
	return schema.ListTabsResponse{Tabs: tabs, ActiveTab: f.active}, nil
}

func (f *fakeService) Navigate(_ context.Context, req schema.NavigateRequest) (schema.NavigateResponse, error) {
	if req.Input == "" {
		return schema.NavigateResponse{}, schema.ErrEmptyInput
	}
	return schema.NavigateResponse{URL: req.Input}, nil
}

func (f *fakeService) MoveHistory(_ context.Context, req schema.HistoryMoveRequest) (schema.HistoryMoveResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, req)
	return schema.HistoryMoveResponse{}, nil
}

func (f *fakeService) SetPanel(_ context.Context, req schema.SetPanelRequest) (schema.LayoutResponse, error) {
	switch req.Panel {
	case schema.PanelSidebar, schema.PanelMenu, schema.PanelSettings:
	default:
		return schema.LayoutResponse{}, schema.ErrInvalidPanel
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panels = append(f.panels, req)
	return schema.LayoutResponse{}, nil
}

func (f *fakeService) ResizeWindow(_ context.Context, req schema.ResizeWindowRequest) (schema.LayoutResponse, error) {
	if req.Size.Width < 0 || req.Size.Height < 0 {
		return schema.LayoutResponse{}, schema.ErrInvalidSize
	}
	return schema.LayoutResponse{Window: req.Size}, nil
}

func (f *fakeService) OrganizeTabs(context.Context, schema.OrganizeTabsRequest) (schema.OrganizeTabsResponse, error) {
	return schema.OrganizeTabsResponse{}, schema.ErrBackendUnavailable
}

func (f *fakeService) SmartSearch(_ context.Context, req schema.SmartSearchRequest) (schema.SmartSearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Query == "" {
		return schema.SmartSearchResponse{}, schema.ErrEmptyInput
	}
	f.searches = append(f.searches, req)
	id := req.TabID
	if id == 0 {
		id = f.active
	}
	return schema.SmartSearchResponse{TabID: id, Found: true, Quote: "quoted " + req.Query, Highlighted: true}, nil
}

func (f *fakeService) AskAssistant(_ context.Context, req schema.AskAssistantRequest) (schema.AskAssistantResponse, error) {
	if req.IncludeNotes {
		return schema.AskAssistantResponse{}, schema.ErrStoreUnavailable
	}
	return schema.AskAssistantResponse{Answer: "echo: " + req.Prompt}, nil
}

func (f *fakeService) SetTranslationLanguage(_ context.Context, req schema.SetTranslationLanguageRequest) (schema.SetTranslationLanguageResponse, error) {
	lang, err := schema.NormalizeLanguage(string(req.Language))
	if err != nil {
		return schema.SetTranslationLanguageResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.languages = append(f.languages, lang)
	return schema.SetTranslationLanguageResponse{Language: lang, Tabs: len(f.tabs)}, nil
}

func (f *fakeService) SaveSession(context.Context, schema.SaveSessionRequest) (schema.SaveSessionResponse, error) {
	return schema.SaveSessionResponse{}, schema.ErrStoreUnavailable
}

func (f *fakeService) RestoreSession(context.Context, schema.RestoreSessionRequest) (schema.RestoreSessionResponse, error) {
	return schema.RestoreSessionResponse{}, schema.ErrStoreUnavailable
}

func (f *fakeService) Close(context.Context) error { return nil }
