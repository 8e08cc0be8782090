package core

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"pkt.systems/browserx/internal/logx"
	"pkt.systems/browserx/schema"
)

func (s *service) OrganizeTabs(ctx context.Context, req schema.OrganizeTabsRequest) (schema.OrganizeTabsResponse, error) {
	if ctx == nil {
		return schema.OrganizeTabsResponse{}, errors.New("missing context")
	}
	log := logx.Ctx(ctx)
	tabs, err := s.ListTabs(ctx, schema.ListTabsRequest{})
	if err != nil {
		return schema.OrganizeTabsResponse{}, err
	}
	if len(tabs.Tabs) < 2 {
		return schema.OrganizeTabsResponse{}, schema.ErrNotEnoughTabs
	}
	if s.backend == nil {
		return schema.OrganizeTabsResponse{}, schema.ErrBackendUnavailable
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	defer cancel()
	answer, err := s.backend.Complete(cctx, organizeRequest(s.cfg.Models, tabs.Tabs))
	if err != nil {
		log.Warn("service organize failed", "err", err)
		return schema.OrganizeTabsResponse{}, err
	}
	known := make(map[schema.TabID]bool, len(tabs.Tabs))
	for _, t := range tabs.Tabs {
		known[t.ID] = true
	}
	groups, err := parseGroups(answer, known)
	if err != nil {
		log.Warn("service organize reply rejected", "err", err)
		return schema.OrganizeTabsResponse{}, &schema.BackendError{Reason: schema.BackendBadResponse, Err: err}
	}
	log.Info("service organize ok", "tabs", len(tabs.Tabs), "groups", len(groups))
	return schema.OrganizeTabsResponse{Groups: groups}, nil
}

type groupReply struct {
	Groups []struct {
		Name   string            `json:"name"`
		TabIDs []json.RawMessage `json:"tabIds"`
	} `json:"groups"`
}

// parseGroups decodes the model reply. Ids the shell does not know, duplicates, and
// empty groups are dropped.
func parseGroups(answer string, known map[schema.TabID]bool) ([]schema.TabGroup, error) {
	body := stripCodeFence(answer)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}
	var reply groupReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return nil, &schema.ParseError{Tag: "groups", Err: err}
	}
	seen := make(map[schema.TabID]bool)
	groups := make([]schema.TabGroup, 0, len(reply.Groups))
	for _, g := range reply.Groups {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			continue
		}
		group := schema.TabGroup{Name: name}
		for _, raw := range g.TabIDs {
			id, ok := decodeTabID(raw)
			if !ok || !known[id] || seen[id] {
				continue
			}
			seen[id] = true
			group.TabIDs = append(group.TabIDs, id)
		}
		if len(group.TabIDs) > 0 {
			groups = append(groups, group)
		}
	}
	return groups, nil
}

// decodeTabID accepts ids as JSON numbers or numeric strings.
func decodeTabID(raw json.RawMessage) (schema.TabID, bool) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return schema.TabID(n), n > 0
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(str), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return schema.TabID(n), true
}

func stripCodeFence(value string) string {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "```") {
		return value
	}
	value = strings.TrimPrefix(value, "```")
	if nl := strings.IndexByte(value, '\n'); nl >= 0 {
		value = value[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "```"))
}
