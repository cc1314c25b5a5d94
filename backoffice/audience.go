package backoffice

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Audience rule types.
const (
	RuleCustomerIDs  = "customer_ids"
	RuleAccountIDs   = "account_ids"
	RuleCustomerTags = "customer_tags"
)

// Tag match modes of a customer_tags rule.
const (
	MatchAny = "ANY"
	MatchAll = "ALL"
)

// ID is an identifier sent either as a JSON number or a string.
type ID string

// UnmarshalJSON accepts 123 and "123".
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	*id = ID(b)
	return nil
}

// AudienceRule selects accounts to include in or exclude from an audience.
type AudienceRule struct {
	Type string   `json:"type"`
	IDs  []ID     `json:"ids,omitempty"`
	Tags []string `json:"tags,omitempty"`
	// Operator is ANY (default) or ALL for customer_tags.
	Operator string `json:"operator,omitempty"`
	// Include defaults to true.
	Include *bool `json:"include,omitempty"`
	// Source is accepted and ignored.
	Source string `json:"source,omitempty"`
}

func (r AudienceRule) included() bool {
	return r.Include == nil || *r.Include
}

// AudienceItem is one account of an audience preview.
type AudienceItem struct {
	AccountID string   `json:"account_id"`
	ClientID  *int64   `json:"client_id"`
	Name      *string  `json:"name"`
	Group     *string  `json:"group"`
	RegDate   *string  `json:"reg_date"`
	Balance   *float64 `json:"balance"`
	Equity    *float64 `json:"equity"`
	Tags      []string `json:"tags"`
}

// AudiencePreview is the accounts matched by a rule set.
type AudiencePreview struct {
	Total int            `json:"total"`
	Items []AudienceItem `json:"items"`
}

// ValidateAudienceRules rejects unknown rule types and operators.
func ValidateAudienceRules(rules []AudienceRule) error {
	for i, r := range rules {
		switch r.Type {
		case RuleCustomerIDs, RuleAccountIDs:
		case RuleCustomerTags:
			if op := strings.ToUpper(r.Operator); op != "" && op != MatchAny && op != MatchAll {
				return fmt.Errorf("%w: rule %d: unknown operator %q", ErrInvalidInput, i, r.Operator)
			}
		default:
			return fmt.Errorf("%w: rule %d: unknown type %q", ErrInvalidInput, i, r.Type)
		}
	}
	return nil
}

// AudiencePreview resolves rules into accounts: the union of the included
// rules minus the union of the excluded ones, sorted by account id.
func (s *Service) AudiencePreview(ctx context.Context, rules []AudienceRule) (AudiencePreview, error) {
	if err := ValidateAudienceRules(rules); err != nil {
		return AudiencePreview{}, err
	}

	var include, exclude []string
	for _, r := range rules {
		logins, err := s.loginsOf(ctx, r)
		if err != nil {
			return AudiencePreview{}, err
		}
		if r.included() {
			include = append(include, logins...)
		} else {
			exclude = append(exclude, logins...)
		}
	}
	final := lo.Without(lo.Uniq(include), exclude...)

	items, err := s.audienceItems(ctx, final)
	if err != nil {
		return AudiencePreview{}, err
	}
	return AudiencePreview{Total: len(items), Items: items}, nil
}

func (s *Service) loginsOf(ctx context.Context, r AudienceRule) ([]string, error) {
	switch r.Type {
	case RuleAccountIDs:
		return lo.FilterMap(r.IDs, func(id ID, _ int) (string, bool) {
			v := strings.TrimSpace(string(id))
			return v, v != ""
		}), nil
	case RuleCustomerIDs:
		return s.store.LoginsByClientIDs(ctx, parseClientIDs(r.IDs))
	case RuleCustomerTags:
		tags := lo.Uniq(lo.Compact(lo.Map(r.Tags, func(t string, _ int) string { return strings.TrimSpace(t) })))
		if len(tags) == 0 {
			return nil, nil
		}
		ids, err := s.store.ClientIDsByTags(ctx, tags, strings.EqualFold(r.Operator, MatchAll))
		if err != nil {
			return nil, fmt.Errorf("audience tags: %w", err)
		}
		return s.store.LoginsByClientIDs(ctx, ids)
	}
	return nil, nil
}

func parseClientIDs(ids []ID) []int64 {
	return lo.FilterMap(ids, func(id ID, _ int) (int64, bool) {
		return parseInt(string(id))
	})
}

func parseInt(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v, err == nil
}

func (s *Service) audienceItems(ctx context.Context, logins []string) ([]AudienceItem, error) {
	if len(logins) == 0 {
		return []AudienceItem{}, nil
	}
	accounts, err := s.store.Accounts(ctx, logins)
	if err != nil {
		return nil, fmt.Errorf("audience accounts: %w", err)
	}

	clientIDs := lo.Uniq(lo.FilterMap(accounts, func(a accountRecord, _ int) (int64, bool) {
		if !a.ID.Valid {
			return 0, false
		}
		return parseInt(a.ID.String)
	}))
	sort.Slice(clientIDs, func(i, j int) bool { return clientIDs[i] < clientIDs[j] })

	tags, err := s.store.TagsByClient(ctx, clientIDs)
	if err != nil {
		return nil, fmt.Errorf("audience tags: %w", err)
	}

	items := make([]AudienceItem, 0, len(accounts))
	for _, a := range accounts {
		item := AudienceItem{AccountID: a.Login, Tags: []string{}}
		if a.ID.Valid {
			if id, ok := parseInt(a.ID.String); ok {
				item.ClientID = &id
				if t := tags[id]; t != nil {
					item.Tags = t
				}
			}
		}
		if a.Name.Valid {
			item.Name = lo.ToPtr(a.Name.String)
		}
		if a.Group.Valid {
			item.Group = lo.ToPtr(a.Group.String)
		}
		if a.RegDate.Valid {
			item.RegDate = lo.ToPtr(a.RegDate.String)
		}
		if a.Balance.Valid {
			item.Balance = lo.ToPtr(a.Balance.Float64)
		}
		if a.Equity.Valid {
			item.Equity = lo.ToPtr(a.Equity.Float64)
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].AccountID < items[j].AccountID })
	return items, nil
}
