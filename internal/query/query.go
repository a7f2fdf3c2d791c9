// Package query is the role-scoped listing projection over the engine's
// request snapshot. It never mutates state.
package query

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/fieldops/request-service/internal/auth"
	"github.com/fieldops/request-service/internal/engine"
	"github.com/fieldops/request-service/internal/model"
	"github.com/fieldops/request-service/internal/store"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type Service struct {
	store store.Requests
}

func NewService(st store.Requests) *Service {
	return &Service{store: st}
}

// List returns the caller-visible requests matching the free-text query,
// ordered by the curated status priority and then by code. An empty query
// matches everything within the caller's scope.
func (s *Service) List(ctx context.Context, ident *auth.Identity, q string) ([]model.Request, error) {
	items, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Request, 0, len(items))
	needle := strings.ToLower(strings.TrimSpace(q))
	for i := range items {
		if !engine.Visible(ident, &items[i]) {
			continue
		}
		if needle != "" && !matches(&items[i], needle) {
			continue
		}
		out = append(out, items[i])
	}
	sortRequests(out)
	return out, nil
}

// matches checks the query substring case-insensitively against code, site
// name, system name, client name, status label and type label; any hit wins.
func matches(r *model.Request, needle string) bool {
	for _, field := range []string{
		r.Code,
		r.Site.Name,
		r.System.Name,
		r.Site.Client.Name,
		string(r.Status),
		r.Type.Name,
	} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func sortRequests(items []model.Request) {
	// Collators are not safe for concurrent use; one per call.
	coll := collate.New(language.Und, collate.Loose)
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := engine.StatusRank(items[i].Status), engine.StatusRank(items[j].Status)
		if ri != rj {
			return ri < rj
		}
		return coll.CompareString(stripSpace(items[i].Code), stripSpace(items[j].Code)) < 0
	})
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
