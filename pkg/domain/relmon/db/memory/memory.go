// Package memory provides RelMonInterface kept in process memory.
//
// It is for tests and dry runs; nothing survives restart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/opst/relmon/pkg/domain"
	kdb "github.com/opst/relmon/pkg/domain/relmon/db"
)

type store struct {
	mu      sync.RWMutex
	relmons map[string]domain.RelMon
}

// New returns an empty store.
func New(initial ...domain.RelMon) kdb.RelMonInterface {
	s := &store{relmons: map[string]domain.RelMon{}}
	for _, r := range initial {
		s.relmons[r.Id] = r.Clone()
	}
	return s
}

func (s *store) Get(_ context.Context, id string) (domain.RelMon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.relmons[id]
	if !ok {
		return domain.RelMon{}, fmt.Errorf("%w: relmon %s", domain.ErrMissing, id)
	}
	return r.Clone(), nil
}

func (s *store) filter(pred func(domain.RelMon) bool) []domain.RelMon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := []domain.RelMon{}
	for _, r := range s.relmons {
		if pred(r) {
			ret = append(ret, r.Clone())
		}
	}
	slices.SortFunc(ret, func(a, b domain.RelMon) int { return kdb.CompareId(a.Id, b.Id) })
	return ret
}

func (s *store) GetByStatus(_ context.Context, status ...domain.RelMonStatus) ([]domain.RelMon, error) {
	return s.filter(func(r domain.RelMon) bool {
		return slices.Contains(status, r.Status)
	}), nil
}

func (s *store) GetByCondorStatus(_ context.Context, status domain.CondorStatus) ([]domain.RelMon, error) {
	return s.filter(func(r domain.RelMon) bool {
		return r.CondorStatus == status
	}), nil
}

func (s *store) GetByName(_ context.Context, name string) ([]domain.RelMon, error) {
	return s.filter(func(r domain.RelMon) bool {
		return r.Name == name
	}), nil
}

func (s *store) Create(_ context.Context, relmon domain.RelMon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.relmons[relmon.Id]; ok {
		return fmt.Errorf("%w: relmon %s", domain.ErrConflict, relmon.Id)
	}
	s.relmons[relmon.Id] = relmon.Clone()
	return nil
}

func (s *store) Update(_ context.Context, relmon domain.RelMon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.relmons[relmon.Id]; !ok {
		return fmt.Errorf("%w: relmon %s", domain.ErrMissing, relmon.Id)
	}
	s.relmons[relmon.Id] = relmon.Clone()
	return nil
}

func (s *store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.relmons, id)
	return nil
}

func (s *store) List(_ context.Context, query domain.ListQuery, page int, pageSize int) ([]domain.RelMon, int, error) {
	matched := s.filter(func(r domain.RelMon) bool {
		switch {
		case query.Status != "":
			return r.Status == query.Status
		case query.Id != "":
			return r.Id == query.Id
		case query.NamePattern != "":
			return kdb.MatchPattern(query.NamePattern, r.Name)
		default:
			return true
		}
	})
	slices.Reverse(matched)

	total := len(matched)
	if pageSize <= 0 {
		return matched, total, nil
	}
	from := min(max(page, 0)*pageSize, total)
	to := min(from+pageSize, total)
	return matched[from:to], total, nil
}
