// Package dbtest checks RelMonInterface implementations against the same cases.
package dbtest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/opst/relmon/pkg/domain"
	kdb "github.com/opst/relmon/pkg/domain/relmon/db"
	"github.com/opst/relmon/pkg/utils/try"
)

func relmons() []domain.RelMon {
	return []domain.RelMon{
		{Id: "1700000001", Name: "Alpha vs Beta", Status: domain.Done, CondorStatus: domain.CondorDone},
		{Id: "1700000002", Name: "gamma vs delta", Status: domain.Running, CondorStatus: domain.CondorRun},
		{Id: "1700000003", Name: "ALPHA vs gamma", Status: domain.New},
		{Id: "999999999", Name: "old one", Status: domain.Done, CondorStatus: domain.CondorRun},
	}
}

func ids(rs []domain.RelMon) []string {
	ret := make([]string, len(rs))
	for i, r := range rs {
		ret[i] = r.Id
	}
	return ret
}

func eq(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Run tests behaviour common to all RelMonInterface implementations.
//
// newStore should return an empty store for each call, filled with initial.
func Run(t *testing.T, newStore func(t *testing.T, initial ...domain.RelMon) kdb.RelMonInterface) {
	ctx := context.Background()

	t.Run("Get returns a copy", func(t *testing.T) {
		testee := newStore(t, relmons()...)
		r := try.To(testee.Get(ctx, "1700000001")).OrFatal(t)
		r.Name = "changed"
		if again := try.To(testee.Get(ctx, "1700000001")).OrFatal(t); again.Name != "Alpha vs Beta" {
			t.Errorf("stored document is changed: %s", again.Name)
		}
	})

	t.Run("Update replaces the whole document", func(t *testing.T) {
		testee := newStore(t, relmons()...)
		r := try.To(testee.Get(ctx, "1700000003")).OrFatal(t)
		r.Name = "renamed"
		r.Status = domain.Submitted
		r.CondorId = 801341
		r.CondorStatus = domain.CondorIdle
		r.UserInfo = domain.UserInfo{Login: "jdoe", Fullname: "J Doe", Email: "jdoe@example.com"}
		r.Categories = []domain.Category{
			{
				Name: "Data", Status: domain.CategoryComparing, HLT: domain.HLTOnly, AutomaticPairing: true,
				Reference: []domain.Item{{Name: "ref", Status: domain.ItemDownloaded, FileSize: 1 << 40, Match: "tar"}},
				Target:    []domain.Item{{Name: "tar", Status: domain.ItemDownloaded, Match: "ref"}},
			},
		}
		if err := testee.Update(ctx, r); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(r, try.To(testee.Get(ctx, r.Id)).OrFatal(t)); diff != "" {
			t.Errorf("(-updated +stored):\n%s", diff)
		}
		if byName := try.To(testee.GetByName(ctx, "renamed")).OrFatal(t); len(byName) != 1 || byName[0].Id != r.Id {
			t.Errorf("GetByName: %v", ids(byName))
		}
		if byStatus := try.To(testee.GetByStatus(ctx, domain.Submitted)).OrFatal(t); !eq(ids(byStatus), []string{r.Id}) {
			t.Errorf("GetByStatus: %v", ids(byStatus))
		}
	})

	t.Run("Delete removes and tolerates missing", func(t *testing.T) {
		testee := newStore(t, relmons()...)
		if err := testee.Delete(ctx, "1700000001"); err != nil {
			t.Fatal(err)
		}
		if err := testee.Delete(ctx, "1700000001"); err != nil {
			t.Fatal(err)
		}
		if _, err := testee.Get(ctx, "1700000001"); !errors.Is(err, domain.ErrMissing) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Get reports missing", func(t *testing.T) {
		testee := newStore(t, relmons()...)
		if _, err := testee.Get(ctx, "0"); !errors.Is(err, domain.ErrMissing) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("GetByStatus and GetByCondorStatus are ordered by id", func(t *testing.T) {
		testee := newStore(t, relmons()...)
		done := try.To(testee.GetByStatus(ctx, domain.Done, domain.New)).OrFatal(t)
		if actual, expected := ids(done), []string{"999999999", "1700000001", "1700000003"}; !eq(actual, expected) {
			t.Errorf("actual %v, expected %v", actual, expected)
		}

		run := try.To(testee.GetByCondorStatus(ctx, domain.CondorRun)).OrFatal(t)
		if actual, expected := ids(run), []string{"999999999", "1700000002"}; !eq(actual, expected) {
			t.Errorf("actual %v, expected %v", actual, expected)
		}
	})

	t.Run("Create conflicts on taken id", func(t *testing.T) {
		testee := newStore(t, relmons()...)
		err := testee.Create(ctx, domain.RelMon{Id: "1700000001", Name: "other"})
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Update does not resurrect deleted relmon", func(t *testing.T) {
		testee := newStore(t, relmons()...)
		r := try.To(testee.Get(ctx, "1700000002")).OrFatal(t)
		if err := testee.Delete(ctx, r.Id); err != nil {
			t.Fatal(err)
		}
		if err := testee.Update(ctx, r); !errors.Is(err, domain.ErrMissing) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		type When struct {
			query    domain.ListQuery
			page     int
			pageSize int
		}
		type Then struct {
			ids   []string
			total int
		}
		theory := func(when When, then Then) func(*testing.T) {
			return func(t *testing.T) {
				testee := newStore(t, relmons()...)
				page, total, err := testee.List(ctx, when.query, when.page, when.pageSize)
				if err != nil {
					t.Fatal(err)
				}
				if total != then.total {
					t.Errorf("total: actual %d, expected %d", total, then.total)
				}
				if actual := ids(page); !eq(actual, then.ids) {
					t.Errorf("ids: actual %v, expected %v", actual, then.ids)
				}
			}
		}

		t.Run("all, newest first", theory(
			When{pageSize: 0},
			Then{ids: []string{"1700000003", "1700000002", "1700000001", "999999999"}, total: 4},
		))
		t.Run("second page", theory(
			When{page: 1, pageSize: 3},
			Then{ids: []string{"999999999"}, total: 4},
		))
		t.Run("page out of range", theory(
			When{page: 5, pageSize: 3},
			Then{ids: []string{}, total: 4},
		))
		t.Run("by status", theory(
			When{query: domain.ListQuery{Status: domain.Done}, pageSize: 10},
			Then{ids: []string{"1700000001", "999999999"}, total: 2},
		))
		t.Run("by id", theory(
			When{query: domain.ListQuery{Id: "1700000002"}, pageSize: 10},
			Then{ids: []string{"1700000002"}, total: 1},
		))
		t.Run("by name pattern, case insensitively", theory(
			When{query: domain.ListQuery{NamePattern: "*alpha*"}, pageSize: 10},
			Then{ids: []string{"1700000003", "1700000001"}, total: 2},
		))
		t.Run("name pattern is not a regexp", theory(
			When{query: domain.ListQuery{NamePattern: "*a.pha*"}, pageSize: 10},
			Then{ids: []string{}, total: 0},
		))
	})
}
