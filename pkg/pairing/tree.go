package pairing

import (
	"slices"
	"strings"

	"github.com/opst/relmon/pkg/domain"
)

// AllRuns is the run bucket of categories other than "Data".
const AllRuns = "all_runs"

// DataCategory is the name of the category whose items are bucketed by run number.
const DataCategory = "Data"

type runs struct {
	order []string
	items map[string][]*domain.Item
}

// tree groups Items by dataset, and then by run.
//
// Buckets are kept in insertion order.
type tree struct {
	datasets []string
	runs     map[string]*runs
}

// plant builds a tree from items.
//
// Items whose file name does not have "__" are logged and left out of the tree.
func (e *Engine) plant(items []domain.Item, category string) *tree {
	t := &tree{runs: map[string]*runs{}}
	for i := range items {
		item := &items[i]
		dataset, run, ok := bucketOf(item.FileName, category)
		if !ok {
			e.logger.Errorf(`bad file name: "%s" (%s)`, item.FileName, item.Name)
			continue
		}

		rs, ok := t.runs[dataset]
		if !ok {
			rs = &runs{items: map[string][]*domain.Item{}}
			t.runs[dataset] = rs
			t.datasets = append(t.datasets, dataset)
		}
		if _, ok := rs.items[run]; !ok {
			rs.order = append(rs.order, run)
		}
		rs.items[run] = append(rs.items[run], item)
	}
	return t
}

// bucketOf extracts (dataset, run) from a file name like
// "DQM_V0001_R000316060__JetHT__Run2018A-v1__DQMIO.root".
func bucketOf(fileName string, category string) (string, string, bool) {
	parts := strings.Split(fileName, "__")
	if len(parts) < 2 {
		return "", "", false
	}
	dataset, _, _ := strings.Cut(parts[1], "_")

	run := AllRuns
	if category == DataCategory {
		head := strings.Split(parts[0], "_")
		run = head[len(head)-1]
	}
	return dataset, run, true
}

func (t *tree) bucket(dataset, run string) []*domain.Item {
	rs, ok := t.runs[dataset]
	if !ok {
		return nil
	}
	return rs.items[run]
}

// take removes the item from the bucket.
func (t *tree) take(dataset, run string, item *domain.Item) {
	rs, ok := t.runs[dataset]
	if !ok {
		return
	}
	rs.items[run] = slices.DeleteFunc(
		slices.Clone(rs.items[run]),
		func(i *domain.Item) bool { return i == item },
	)
}

// leftovers returns items which are not taken, in tree order.
func (t *tree) leftovers() []*domain.Item {
	ret := []*domain.Item{}
	for _, d := range t.datasets {
		rs := t.runs[d]
		for _, r := range rs.order {
			ret = append(ret, rs.items[r]...)
		}
	}
	return ret
}
