// Package pairing decides which reference Item is compared with which target Item.
package pairing

import (
	"io"
	"sort"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/opst/relmon/pkg/domain"
	"github.com/pmezard/go-difflib/difflib"
)

// Scorer measures similarity of two strings, in [0.0, 1.0].
type Scorer func(a, b string) float64

// Ratio is a Scorer by longest matching blocks, character-wise.
func Ratio(a, b string) float64 {
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

type Engine struct {
	logger *log.Logger
	score  Scorer
}

type Option func(*Engine) *Engine

func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) *Engine {
		e.logger = logger
		return e
	}
}

// WithScorer replaces similarity measure used in automatic pairing.
func WithScorer(s Scorer) Option {
	return func(e *Engine) *Engine {
		e.score = s
		return e
	}
}

func New(options ...Option) *Engine {
	discard := log.New("pairing")
	discard.SetOutput(io.Discard)

	e := &Engine{logger: discard, score: Ratio}
	for _, o := range options {
		e = o(e)
	}
	return e
}

// Pair decides pairs in the category.
//
// Match of paired Items are set to the name of their peer.
// With automatic pairing, downloaded Items left without peer become no_match.
//
// Returns
//
// - []string: file names of references.
//
// - []string: file names of targets. n-th target is compared with n-th reference.
func (e *Engine) Pair(category *domain.Category) ([]string, []string) {
	if len(category.Reference) == 0 && len(category.Target) == 0 {
		return []string{}, []string{}
	}
	if category.AutomaticPairing {
		return e.automatic(category)
	}
	return e.manual(category)
}

// manual pairs by position, skipping Items without file and compacting the rest.
func (e *Engine) manual(category *domain.Category) ([]string, []string) {
	resolved := func(items []domain.Item) []*domain.Item {
		ret := []*domain.Item{}
		for i := range items {
			if items[i].FileName == "" {
				e.logger.Warnf("file name is missing for %s, it will not be compared", items[i].Name)
				continue
			}
			ret = append(ret, &items[i])
		}
		return ret
	}

	refs := resolved(category.Reference)
	tars := resolved(category.Target)

	n := min(len(refs), len(tars))
	refNames := make([]string, n)
	tarNames := make([]string, n)
	for i := 0; i < n; i++ {
		refs[i].Match = tars[i].Name
		tars[i].Match = refs[i].Name
		refNames[i] = refs[i].FileName
		tarNames[i] = tars[i].FileName
	}
	return refNames, tarNames
}

type pair struct {
	reference *domain.Item
	target    *domain.Item
	score     float64
}

func (e *Engine) automatic(category *domain.Category) ([]string, []string) {
	e.logger.Infof("automatic pairing in %s", category.Name)
	refTree := e.plant(category.Reference, category.Name)
	tarTree := e.plant(category.Target, category.Name)

	selected := []pair{}
	for _, dataset := range refTree.datasets {
		refRuns := refTree.runs[dataset]
		for _, run := range refRuns.order {
			refs := refRuns.items[run]
			tars := tarTree.bucket(dataset, run)

			if len(refs) == 1 && len(tars) == 1 {
				p := pair{reference: refs[0], target: tars[0], score: 1}
				e.logger.Infof("pair %s with %s", p.reference.FileName, p.target.FileName)
				selected = append(selected, p)
				refTree.take(dataset, run, p.reference)
				tarTree.take(dataset, run, p.target)
				continue
			}

			e.logger.Infof(
				"dataset %s, run %s: matching %d references with %d targets",
				dataset, run, len(refs), len(tars),
			)
			for _, p := range e.greedy(refs, tars) {
				selected = append(selected, p)
				refTree.take(dataset, run, p.reference)
				tarTree.take(dataset, run, p.target)
			}
		}
	}

	refNames := make([]string, len(selected))
	tarNames := make([]string, len(selected))
	for n, p := range selected {
		p.reference.Match = p.target.Name
		p.target.Match = p.reference.Name
		refNames[n] = p.reference.FileName
		tarNames[n] = p.target.FileName
	}

	for _, tree := range []*tree{refTree, tarTree} {
		for _, item := range tree.leftovers() {
			e.logger.Infof("%s (%s) has no match", item.Name, item.FileName)
			if item.Status == domain.ItemDownloaded {
				item.Status = domain.ItemNoMatch
			}
		}
	}

	return refNames, tarNames
}

// greedy picks the most similar pairs first, using each Item at most once.
func (e *Engine) greedy(refs, tars []*domain.Item) []pair {
	candidates := make([]pair, 0, len(refs)*len(tars))
	for _, r := range refs {
		for _, t := range tars {
			rs, ts := importantPart(r.FileName), importantPart(t.FileName)
			score := e.score(rs, ts)
			e.logger.Debugf("%s %s -> %f", rs, ts, score)
			candidates = append(candidates, pair{reference: r, target: t, score: score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	usedRef := map[*domain.Item]struct{}{}
	usedTar := map[*domain.Item]struct{}{}
	selected := []pair{}
	for _, c := range candidates {
		if _, ok := usedRef[c.reference]; ok {
			continue
		}
		if _, ok := usedTar[c.target]; ok {
			continue
		}
		e.logger.Infof(
			"pair %s with %s, similarity %.3f",
			c.reference.FileName, c.target.FileName, c.score,
		)
		usedRef[c.reference] = struct{}{}
		usedTar[c.target] = struct{}{}
		selected = append(selected, c)
	}
	return selected
}

// importantPart extracts a part of file name used in similarity.
//
// For "DQM_V0001_R000000001__RelValTTbar_14TeV__CMSSW_14_0_0-140X_mcRun4-v1__DQMIO.root",
// it is "RelValTTbar_14TeV_140X_mcRun4".
func importantPart(fileName string) string {
	parts := strings.Split(fileName, "__")
	if len(parts) < 3 {
		return fileName
	}
	version := strings.Split(parts[2], "-")
	if len(version) < 2 {
		return parts[1]
	}
	return parts[1] + "_" + version[1]
}
