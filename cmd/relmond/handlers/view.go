package handlers

import (
	"github.com/opst/relmon/pkg/domain"
)

// CategoryView is a Category with summaries of its items.
type CategoryView struct {
	domain.Category

	ReferenceStatus map[domain.ItemStatus]int `json:"reference_status"`
	TargetStatus    map[domain.ItemStatus]int `json:"target_status"`

	// total bytes of files
	ReferenceSize int64 `json:"reference_size"`
	TargetSize    int64 `json:"target_size"`
}

// RelMonView is a RelMon in listing, without owner.
type RelMonView struct {
	Id           string              `json:"id"`
	Name         string              `json:"name"`
	Status       domain.RelMonStatus `json:"status"`
	CondorId     int64               `json:"condor_id"`
	CondorStatus domain.CondorStatus `json:"condor_status"`
	CPU          int                 `json:"cpu"`
	Memory       string              `json:"memory"`
	Disk         string              `json:"disk"`
	NoSubmission bool                `json:"no_submission,omitempty"`

	Categories []CategoryView `json:"categories"`

	TotalRelvals      int `json:"total_relvals"`
	DownloadedRelvals int `json:"downloaded_relvals"`
	ComparedRelvals   int `json:"compared_relvals"`
}

type Page struct {
	Data      []RelMonView `json:"data"`
	TotalRows int          `json:"total_rows"`
	PageSize  int          `json:"page_size"`
}

func summarize(items []domain.Item) (map[domain.ItemStatus]int, int64) {
	hist := map[domain.ItemStatus]int{}
	size := int64(0)
	for _, i := range items {
		hist[i.Status] += 1
		size += i.FileSize
	}
	return hist, size
}

// View makes RelMonView of r.
//
// An item is counted as downloaded once it leaves initial,
// and as compared when its category is done.
func View(r domain.RelMon) RelMonView {
	v := RelMonView{
		Id:           r.Id,
		Name:         r.Name,
		Status:       r.Status,
		CondorId:     r.CondorId,
		CondorStatus: r.CondorStatus,
		CPU:          r.CPU,
		Memory:       r.Memory,
		Disk:         r.Disk,
		NoSubmission: r.NoSubmission,
		Categories:   make([]CategoryView, 0, len(r.Categories)),
	}

	for _, c := range r.Categories {
		cv := CategoryView{Category: c}
		cv.ReferenceStatus, cv.ReferenceSize = summarize(c.Reference)
		cv.TargetStatus, cv.TargetSize = summarize(c.Target)
		v.Categories = append(v.Categories, cv)

		for _, items := range [][]domain.Item{c.Reference, c.Target} {
			v.TotalRelvals += len(items)
			for _, i := range items {
				if i.Status != domain.ItemInitial {
					v.DownloadedRelvals += 1
				}
			}
			if c.Status == domain.CategoryDone {
				v.ComparedRelvals += len(items)
			}
		}
	}
	return v
}
