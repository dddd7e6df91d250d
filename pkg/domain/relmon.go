package domain

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var (
	// requested entity is not found.
	ErrMissing = errors.New("missing")

	// requested change collides with existing entity.
	ErrConflict = errors.New("conflict")

	// entity is not acceptable as it is.
	ErrInvalid = errors.New("invalid")
)

// UserInfo is the owner of a RelMon.
//
// Notifications for a RelMon are routed to its owner.
type UserInfo struct {
	Login    string `json:"login"`
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
}

func (u UserInfo) String() string {
	if u.Fullname == "" {
		return u.Login
	}
	return fmt.Sprintf("%s (%s)", u.Fullname, u.Login)
}

// Item is one workflow or dataset to be resolved into a file by the worker.
type Item struct {
	// workflow identifier or raw dataset name
	Name   string     `json:"name"`
	Status ItemStatus `json:"status"`

	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
	FileSize int64  `json:"file_size"`
	Events   int64  `json:"events"`

	// true when more than one candidate file is found upstream.
	Versioned bool `json:"versioned"`

	// Name of the paired Item in the other side. Empty when unpaired.
	Match string `json:"match,omitempty"`
}

func (i *Item) reset() {
	i.Status = ItemInitial
	i.FileName = ""
	i.FileURL = ""
	i.FileSize = 0
	i.Events = 0
	i.Versioned = false
	i.Match = ""
}

// Category is one named partition of a comparison.
type Category struct {
	Name             string         `json:"name"`
	Status           CategoryStatus `json:"status"`
	HLT              HLT            `json:"hlt"`
	AutomaticPairing bool           `json:"automatic_pairing"`

	// Rerun requests reprocessing on edit, even if nothing is changed.
	// It is not persisted beyond the edit.
	Rerun bool `json:"rerun,omitempty"`

	Reference []Item `json:"reference"`
	Target    []Item `json:"target"`
}

func (c *Category) reset() {
	c.Status = CategoryInitial
	c.Rerun = false
	for i := range c.Reference {
		c.Reference[i].reset()
	}
	for i := range c.Target {
		c.Target[i].reset()
	}
}

func (c Category) clone() Category {
	c.Reference = slices.Clone(c.Reference)
	c.Target = slices.Clone(c.Target)
	return c
}

// Bare returns projection of the category which is stable through execution.
func (c Category) Bare() BareCategory {
	names := func(items []Item) []string {
		ret := make([]string, len(items))
		for n, i := range items {
			ret[n] = i.Name
		}
		return ret
	}
	return BareCategory{
		Name:             c.Name,
		HLT:              c.HLT,
		AutomaticPairing: c.AutomaticPairing,
		Reference:        names(c.Reference),
		Target:           names(c.Target),
	}
}

// BareCategory is configuration of a Category without execution results.
type BareCategory struct {
	Name             string
	HLT              HLT
	AutomaticPairing bool
	Reference        []string
	Target           []string
}

func (b BareCategory) Equal(o BareCategory) bool {
	return b.Name == o.Name &&
		b.HLT == o.HLT &&
		b.AutomaticPairing == o.AutomaticPairing &&
		slices.Equal(b.Reference, o.Reference) &&
		slices.Equal(b.Target, o.Target)
}

// RelMon is one comparison job.
type RelMon struct {
	// Id is assigned on creation, and never changes.
	Id     string       `json:"id"`
	Name   string       `json:"name"`
	Status RelMonStatus `json:"status"`

	// handle of the job in the scheduler. Meaningful only while Status is in-flight.
	CondorId     int64        `json:"condor_id"`
	CondorStatus CondorStatus `json:"condor_status"`

	// resource request, passed through to the scheduler.
	CPU    int    `json:"cpu"`
	Memory string `json:"memory"`
	Disk   string `json:"disk"`

	UserInfo   UserInfo   `json:"user_info"`
	Categories []Category `json:"categories"`

	// NoSubmission keeps a new RelMon away from the scheduler.
	NoSubmission bool `json:"no_submission,omitempty"`
}

func (r RelMon) String() string {
	return fmt.Sprintf("RelMon %s (%s)", r.Id, r.Name)
}

// HasCondorJob reports r is tied to a job in the scheduler.
func (r RelMon) HasCondorJob() bool {
	return 0 < r.CondorId
}

// Clone returns a deep copy.
func (r RelMon) Clone() RelMon {
	cats := make([]Category, len(r.Categories))
	for n, c := range r.Categories {
		cats[n] = c.clone()
	}
	r.Categories = cats
	return r
}

// Reset brings r back to New.
//
// Scheduler handle is cleared in any case.
// When resetCategories is true, every Category and Item returns to initial.
// Otherwise, comparison results are kept as they are.
func (r *RelMon) Reset(resetCategories bool) {
	r.Status = New
	r.CondorId = NoCondorId
	r.CondorStatus = CondorNone
	if !resetCategories {
		return
	}
	for i := range r.Categories {
		r.Categories[i].reset()
	}
}

// ResetCategory resets only the named category.
//
// It returns false if no such category exists.
func (r *RelMon) ResetCategory(name string) bool {
	for i := range r.Categories {
		if r.Categories[i].Name == name {
			r.Categories[i].reset()
			return true
		}
	}
	return false
}

// Category returns the named category, or nil.
func (r *RelMon) Category(name string) *Category {
	for i := range r.Categories {
		if r.Categories[i].Name == name {
			return &r.Categories[i]
		}
	}
	return nil
}

// BareCategory returns projection of the named category.
//
// If there are no such category, it returns zero value and false.
func (r RelMon) BareCategory(name string) (BareCategory, bool) {
	c := r.Category(name)
	if c == nil {
		return BareCategory{}, false
	}
	return c.Bare(), true
}

// CategoryNames returns names of categories in order.
func (r RelMon) CategoryNames() []string {
	ret := make([]string, len(r.Categories))
	for n, c := range r.Categories {
		ret[n] = c.Name
	}
	return ret
}

// sizes are accepted as request_memory and request_disk of HTCondor.
var size = regexp.MustCompile(`^[0-9]+[KMGT]?B?$`)

// Validate checks r can be stored.
//
// Name becomes a part of file names. It should not contain "/", nor start with ".".
func (r RelMon) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.Contains(r.Name, "/") || strings.HasPrefix(r.Name, ".") {
		return fmt.Errorf(`%w: name "%s" is not usable as file name`, ErrInvalid, r.Name)
	}
	if r.Memory != "" && !size.MatchString(r.Memory) {
		return fmt.Errorf(`%w: memory "%s" is not a size`, ErrInvalid, r.Memory)
	}
	if r.Disk != "" && !size.MatchString(r.Disk) {
		return fmt.Errorf(`%w: disk "%s" is not a size`, ErrInvalid, r.Disk)
	}
	seen := map[string]struct{}{}
	for _, c := range r.Categories {
		if c.Name == "" {
			return fmt.Errorf("%w: category without name", ErrInvalid)
		}
		if _, ok := seen[c.Name]; ok {
			return fmt.Errorf(`%w: category "%s" is duplicated`, ErrInvalid, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// ListQuery selects RelMons to be listed.
//
// At most one of fields is expected to be set. Zero value selects all.
type ListQuery struct {
	Status RelMonStatus

	Id string

	// case insensitive. "*" matches any sequence.
	NamePattern string
}
