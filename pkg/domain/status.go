package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidStatus = errors.New("invalid status")

// RelMonStatus is the lifecycle state of a RelMon.
type RelMonStatus string

const (
	// This RelMon is waiting to be submitted.
	New RelMonStatus = "new"

	// This RelMon is handed to the scheduler, and is not started yet.
	Submitted RelMonStatus = "submitted"

	// The worker reported that it has started.
	Running RelMonStatus = "running"

	// The worker has compared all categories, and is publishing reports.
	Finishing RelMonStatus = "finishing"

	// Outputs are collected successfully.
	Done RelMonStatus = "done"

	// Something went wrong. Stays until reset.
	Failed RelMonStatus = "failed"
)

func (s RelMonStatus) String() string {
	return string(s)
}

func AsRelMonStatus(s string) (RelMonStatus, error) {
	switch s {
	case string(New):
		return New, nil
	case string(Submitted):
		return Submitted, nil
	case string(Running):
		return Running, nil
	case string(Finishing):
		return Finishing, nil
	case string(Done):
		return Done, nil
	case string(Failed):
		return Failed, nil
	default:
		return "", fmt.Errorf(`%w: "%s" is not RelMonStatus`, ErrInvalidStatus, s)
	}
}

// RelMonStatuses returns all statuses in lifecycle order.
func RelMonStatuses() []RelMonStatus {
	return []RelMonStatus{New, Submitted, Running, Finishing, Done, Failed}
}

// InFlightStatuses are statuses where the RelMon has a job in the scheduler.
func InFlightStatuses() []RelMonStatus {
	return []RelMonStatus{Submitted, Running, Finishing}
}

func (s RelMonStatus) InFlight() bool {
	switch s {
	case Submitted, Running, Finishing:
		return true
	default:
		return false
	}
}

func (s RelMonStatus) Terminal() bool {
	return s == Done || s == Failed
}

func (s *RelMonStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := AsRelMonStatus(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// CategoryStatus is progress of comparison in a Category.
//
// It goes initial -> comparing -> done, and back to initial only by reset.
type CategoryStatus string

const (
	CategoryInitial   CategoryStatus = "initial"
	CategoryComparing CategoryStatus = "comparing"
	CategoryDone      CategoryStatus = "done"
)

func (s CategoryStatus) String() string {
	return string(s)
}

// AsCategoryStatus parses s. Empty string is read as initial.
func AsCategoryStatus(s string) (CategoryStatus, error) {
	switch s {
	case "", string(CategoryInitial):
		return CategoryInitial, nil
	case string(CategoryComparing):
		return CategoryComparing, nil
	case string(CategoryDone):
		return CategoryDone, nil
	default:
		return "", fmt.Errorf(`%w: "%s" is not CategoryStatus`, ErrInvalidStatus, s)
	}
}

func (s *CategoryStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := AsCategoryStatus(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// HLT controls which variants of comparison run in a Category.
type HLT string

const (
	// compare without HLT only.
	HLTNo HLT = "no"

	// compare with HLT only.
	HLTOnly HLT = "only"

	// compare both, with and without HLT.
	HLTBoth HLT = "both"
)

func (h HLT) String() string {
	return string(h)
}

// AsHLT parses s. Empty string is read as both.
func AsHLT(s string) (HLT, error) {
	switch s {
	case string(HLTNo):
		return HLTNo, nil
	case string(HLTOnly):
		return HLTOnly, nil
	case "", string(HLTBoth):
		return HLTBoth, nil
	default:
		return "", fmt.Errorf(`%w: "%s" is not HLT`, ErrInvalidStatus, s)
	}
}

func (h *HLT) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := AsHLT(raw)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// ItemStatus is resolution state of an Item, advanced by the worker.
type ItemStatus string

const (
	ItemInitial     ItemStatus = "initial"
	ItemDownloading ItemStatus = "downloading"
	ItemDownloaded  ItemStatus = "downloaded"

	// workflow is not found upstream.
	ItemNoWorkflow ItemStatus = "no_workflow"

	// workflow has no DQMIO dataset.
	ItemNoDQMIO ItemStatus = "no_dqmio"

	// no root file is found for the dataset.
	ItemNoRoot ItemStatus = "no_root"

	ItemFailed ItemStatus = "failed"

	// downloaded, but no peer is found on the other side.
	ItemNoMatch ItemStatus = "no_match"
)

func (s ItemStatus) String() string {
	return string(s)
}

// AsItemStatus parses s. Empty string is read as initial.
func AsItemStatus(s string) (ItemStatus, error) {
	switch s {
	case "", string(ItemInitial):
		return ItemInitial, nil
	case string(ItemDownloading):
		return ItemDownloading, nil
	case string(ItemDownloaded):
		return ItemDownloaded, nil
	case string(ItemNoWorkflow):
		return ItemNoWorkflow, nil
	case string(ItemNoDQMIO):
		return ItemNoDQMIO, nil
	case string(ItemNoRoot):
		return ItemNoRoot, nil
	case string(ItemFailed):
		return ItemFailed, nil
	case string(ItemNoMatch):
		return ItemNoMatch, nil
	default:
		return "", fmt.Errorf(`%w: "%s" is not ItemStatus`, ErrInvalidStatus, s)
	}
}

func (s *ItemStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := AsItemStatus(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
