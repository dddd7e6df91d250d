package domain_test

import (
	"errors"
	"testing"

	"github.com/opst/relmon/pkg/domain"
)

func TestCondorStatusFromCode(t *testing.T) {
	for code, expected := range map[string]domain.CondorStatus{
		"0":  domain.CondorUnexplained,
		"1":  domain.CondorIdle,
		"2":  domain.CondorRun,
		"3":  domain.CondorRemoved,
		"4":  domain.CondorDone,
		"5":  domain.CondorHold,
		"6":  domain.CondorSubmissionError,
		"7":  domain.CondorRemoved,
		"-1": domain.CondorRemoved,
		"":   domain.CondorRemoved,
		"x":  domain.CondorRemoved,
	} {
		if actual := domain.CondorStatusFromCode(code); actual != expected {
			t.Errorf("code %q: actual %s, expected %s", code, actual, expected)
		}
	}
}

func TestCondorStatus_Ended(t *testing.T) {
	for status, expected := range map[domain.CondorStatus]bool{
		domain.CondorNone:            false,
		domain.CondorIdle:            false,
		domain.CondorRun:             false,
		domain.CondorHold:            false,
		domain.CondorUnexplained:     false,
		domain.CondorSubmissionError: false,
		domain.CondorUnknown:         false,
		domain.CondorDone:            true,
		domain.CondorRemoved:         true,
	} {
		if actual := status.Ended(); actual != expected {
			t.Errorf("%q: actual %v, expected %v", status, actual, expected)
		}
	}
}

func TestAsStatuses(t *testing.T) {
	t.Run("every relmon status is parsed as itself", func(t *testing.T) {
		for _, s := range domain.RelMonStatuses() {
			actual, err := domain.AsRelMonStatus(s.String())
			if err != nil {
				t.Fatal(err)
			}
			if actual != s {
				t.Errorf("actual %s, expected %s", actual, s)
			}
		}
	})

	t.Run("in-flight statuses are submitted, running and finishing", func(t *testing.T) {
		for _, s := range domain.RelMonStatuses() {
			expected := s == domain.Submitted || s == domain.Running || s == domain.Finishing
			if s.InFlight() != expected {
				t.Errorf("%s: InFlight() = %v", s, s.InFlight())
			}
		}
	})

	t.Run("legacy spellings of condor status are accepted", func(t *testing.T) {
		for raw, expected := range map[string]domain.CondorStatus{
			"SUBMISSION ERROR": domain.CondorSubmissionError,
			"<unknown>":        domain.CondorUnknown,
		} {
			actual, err := domain.AsCondorStatus(raw)
			if err != nil {
				t.Fatal(err)
			}
			if actual != expected {
				t.Errorf("%q: actual %s, expected %s", raw, actual, expected)
			}
		}
	})

	t.Run("unknown values are rejected", func(t *testing.T) {
		if _, err := domain.AsRelMonStatus("finished"); !errors.Is(err, domain.ErrInvalidStatus) {
			t.Errorf("relmon status: %v", err)
		}
		if _, err := domain.AsCondorStatus("COMPLETED"); !errors.Is(err, domain.ErrInvalidStatus) {
			t.Errorf("condor status: %v", err)
		}
		if _, err := domain.AsItemStatus("lost"); !errors.Is(err, domain.ErrInvalidStatus) {
			t.Errorf("item status: %v", err)
		}
		if _, err := domain.AsHLT("sometimes"); !errors.Is(err, domain.ErrInvalidStatus) {
			t.Errorf("hlt: %v", err)
		}
		if _, err := domain.AsCategoryStatus("paused"); !errors.Is(err, domain.ErrInvalidStatus) {
			t.Errorf("category status: %v", err)
		}
	})
}
