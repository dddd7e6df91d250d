package domain

import (
	"encoding/json"
	"fmt"
)

// CondorStatus is the scheduler's view of a submitted job.
//
// It is independent from RelMonStatus.
// The zero value means "no job has been observed".
type CondorStatus string

const (
	CondorNone            CondorStatus = ""
	CondorUnexplained     CondorStatus = "UNEXPLAINED"
	CondorIdle            CondorStatus = "IDLE"
	CondorRun             CondorStatus = "RUN"
	CondorRemoved         CondorStatus = "REMOVED"
	CondorDone            CondorStatus = "DONE"
	CondorHold            CondorStatus = "HOLD"
	CondorSubmissionError CondorStatus = "SUBMISSION_ERROR"

	// the last query did not give any usable answer.
	CondorUnknown CondorStatus = "unknown"
)

// NoCondorId is the condor_id of RelMons which are not submitted.
const NoCondorId int64 = -1

func (c CondorStatus) String() string {
	return string(c)
}

// Ended reports the job has left the scheduler, successfully or not.
func (c CondorStatus) Ended() bool {
	return c == CondorDone || c == CondorRemoved
}

func AsCondorStatus(s string) (CondorStatus, error) {
	switch s {
	case string(CondorNone):
		return CondorNone, nil
	case string(CondorUnexplained):
		return CondorUnexplained, nil
	case string(CondorIdle):
		return CondorIdle, nil
	case string(CondorRun):
		return CondorRun, nil
	case string(CondorRemoved):
		return CondorRemoved, nil
	case string(CondorDone):
		return CondorDone, nil
	case string(CondorHold):
		return CondorHold, nil
	case string(CondorSubmissionError), "SUBMISSION ERROR":
		return CondorSubmissionError, nil
	case string(CondorUnknown), "<unknown>":
		return CondorUnknown, nil
	default:
		return "", fmt.Errorf(`%w: "%s" is not CondorStatus`, ErrInvalidStatus, s)
	}
}

// CondorStatusFromCode maps a numeric JobStatus reported by the scheduler.
//
// Codes out of the known range are treated as REMOVED.
func CondorStatusFromCode(code string) CondorStatus {
	switch code {
	case "0":
		return CondorUnexplained
	case "1":
		return CondorIdle
	case "2":
		return CondorRun
	case "3":
		return CondorRemoved
	case "4":
		return CondorDone
	case "5":
		return CondorHold
	case "6":
		return CondorSubmissionError
	default:
		return CondorRemoved
	}
}

func (c *CondorStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := AsCondorStatus(raw)
	if err != nil {
		return err
	}
	*c = v
	return nil
}
