// Package condor builds HTCondor commands and reads their outputs.
package condor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opst/relmon/pkg/domain"
	"github.com/opst/relmon/pkg/remote"
)

// ErrNotSubmitted is returned when condor_submit output does not confirm a submission.
var ErrNotSubmitted = errors.New("condor: job is not submitted")

const submitted = "1 job(s) submitted to cluster"

// Submit submits the description subFile in dir.
func Submit(dir, subFile string) remote.Script {
	return remote.NewScript(
		remote.Cmd("cd", dir),
		remote.Cmd("condor_submit", subFile),
	)
}

// ParseSubmit reads the cluster id from an output of Submit.
//
// The output should be like "1 job(s) submitted to cluster 801341." with empty stderr.
func ParseSubmit(out remote.Output) (int64, error) {
	if strings.TrimSpace(out.Stderr) != "" || !strings.Contains(out.Stdout, submitted) {
		return domain.NoCondorId, fmt.Errorf(
			"%w: stdout=%q, stderr=%q", ErrNotSubmitted, out.Stdout, out.Stderr,
		)
	}
	fields := strings.Fields(out.Stdout)
	last := strings.TrimSuffix(fields[len(fields)-1], ".")
	f, err := strconv.ParseFloat(last, 64)
	if err != nil || f <= 0 {
		return domain.NoCondorId, fmt.Errorf(
			"%w: cluster id is not a number: %q", ErrNotSubmitted, out.Stdout,
		)
	}
	return int64(f), nil
}

// Query lists ClusterId and JobStatus of the user's jobs.
func Query() remote.Script {
	return remote.NewScript(
		remote.Cmd("condor_q", "-af:h", "ClusterId", "JobStatus"),
	)
}

// ParseStatus finds the status of the job id in an output of Query.
//
// When the output is unusable or the job is not listed, it returns CondorUnknown.
func ParseStatus(id int64, out remote.Output) domain.CondorStatus {
	if strings.TrimSpace(out.Stderr) != "" {
		return domain.CondorUnknown
	}

	want := strconv.FormatInt(id, 10)
	code := ""
	for _, line := range strings.Split(out.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != want {
			continue
		}
		code = fields[len(fields)-1]
	}
	if code == "" {
		return domain.CondorUnknown
	}
	return domain.CondorStatusFromCode(code)
}

// Remove removes the job from the scheduler.
func Remove(id int64) remote.Script {
	return remote.NewScript(
		remote.Cmd("condor_rm", strconv.FormatInt(id, 10)),
	)
}
