package condor_test

import (
	"errors"
	"testing"

	"github.com/opst/relmon/pkg/condor"
	"github.com/opst/relmon/pkg/domain"
	"github.com/opst/relmon/pkg/remote"
)

func TestSubmit(t *testing.T) {
	script := condor.Submit("/afs/relmon/1700000000", "RELMON_1700000000.sub")
	expected := "cd /afs/relmon/1700000000; condor_submit RELMON_1700000000.sub"
	if actual := script.String(); actual != expected {
		t.Errorf("Submit: %s", actual)
	}
}

func TestParseSubmit(t *testing.T) {
	t.Run("it reads cluster id", func(t *testing.T) {
		for _, stdout := range []string{
			"Submitting job(s).\n1 job(s) submitted to cluster 801341.\n",
			"1 job(s) submitted to cluster 801341",
			"1 job(s) submitted to cluster 801341.0",
		} {
			id, err := condor.ParseSubmit(remote.Output{Stdout: stdout})
			if err != nil {
				t.Errorf("%q: %v", stdout, err)
				continue
			}
			if id != 801341 {
				t.Errorf("%q: id = %d", stdout, id)
			}
		}
	})

	t.Run("it rejects unconfirmed output", func(t *testing.T) {
		for name, out := range map[string]remote.Output{
			"stderr": {
				Stdout: "1 job(s) submitted to cluster 801341.",
				Stderr: "WARNING: something",
			},
			"no confirmation": {Stdout: "ERROR: submit failed"},
			"empty":           {},
			"not a number":    {Stdout: "1 job(s) submitted to cluster ???"},
		} {
			id, err := condor.ParseSubmit(out)
			if !errors.Is(err, condor.ErrNotSubmitted) {
				t.Errorf("%s: unexpected error: %v", name, err)
			}
			if id != domain.NoCondorId {
				t.Errorf("%s: id = %d", name, id)
			}
		}
	})
}

func TestQuery(t *testing.T) {
	if actual := condor.Query().String(); actual != "condor_q -af:h ClusterId JobStatus" {
		t.Errorf("Query: %s", actual)
	}
}

func TestParseStatus(t *testing.T) {
	listing := "ClusterId JobStatus\n801340 2\n801341 4\n8013410 1\n"

	for name, c := range map[string]struct {
		id       int64
		out      remote.Output
		expected domain.CondorStatus
	}{
		"listed":           {id: 801341, out: remote.Output{Stdout: listing}, expected: domain.CondorDone},
		"prefix is not id": {id: 80134, out: remote.Output{Stdout: listing}, expected: domain.CondorUnknown},
		"running":          {id: 801340, out: remote.Output{Stdout: listing}, expected: domain.CondorRun},
		"not listed":       {id: 1, out: remote.Output{Stdout: listing}, expected: domain.CondorUnknown},
		"empty":            {id: 801341, out: remote.Output{}, expected: domain.CondorUnknown},
		"stderr":           {id: 801341, out: remote.Output{Stdout: listing, Stderr: "-- Failed"}, expected: domain.CondorUnknown},
		"unknown code":     {id: 7, out: remote.Output{Stdout: "7 9\n"}, expected: domain.CondorRemoved},
		"submission error": {id: 7, out: remote.Output{Stdout: "7 6\n"}, expected: domain.CondorSubmissionError},
		"header only":      {id: 7, out: remote.Output{Stdout: "ClusterId JobStatus\n"}, expected: domain.CondorUnknown},
	} {
		if actual := condor.ParseStatus(c.id, c.out); actual != c.expected {
			t.Errorf("%s: ParseStatus = %s, expected %s", name, actual, c.expected)
		}
	}
}

func TestRemove(t *testing.T) {
	if actual := condor.Remove(801341).String(); actual != "condor_rm 801341" {
		t.Errorf("Remove: %s", actual)
	}
}
