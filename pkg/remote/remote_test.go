package remote_test

import (
	"testing"

	"github.com/opst/relmon/pkg/remote"
)

func TestQuote(t *testing.T) {
	for _, c := range []struct {
		in       string
		expected string
	}{
		{in: "", expected: "''"},
		{in: "condor_q", expected: "condor_q"},
		{in: "/eos/relmon/1700000000", expected: "/eos/relmon/1700000000"},
		{in: "-af:h", expected: "-af:h"},
		{in: "a b", expected: "'a b'"},
		{in: "$(rm -rf ~)", expected: "'$(rm -rf ~)'"},
		{in: "it's", expected: `'it'"'"'s'`},
		{in: "x;y", expected: "'x;y'"},
	} {
		if actual := remote.Quote(c.in); actual != c.expected {
			t.Errorf("Quote(%q) = %s, expected %s", c.in, actual, c.expected)
		}
	}
}

func TestScript(t *testing.T) {
	t.Run("it renders commands line by line", func(t *testing.T) {
		s := remote.NewScript(
			remote.Cmd("cd", "/work/dir name"),
		).Then("condor_submit", "RELMON_1.sub")

		expected := "set -e\ncd '/work/dir name'\ncondor_submit RELMON_1.sub\n"
		if actual := s.Render(); actual != expected {
			t.Errorf("Render():\n%s\nexpected:\n%s", actual, expected)
		}
		if actual := s.String(); actual != "cd '/work/dir name'; condor_submit RELMON_1.sub" {
			t.Errorf("String(): %s", actual)
		}
	})

	t.Run("Then does not modify the receiver", func(t *testing.T) {
		base := make(remote.Script, 0, 4)
		base = append(base, remote.Cmd("true"))

		a := base.Then("echo", "a")
		b := base.Then("echo", "b")

		if len(base) != 1 {
			t.Errorf("base is modified: %v", base)
		}
		if a[1][1] != "a" || b[1][1] != "b" {
			t.Errorf("scripts share backing array: %v, %v", a, b)
		}
	})
}

func TestOutput_Ok(t *testing.T) {
	for name, c := range map[string]struct {
		out      remote.Output
		expected bool
	}{
		"clean":        {out: remote.Output{Stdout: "ok"}, expected: true},
		"blank stderr": {out: remote.Output{Stderr: " \n"}, expected: true},
		"stderr":       {out: remote.Output{Stderr: "error"}, expected: false},
		"exit code":    {out: remote.Output{ExitCode: 1}, expected: false},
	} {
		if actual := c.out.Ok(); actual != c.expected {
			t.Errorf("%s: Ok() = %v", name, actual)
		}
	}
}
