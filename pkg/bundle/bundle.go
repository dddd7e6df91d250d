// Package bundle creates files for the job of a RelMon and lays them out on
// the local and the remote (submission host) side.
package bundle

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/opst/relmon/pkg/domain"
	xe "github.com/opst/relmon/pkg/errors"
	"github.com/opst/relmon/pkg/remote"
)

//go:embed templates/*.tmpl
var templates embed.FS

var tmpl = template.Must(
	template.New("bundle").
		Funcs(template.FuncMap{"q": remote.Quote}).
		ParseFS(templates, "templates/*.tmpl"),
)

// ErrBadId is returned for RelMon ids which cannot be a part of file names.
var ErrBadId = errors.New("bundle: id cannot be used in file names")

var goodId = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]*$`)

const (
	// ProxyFile is the name of grid proxy in the remote directory.
	ProxyFile = "proxy.txt"

	// ValidationLog is written by the comparison driver in the remote directory.
	ValidationLog = "validation_matrix.log"

	accountingCAF    = "group_u_CMS.CAF.PHYS"
	accountingShared = "group_u_CMS.u_zh.users"
)

type Config struct {
	// LocalDirectory contains bundle directories, one for each RelMon.
	LocalDirectory string

	// RemoteDirectory on the submission host contains bundle directories.
	RemoteDirectory string

	// WebLocation is where reports are published.
	WebLocation string

	CMSSWRelease string

	// GitSource and GitBranch locate the worker repository.
	GitSource string
	GitBranch string

	// CMSSWCustomRepo and CMSSWCustomBranch are used together, to
	// replace Utilities/RelMon of the release.
	CMSSWCustomRepo   string
	CMSSWCustomBranch string

	CallbackURL         string
	CallbackCredentials bool

	CallbackClientId     string
	CallbackClientSecret string
	ClientId             string

	// CAFPool switches the accounting group.
	CAFPool bool

	// ProxyFile is a local path of grid proxy uploaded with the bundle, if any.
	ProxyFile string
}

// FileCreator writes bundles.
type FileCreator struct {
	conf Config
}

func New(conf Config) *FileCreator {
	conf.WebLocation = strings.TrimSuffix(conf.WebLocation, "/")
	return &FileCreator{conf: conf}
}

// Bundle is a set of files written for a RelMon.
type Bundle struct {
	Id string

	LocalDir  string
	RemoteDir string

	// Files are local paths of files to be uploaded into RemoteDir.
	Files []string

	// Submit is the name of submit description in RemoteDir.
	Submit string
}

func JobFile(id string) string {
	return fmt.Sprintf("RELMON_%s.json", id)
}

func SubmitFile(id string) string {
	return fmt.Sprintf("RELMON_%s.sub", id)
}

func ScriptFile(id string) string {
	return fmt.Sprintf("RELMON_%s.sh", id)
}

func (fc *FileCreator) LocalDir(id string) string {
	return filepath.Join(fc.conf.LocalDirectory, id)
}

func (fc *FileCreator) RemoteDir(id string) string {
	return path.Join(fc.conf.RemoteDirectory, id)
}

// ReportPath is the published report of the RelMon.
func (fc *FileCreator) ReportPath(id, name string) string {
	return fmt.Sprintf("%s/%s___%s.sqlite", fc.conf.WebLocation, id, name)
}

// Outputs are file names which the job leaves in the remote directory.
func Outputs(id string) []string {
	return []string{
		ValidationLog,
		fmt.Sprintf("RELMON_%s.out", id),
		fmt.Sprintf("RELMON_%s.log", id),
		fmt.Sprintf("RELMON_%s.err", id),
	}
}

type params struct {
	Id     string
	CPU    int
	Memory string
	Disk   string

	CMSSWRelease      string
	GitSource         string
	GitBranch         string
	GitArchive        string
	CustomCMSSW       bool
	CMSSWCustomRepo   string
	CMSSWCustomBranch string

	CallbackURL         string
	CallbackCredentials bool

	CallbackClientId     string
	CallbackClientSecret string
	ClientId             string
	AccountingGroup      string

	WebLocation string
	ReportPath  string
}

func (fc *FileCreator) params(relmon domain.RelMon) params {
	c := fc.conf
	accounting := accountingShared
	if c.CAFPool {
		accounting = accountingCAF
	}
	return params{
		Id:     relmon.Id,
		CPU:    relmon.CPU,
		Memory: relmon.Memory,
		Disk:   relmon.Disk,

		CMSSWRelease:      c.CMSSWRelease,
		GitSource:         c.GitSource,
		GitBranch:         c.GitBranch,
		GitArchive:        fmt.Sprintf("%s/archive/%s.zip", strings.TrimSuffix(c.GitSource, ".git"), c.GitBranch),
		CustomCMSSW:       c.CMSSWCustomRepo != "" && c.CMSSWCustomBranch != "",
		CMSSWCustomRepo:   c.CMSSWCustomRepo,
		CMSSWCustomBranch: c.CMSSWCustomBranch,

		CallbackURL:         c.CallbackURL,
		CallbackCredentials: c.CallbackCredentials,

		CallbackClientId:     c.CallbackClientId,
		CallbackClientSecret: c.CallbackClientSecret,
		ClientId:             c.ClientId,
		AccountingGroup:      accounting,

		WebLocation: c.WebLocation,
		ReportPath:  fc.ReportPath(relmon.Id, relmon.Name),
	}
}

// Create writes the job description, the submit description and the launch script
// into the local directory of the RelMon.
//
// Existing files in the directory are overwritten.
func (fc *FileCreator) Create(relmon domain.RelMon) (Bundle, error) {
	if !goodId.MatchString(relmon.Id) {
		return Bundle{}, fmt.Errorf("%w: %q", ErrBadId, relmon.Id)
	}
	if err := relmon.Validate(); err != nil {
		return Bundle{}, err
	}

	dir := fc.LocalDir(relmon.Id)
	if err := os.MkdirAll(dir, os.FileMode(0o755)); err != nil {
		return Bundle{}, xe.Wrap(err)
	}

	job, err := Marshal(relmon)
	if err != nil {
		return Bundle{}, xe.WrapWithNote(relmon.String(), err)
	}

	p := fc.params(relmon)
	sub := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(sub, "job.sub.tmpl", p); err != nil {
		return Bundle{}, xe.Wrap(err)
	}
	sh := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(sh, "job.sh.tmpl", p); err != nil {
		return Bundle{}, xe.Wrap(err)
	}

	b := Bundle{
		Id:        relmon.Id,
		LocalDir:  dir,
		RemoteDir: fc.RemoteDir(relmon.Id),
		Submit:    SubmitFile(relmon.Id),
	}
	for _, f := range []struct {
		name    string
		content []byte
		mode    os.FileMode
	}{
		{name: JobFile(relmon.Id), content: job, mode: 0o644},
		{name: SubmitFile(relmon.Id), content: sub.Bytes(), mode: 0o644},
		{name: ScriptFile(relmon.Id), content: sh.Bytes(), mode: 0o755},
	} {
		dest := filepath.Join(dir, f.name)
		if err := os.WriteFile(dest, f.content, f.mode); err != nil {
			return Bundle{}, xe.Wrap(err)
		}
		b.Files = append(b.Files, dest)
	}

	if fc.conf.ProxyFile != "" {
		proxy := filepath.Join(dir, ProxyFile)
		if err := copyFile(fc.conf.ProxyFile, proxy); err != nil {
			return Bundle{}, xe.WrapWithNote("proxy", err)
		}
		b.Files = append(b.Files, proxy)
	}

	return b, nil
}

// Marshal makes job description JSON, indented and with sorted keys.
func Marshal(relmon domain.RelMon) ([]byte, error) {
	raw, err := json.Marshal(relmon)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Prepare makes the remote directory empty.
func (fc *FileCreator) Prepare(id string) remote.Script {
	dir := fc.RemoteDir(id)
	return remote.NewScript(
		remote.Cmd("rm", "-rf", dir),
		remote.Cmd("mkdir", "-p", dir),
	)
}

// Cleanup removes the remote directory.
func (fc *FileCreator) Cleanup(id string) remote.Script {
	return remote.NewScript(remote.Cmd("rm", "-rf", fc.RemoteDir(id)))
}

// Rename moves the published report for a new name.
func (fc *FileCreator) Rename(id, oldName, newName string) remote.Script {
	return remote.NewScript(
		remote.Cmd("mv", "-f", fc.ReportPath(id, oldName), fc.ReportPath(id, newName)),
	)
}

// Clear removes the local directory of the RelMon.
func (fc *FileCreator) Clear(id string) error {
	if !goodId.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrBadId, id)
	}
	return os.RemoveAll(fc.LocalDir(id))
}

func copyFile(src, dst string) error {
	content, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, content, os.FileMode(0o600))
}
