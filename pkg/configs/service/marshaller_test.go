package service_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/opst/relmon/pkg/configs/service"
	"github.com/opst/relmon/pkg/utils/try"
)

func env(kv map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

const fullYaml = `
server:
  host: 127.0.0.1
  port: 8000
  loglevel: debug
  adminGroup: relmon-admins
  serviceAccounts: [pdmvserv]
tick:
  policy: forever:5m
  timeout: 30m
submission:
  host: lxplus.example.com
  username: pdmvserv
  password: ${SERVICE_ACCOUNT_PASSWORD}
  knownHostsFile: /etc/relmon/known_hosts
  poolSize: 2
  dialTimeout: 10s
  remoteDirectory: relmon_test
  localDirectory: /var/lib/relmon
database:
  driver: postgres
  dsn: ${DATABASE_DSN}
  schemaRepository: /etc/relmon/schema
bundle:
  cmsswRelease: CMSSW_14_0_0
  webLocation: /eos/project/relmon
  callbackURL: https://relmon.example.com/api/update
  cafPool: true
  callbackCredentials: true
  clientId: app-id
  callbackClientId: cb-id
  callbackClientSecret: ${CALLBACK_CLIENT_SECRET}
notification:
  smtp:
    host: smtp.example.com
    from: relmon@example.com
  reportsURL: https://reports.example.com/
  serviceURL: https://relmon.example.com/
  webhooks:
    - https://hooks.example.com/relmon
callback:
  publicKeyFile: /etc/relmon/callback.pem
  audience: relmon
`

func TestUnmarshal(t *testing.T) {
	t.Run("it loads config from yaml", func(t *testing.T) {
		result := try.To(service.Unmarshal([]byte(fullYaml), env(map[string]string{
			"SERVICE_ACCOUNT_PASSWORD": "s3cret",
			"DATABASE_DSN":             "postgres://relmon@db/relmon",
			"CALLBACK_CLIENT_SECRET":   "cb-secret",
		}))).OrFatal(t)

		type value struct {
			path     string
			actual   any
			expected any
		}
		for _, v := range []value{
			{".server.host", result.Server().Host(), "127.0.0.1"},
			{".server.port", result.Server().Port(), 8000},
			{".server.loglevel", result.Server().LogLevel(), "debug"},
			{".server.adminGroup", result.Server().AdminGroup(), "relmon-admins"},
			{".server.serviceAccounts", result.Server().ServiceAccounts(), []string{"pdmvserv"}},
			{".tick.policy", result.Tick().Policy().String(), "forever:5m0s"},
			{".tick.timeout", result.Tick().Timeout(), 30 * time.Minute},
			{".submission.host", result.Submission().Host(), "lxplus.example.com"},
			{".submission.port", result.Submission().Port(), 22},
			{".submission.username", result.Submission().Username(), "pdmvserv"},
			{".submission.password", result.Submission().Password(), "s3cret"},
			{".submission.knownHostsFile", result.Submission().KnownHostsFile(), "/etc/relmon/known_hosts"},
			{".submission.poolSize", result.Submission().PoolSize(), 2},
			{".submission.dialTimeout", result.Submission().DialTimeout(), 10 * time.Second},
			{".submission.remoteDirectory", result.Submission().RemoteDirectory(), "relmon_test"},
			{".submission.localDirectory", result.Submission().LocalDirectory(), "/var/lib/relmon"},
			{".database.driver", result.Database().Driver(), service.Postgres},
			{".database.dsn", result.Database().DSN(), "postgres://relmon@db/relmon"},
			{".database.schemaRepository", result.Database().SchemaRepository(), "/etc/relmon/schema"},
			{".bundle.cmsswRelease", result.Bundle().CMSSWRelease(), "CMSSW_14_0_0"},
			{".bundle.gitSource", result.Bundle().GitSource(), "https://github.com/cms-PdmV/relmonservice2.git"},
			{".bundle.gitBranch", result.Bundle().GitBranch(), "master"},
			{".bundle.cafPool", result.Bundle().CAFPool(), true},
			{".bundle.callbackClientSecret", result.Bundle().CallbackClientSecret(), "cb-secret"},
			{".notification.smtp.host", result.Notification().SMTP().Host(), "smtp.example.com"},
			{".notification.smtp.port", result.Notification().SMTP().Port(), 25},
			{".notification.reportsURL", result.Notification().ReportsURL(), "https://reports.example.com/"},
			{".notification.webhooks", result.Notification().Webhooks()[0].String(), "https://hooks.example.com/relmon"},
			{".callback.publicKeyFile", result.Callback().PublicKeyFile(), "/etc/relmon/callback.pem"},
			{".callback.audience", result.Callback().Audience(), "relmon"},
		} {
			if diff := cmp.Diff(v.expected, v.actual); diff != "" {
				t.Errorf("%s (-expected +actual):\n%s", v.path, diff)
			}
		}
	})

	t.Run("it fills defaults", func(t *testing.T) {
		result := try.To(service.Unmarshal([]byte(`
submission:
  host: lxplus.example.com
  username: pdmvserv
  privateKeyFile: /etc/relmon/id_ed25519
  remoteDirectory: relmon
  localDirectory: /tmp/relmon
database:
  driver: memory
bundle:
  cmsswRelease: CMSSW_14_0_0
  webLocation: /eos/project/relmon
  callbackURL: http://localhost:8080/api/update
`), env(nil))).OrFatal(t)

		if actual := result.Server().Port(); actual != 8080 {
			t.Errorf(".server.port: %d", actual)
		}
		if actual := result.Server().AdminGroup(); actual != service.DefaultAdminGroup {
			t.Errorf(".server.adminGroup: %s", actual)
		}
		if actual := result.Tick().Policy().String(); actual != "forever:10m0s" {
			t.Errorf(".tick.policy: %s", actual)
		}
		if actual := result.Tick().Timeout(); actual != time.Hour {
			t.Errorf(".tick.timeout: %s", actual)
		}
		if result.Notification().SMTP() != nil {
			t.Errorf(".notification.smtp should be nil")
		}
		if result.Callback() != nil {
			t.Errorf(".callback should be nil")
		}
	})
}

func TestUnmarshal_Misconfiguration(t *testing.T) {
	base := map[string]string{
		"SERVICE_ACCOUNT_PASSWORD": "s3cret",
		"DATABASE_DSN":             "postgres://relmon@db/relmon",
		"CALLBACK_CLIENT_SECRET":   "cb-secret",
	}

	type when struct {
		replace [2]string
		env     map[string]string
	}
	theory := func(when when, then string) func(*testing.T) {
		return func(t *testing.T) {
			conf := strings.Replace(fullYaml, when.replace[0], when.replace[1], 1)
			e := base
			if when.env != nil {
				e = when.env
			}
			_, err := service.Unmarshal([]byte(conf), env(e))
			if err == nil {
				t.Fatal("expected error, but got nil")
			}
			if !strings.Contains(err.Error(), then) {
				t.Errorf("error should mention %q: %v", then, err)
			}
		}
	}

	t.Run("missing environment variable", theory(
		when{env: map[string]string{}},
		"SERVICE_ACCOUNT_PASSWORD",
	))
	t.Run("missing submission host", theory(
		when{replace: [2]string{"host: lxplus.example.com", "host: ''"}},
		"(root).submission.host is required",
	))
	t.Run("unknown driver", theory(
		when{replace: [2]string{"driver: postgres", "driver: mongodb"}},
		"unknown driver mongodb",
	))
	t.Run("broken tick policy", theory(
		when{replace: [2]string{"policy: forever:5m", "policy: sometimes"}},
		"(root).tick.policy",
	))
	t.Run("non http webhook", theory(
		when{replace: [2]string{"https://hooks.example.com/relmon", "ftp://hooks.example.com/relmon"}},
		"(root).notification.webhooks[0]",
	))
	t.Run("credentials without secret", theory(
		when{replace: [2]string{"callbackClientSecret: ${CALLBACK_CLIENT_SECRET}", "callbackClientSecret: ''"}},
		"(root).bundle.callbackClientSecret is required",
	))
}

func TestLoadServiceConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relmond.yaml")
	if err := os.WriteFile(path, []byte(`
submission:
  host: lxplus.example.com
  username: pdmvserv
  password: ${RELMON_TEST_PASSWORD}
  remoteDirectory: relmon
  localDirectory: /tmp/relmon
database:
  driver: sqlite
  dsn: /tmp/relmon.sqlite
bundle:
  cmsswRelease: CMSSW_14_0_0
  webLocation: /eos/project/relmon
  callbackURL: http://localhost:8080/api/update
`), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RELMON_TEST_PASSWORD", "from-env")

	result := try.To(service.LoadServiceConfig(path)).OrFatal(t)
	if actual := result.Submission().Password(); actual != "from-env" {
		t.Errorf(".submission.password: %s", actual)
	}
	if actual := result.Database().Driver(); actual != service.SQLite {
		t.Errorf(".database.driver: %s", actual)
	}
}
