package service

import (
	"fmt"
	"net/url"
	"time"

	"github.com/opst/relmon/pkg/recurring"
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `pkg/configs/service.XxxMarshall` are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

type ServiceConfigMarshall struct {
	Server       *ServerConfigMarshall       `yaml:"server"`
	Tick         *TickConfigMarshall         `yaml:"tick"`
	Submission   *SubmissionConfigMarshall   `yaml:"submission"`
	Database     *DatabaseConfigMarshall     `yaml:"database"`
	Bundle       *BundleConfigMarshall       `yaml:"bundle"`
	Notification *NotificationConfigMarshall `yaml:"notification"`
	Callback     *CallbackConfigMarshall     `yaml:"callback,omitempty"`
}

var _ Marshalled[*ServiceConfig] = &ServiceConfigMarshall{}

func (s *ServiceConfigMarshall) trySeal(path string) *ServiceConfig {
	server := s.Server
	if server == nil {
		server = &ServerConfigMarshall{}
	}
	tick := s.Tick
	if tick == nil {
		tick = &TickConfigMarshall{}
	}
	notification := s.Notification
	if notification == nil {
		notification = &NotificationConfigMarshall{}
	}

	var callback *CallbackConfig
	if s.Callback != nil {
		callback = s.Callback.trySeal(path + ".callback")
	}

	return &ServiceConfig{
		server:       server.trySeal(path + ".server"),
		tick:         tick.trySeal(path + ".tick"),
		submission:   nonnil(s.Submission, path+".submission").trySeal(path + ".submission"),
		database:     nonnil(s.Database, path+".database").trySeal(path + ".database"),
		bundle:       nonnil(s.Bundle, path+".bundle").trySeal(path + ".bundle"),
		notification: notification.trySeal(path + ".notification"),
		callback:     callback,
	}
}

const DefaultAdminGroup = "cms-ppd-pdmv-val-admin-pdmv"

type ServerConfigMarshall struct {
	Host            string   `yaml:"host,omitempty"`
	Port            int      `yaml:"port,omitempty"`
	LogLevel        string   `yaml:"loglevel,omitempty"`
	AdminGroup      string   `yaml:"adminGroup,omitempty"`
	ServiceAccounts []string `yaml:"serviceAccounts,omitempty"`
}

func (s *ServerConfigMarshall) trySeal(path string) *ServerConfig {
	return &ServerConfig{
		host:            orDefault(s.Host, "0.0.0.0"),
		port:            orDefault(s.Port, 8080),
		logLevel:        orDefault(s.LogLevel, "info"),
		adminGroup:      orDefault(s.AdminGroup, DefaultAdminGroup),
		serviceAccounts: append([]string{}, s.ServiceAccounts...),
	}
}

type TickConfigMarshall struct {
	Policy  string `yaml:"policy,omitempty"`
	Timeout string `yaml:"timeout,omitempty"`
}

func (t *TickConfigMarshall) trySeal(path string) *TickConfig {
	policy, err := recurring.ParsePolicy(orDefault(t.Policy, "forever:10m"))
	if err != nil {
		panic(fmt.Errorf("%s.policy: %w", path, err))
	}
	return &TickConfig{
		policy:  policy,
		timeout: duration(orDefault(t.Timeout, "1h"), path+".timeout"),
	}
}

type SubmissionConfigMarshall struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port,omitempty"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password,omitempty"`
	PrivateKeyFile string `yaml:"privateKeyFile,omitempty"`
	KnownHostsFile string `yaml:"knownHostsFile,omitempty"`
	PoolSize       int    `yaml:"poolSize,omitempty"`
	DialTimeout    string `yaml:"dialTimeout,omitempty"`

	RemoteDirectory string `yaml:"remoteDirectory"`
	LocalDirectory  string `yaml:"localDirectory"`
}

func (s *SubmissionConfigMarshall) trySeal(path string) *SubmissionConfig {
	if s.Password == "" && s.PrivateKeyFile == "" {
		panic(path + ".password or " + path + ".privateKeyFile is required")
	}
	return &SubmissionConfig{
		host:           required(s.Host, path+".host"),
		port:           orDefault(s.Port, 22),
		username:       required(s.Username, path+".username"),
		password:       s.Password,
		privateKeyFile: s.PrivateKeyFile,
		knownHostsFile: s.KnownHostsFile,
		poolSize:       orDefault(s.PoolSize, 1),
		dialTimeout:    duration(s.DialTimeout, path+".dialTimeout"),

		remoteDirectory: required(s.RemoteDirectory, path+".remoteDirectory"),
		localDirectory:  required(s.LocalDirectory, path+".localDirectory"),
	}
}

type DatabaseConfigMarshall struct {
	Driver           string `yaml:"driver"`
	DSN              string `yaml:"dsn,omitempty"`
	SchemaRepository string `yaml:"schemaRepository,omitempty"`
}

func (d *DatabaseConfigMarshall) trySeal(path string) *DatabaseConfig {
	driver := Driver(required(d.Driver, path+".driver"))
	switch driver {
	case Memory:
		return &DatabaseConfig{driver: driver}
	case SQLite:
		return &DatabaseConfig{driver: driver, dsn: required(d.DSN, path+".dsn")}
	case Postgres:
		return &DatabaseConfig{
			driver:           driver,
			dsn:              required(d.DSN, path+".dsn"),
			schemaRepository: required(d.SchemaRepository, path+".schemaRepository"),
		}
	}
	panic(fmt.Sprintf(
		"%s.driver: unknown driver %s (should be one of -- %s|%s|%s)",
		path, driver, Postgres, SQLite, Memory,
	))
}

type BundleConfigMarshall struct {
	CMSSWRelease         string `yaml:"cmsswRelease"`
	WebLocation          string `yaml:"webLocation"`
	CallbackURL          string `yaml:"callbackURL"`
	GitSource            string `yaml:"gitSource,omitempty"`
	GitBranch            string `yaml:"gitBranch,omitempty"`
	CMSSWCustomRepo      string `yaml:"cmsswCustomRepo,omitempty"`
	CMSSWCustomBranch    string `yaml:"cmsswCustomBranch,omitempty"`
	CAFPool              bool   `yaml:"cafPool,omitempty"`
	CallbackCredentials  bool   `yaml:"callbackCredentials,omitempty"`
	ClientId             string `yaml:"clientId,omitempty"`
	CallbackClientId     string `yaml:"callbackClientId,omitempty"`
	CallbackClientSecret string `yaml:"callbackClientSecret,omitempty"`
	ProxyFile            string `yaml:"proxyFile,omitempty"`
}

func (b *BundleConfigMarshall) trySeal(path string) *BundleConfig {
	if (b.CMSSWCustomRepo == "") != (b.CMSSWCustomBranch == "") {
		panic(path + ".cmsswCustomRepo and " + path + ".cmsswCustomBranch should be given together")
	}
	conf := &BundleConfig{
		cmsswRelease:        required(b.CMSSWRelease, path+".cmsswRelease"),
		webLocation:         required(b.WebLocation, path+".webLocation"),
		callbackURL:         required(b.CallbackURL, path+".callbackURL"),
		gitSource:           orDefault(b.GitSource, "https://github.com/cms-PdmV/relmonservice2.git"),
		gitBranch:           orDefault(b.GitBranch, "master"),
		cmsswCustomRepo:     b.CMSSWCustomRepo,
		cmsswCustomBranch:   b.CMSSWCustomBranch,
		cafPool:             b.CAFPool,
		callbackCredentials: b.CallbackCredentials,
		clientId:            b.ClientId,
		callbackClientId:    b.CallbackClientId,
		callbackSecret:      b.CallbackClientSecret,
		proxyFile:           b.ProxyFile,
	}
	if conf.callbackCredentials {
		required(conf.callbackClientId, path+".callbackClientId")
		required(conf.callbackSecret, path+".callbackClientSecret")
	}
	return conf
}

type NotificationConfigMarshall struct {
	SMTP       *SMTPConfigMarshall `yaml:"smtp,omitempty"`
	ReportsURL string              `yaml:"reportsURL,omitempty"`
	ServiceURL string              `yaml:"serviceURL,omitempty"`
	Webhooks   []string            `yaml:"webhooks,omitempty"`
}

func (n *NotificationConfigMarshall) trySeal(path string) *NotificationConfig {
	var smtp *SMTPConfig
	if n.SMTP != nil {
		smtp = n.SMTP.trySeal(path + ".smtp")
	}
	hooks := make([]*url.URL, len(n.Webhooks))
	for i, h := range n.Webhooks {
		u, err := url.Parse(h)
		if err != nil {
			panic(fmt.Errorf("%s.webhooks[%d]: %w", path, i, err))
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			panic(fmt.Sprintf("%s.webhooks[%d]: should be http(s) URL: %s", path, i, h))
		}
		hooks[i] = u
	}
	return &NotificationConfig{
		smtp:       smtp,
		reportsURL: n.ReportsURL,
		serviceURL: n.ServiceURL,
		webhooks:   hooks,
	}
}

type SMTPConfigMarshall struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port,omitempty"`
	From     string `yaml:"from"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	TLS      bool   `yaml:"tls,omitempty"`
}

func (s *SMTPConfigMarshall) trySeal(path string) *SMTPConfig {
	return &SMTPConfig{
		host:     required(s.Host, path+".host"),
		port:     orDefault(s.Port, 25),
		from:     required(s.From, path+".from"),
		username: s.Username,
		password: s.Password,
		tls:      s.TLS,
	}
}

type CallbackConfigMarshall struct {
	PublicKeyFile string `yaml:"publicKeyFile"`
	Audience      string `yaml:"audience,omitempty"`
	Issuer        string `yaml:"issuer,omitempty"`
}

func (c *CallbackConfigMarshall) trySeal(path string) *CallbackConfig {
	return &CallbackConfig{
		publicKeyFile: required(c.PublicKeyFile, path+".publicKeyFile"),
		audience:      c.Audience,
		issuer:        c.Issuer,
	}
}

func duration(s string, path string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Errorf("%s: %w", path, err))
	}
	if d < 0 {
		panic(path + " should not be negative")
	}
	return d
}

func orDefault[T comparable](v T, def T) T {
	if v == *new(T) {
		return def
	}
	return v
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}
