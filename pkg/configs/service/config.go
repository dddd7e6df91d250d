package service

import (
	"net/url"
	"time"

	"github.com/opst/relmon/pkg/recurring"
)

// ServiceConfig is the readonly configuration of relmond.
//
// To get an instance, use Unmarshal or LoadServiceConfig.
type ServiceConfig struct {
	server       *ServerConfig
	tick         *TickConfig
	submission   *SubmissionConfig
	database     *DatabaseConfig
	bundle       *BundleConfig
	notification *NotificationConfig
	callback     *CallbackConfig
}

func (c *ServiceConfig) Server() *ServerConfig {
	return c.server
}

func (c *ServiceConfig) Tick() *TickConfig {
	return c.tick
}

func (c *ServiceConfig) Submission() *SubmissionConfig {
	return c.submission
}

func (c *ServiceConfig) Database() *DatabaseConfig {
	return c.database
}

func (c *ServiceConfig) Bundle() *BundleConfig {
	return c.bundle
}

func (c *ServiceConfig) Notification() *NotificationConfig {
	return c.notification
}

// Callback is nil when bearer tokens are not accepted.
func (c *ServiceConfig) Callback() *CallbackConfig {
	return c.callback
}

type ServerConfig struct {
	host            string
	port            int
	logLevel        string
	adminGroup      string
	serviceAccounts []string
}

// host to listen. default = "0.0.0.0"
func (s *ServerConfig) Host() string {
	return s.host
}

// port to listen. default = 8080
func (s *ServerConfig) Port() int {
	return s.port
}

// one of debug, info, warn, error or off. default = "info"
func (s *ServerConfig) LogLevel() string {
	return s.logLevel
}

// members of this group can change RelMons.
func (s *ServerConfig) AdminGroup() string {
	return s.adminGroup
}

// logins which are allowed to post callbacks.
func (s *ServerConfig) ServiceAccounts() []string {
	return append([]string{}, s.serviceAccounts...)
}

type TickConfig struct {
	policy  recurring.Policy
	timeout time.Duration
}

// Policy of the tick loop. default = forever:10m
func (t *TickConfig) Policy() recurring.Policy {
	return t.policy
}

// Timeout of a tick. default = 1h
func (t *TickConfig) Timeout() time.Duration {
	return t.timeout
}

type SubmissionConfig struct {
	host           string
	port           int
	username       string
	password       string
	privateKeyFile string
	knownHostsFile string
	poolSize       int
	dialTimeout    time.Duration

	remoteDirectory string
	localDirectory  string
}

func (s *SubmissionConfig) Host() string {
	return s.host
}

func (s *SubmissionConfig) Port() int {
	return s.port
}

func (s *SubmissionConfig) Username() string {
	return s.username
}

func (s *SubmissionConfig) Password() string {
	return s.password
}

func (s *SubmissionConfig) PrivateKeyFile() string {
	return s.privateKeyFile
}

func (s *SubmissionConfig) KnownHostsFile() string {
	return s.knownHostsFile
}

func (s *SubmissionConfig) PoolSize() int {
	return s.poolSize
}

func (s *SubmissionConfig) DialTimeout() time.Duration {
	return s.dialTimeout
}

// directory on the submission host where bundles are placed.
func (s *SubmissionConfig) RemoteDirectory() string {
	return s.remoteDirectory
}

// directory where bundles are created before upload.
func (s *SubmissionConfig) LocalDirectory() string {
	return s.localDirectory
}

type Driver string

const (
	Postgres Driver = "postgres"
	SQLite   Driver = "sqlite"
	Memory   Driver = "memory"
)

type DatabaseConfig struct {
	driver           Driver
	dsn              string
	schemaRepository string
}

func (d *DatabaseConfig) Driver() Driver {
	return d.driver
}

// data source name. Empty for memory.
func (d *DatabaseConfig) DSN() string {
	return d.dsn
}

// directory of schema files. Used by postgres.
func (d *DatabaseConfig) SchemaRepository() string {
	return d.schemaRepository
}

type BundleConfig struct {
	cmsswRelease        string
	webLocation         string
	callbackURL         string
	gitSource           string
	gitBranch           string
	cmsswCustomRepo     string
	cmsswCustomBranch   string
	cafPool             bool
	callbackCredentials bool
	clientId            string
	callbackClientId    string
	callbackSecret      string
	proxyFile           string
}

func (b *BundleConfig) CMSSWRelease() string {
	return b.cmsswRelease
}

// where reports are published, on the submission host.
func (b *BundleConfig) WebLocation() string {
	return b.webLocation
}

// where the worker posts updates.
func (b *BundleConfig) CallbackURL() string {
	return b.callbackURL
}

func (b *BundleConfig) GitSource() string {
	return b.gitSource
}

func (b *BundleConfig) GitBranch() string {
	return b.gitBranch
}

func (b *BundleConfig) CMSSWCustomRepo() string {
	return b.cmsswCustomRepo
}

func (b *BundleConfig) CMSSWCustomBranch() string {
	return b.cmsswCustomBranch
}

func (b *BundleConfig) CAFPool() bool {
	return b.cafPool
}

func (b *BundleConfig) CallbackCredentials() bool {
	return b.callbackCredentials
}

func (b *BundleConfig) ClientId() string {
	return b.clientId
}

func (b *BundleConfig) CallbackClientId() string {
	return b.callbackClientId
}

func (b *BundleConfig) CallbackClientSecret() string {
	return b.callbackSecret
}

func (b *BundleConfig) ProxyFile() string {
	return b.proxyFile
}

type NotificationConfig struct {
	smtp       *SMTPConfig
	reportsURL string
	serviceURL string
	webhooks   []*url.URL
}

// SMTP is nil when mails are not sent.
func (n *NotificationConfig) SMTP() *SMTPConfig {
	return n.smtp
}

func (n *NotificationConfig) ReportsURL() string {
	return n.reportsURL
}

func (n *NotificationConfig) ServiceURL() string {
	return n.serviceURL
}

func (n *NotificationConfig) Webhooks() []*url.URL {
	ret := make([]*url.URL, len(n.webhooks))
	for i, u := range n.webhooks {
		c := *u
		ret[i] = &c
	}
	return ret
}

type SMTPConfig struct {
	host     string
	port     int
	from     string
	username string
	password string
	tls      bool
}

func (s *SMTPConfig) Host() string {
	return s.host
}

// default = 25
func (s *SMTPConfig) Port() int {
	return s.port
}

func (s *SMTPConfig) From() string {
	return s.from
}

func (s *SMTPConfig) Username() string {
	return s.username
}

func (s *SMTPConfig) Password() string {
	return s.password
}

// TLS is mandatory when true. Otherwise it is opportunistic.
func (s *SMTPConfig) TLS() bool {
	return s.tls
}

type CallbackConfig struct {
	publicKeyFile string
	audience      string
	issuer        string
}

// PEM file of RSA public key verifying bearer tokens.
func (c *CallbackConfig) PublicKeyFile() string {
	return c.publicKeyFile
}

// expected "aud" claim. Empty means not checked.
func (c *CallbackConfig) Audience() string {
	return c.audience
}

// expected "iss" claim. Empty means not checked.
func (c *CallbackConfig) Issuer() string {
	return c.issuer
}
