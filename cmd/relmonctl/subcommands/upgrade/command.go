package upgrade

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"

	"github.com/opst/relmon/cmd/relmonctl/subcommands/common"
	kpool "github.com/opst/relmon/pkg/db/postgres/pool"
	"github.com/opst/relmon/pkg/db/postgres/schema"
	"github.com/youta-t/flarc"
)

type Flag struct {
	DSN string `flag:"dsn" help:"Connection string of the database. When given, --host, --port, --user, --pass and --database are ignored."`

	Host     string `flag:"host" help:"The host of the database."`
	Port     int    `flag:"port" help:"The port of the database."`
	User     string `flag:"user" help:"The user of the database."`
	Password string `flag:"pass" help:"The password of the database."`
	Database string `flag:"database" help:"The name of the database."`

	Schema string `flag:"schema" help:"The path to the schema repository directory."`
	Check  bool   `flag:"check" help:"Do not upgrade. Fail if the schema is outdated."`
}

// ConnString returns DSN, or builds one from the other flags.
func (f Flag) ConnString() (string, error) {
	if f.DSN != "" {
		return f.DSN, nil
	}
	if f.Host == "" || f.Database == "" {
		return "", fmt.Errorf("%w: --dsn, or --host and --database are required", flarc.ErrUsage)
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   f.Host,
		Path:   "/" + f.Database,
	}
	if f.Port != 0 {
		u.Host = f.Host + ":" + strconv.Itoa(f.Port)
	}
	if f.User != "" {
		u.User = url.UserPassword(f.User, f.Password)
	}
	return u.String(), nil
}

// ErrOutdated is returned with --check when the database needs upgrade.
var ErrOutdated = errors.New("schema is outdated")

type Upgrader interface {
	Version(ctx context.Context) (int, error)
	Latest() (int, error)
	Upgrade(ctx context.Context) error
}

// Open connects to the database. The returned function releases the connection.
type Open func(ctx context.Context, dsn string, repository string) (Upgrader, func(), error)

func OpenPostgres(ctx context.Context, dsn string, repository string) (Upgrader, func(), error) {
	pool, err := kpool.Connect(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return schema.New(pool, repository), pool.Close, nil
}

func New(getenv func(string) string) (flarc.Command, error) {
	port := 5432
	if p, err := strconv.Atoi(getenv("DB_PORT")); err == nil {
		port = p
	}
	return flarc.NewCommand(
		"database schema upgrader",
		Flag{
			DSN:      getenv("RELMON_DSN"),
			Host:     getenv("DB_HOST"),
			Port:     port,
			User:     getenv("DB_USER"),
			Password: getenv("DB_PASSWORD"),
			Database: getenv("DB_NAME"),
			Schema:   getenv("RELMON_SCHEMA"),
		},
		flarc.Args{},
		common.NewTask(Task(OpenPostgres)),
		flarc.WithDescription(`
Apply schema versions in the repository which are newer than the database.

Defaults of flags are read from environment variables:
RELMON_DSN, DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME and RELMON_SCHEMA.
`),
	)
}

func Task(open Open) common.Task[Flag] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		cl flarc.Commandline[Flag],
		_ []any,
	) error {
		flags := cl.Flags()
		if flags.Schema == "" {
			return fmt.Errorf("%w: --schema is required", flarc.ErrUsage)
		}
		dsn, err := flags.ConnString()
		if err != nil {
			return err
		}

		s, release, err := open(ctx, dsn, flags.Schema)
		if err != nil {
			return err
		}
		defer release()

		current, err := s.Version(ctx)
		if err != nil {
			return err
		}
		latest, err := s.Latest()
		if err != nil {
			return err
		}
		if latest <= current {
			logger.Printf("schema is up to date: version %d", current)
			return nil
		}
		if flags.Check {
			return fmt.Errorf("%w: %d (in db) < %d (in repository)", ErrOutdated, current, latest)
		}

		logger.Printf("upgrading schema: version %d -> %d", current, latest)
		if err := s.Upgrade(ctx); err != nil {
			return err
		}
		logger.Printf("schema is upgraded")
		return nil
	}
}
