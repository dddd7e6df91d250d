package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	glog "github.com/labstack/gommon/log"
	"github.com/opst/relmon/pkg/bundle"
	"github.com/opst/relmon/pkg/callback"
	"github.com/opst/relmon/pkg/configs/service"
	"github.com/opst/relmon/pkg/controller"
	kpool "github.com/opst/relmon/pkg/db/postgres/pool"
	"github.com/opst/relmon/pkg/db/postgres/schema"
	kdb "github.com/opst/relmon/pkg/domain/relmon/db"
	"github.com/opst/relmon/pkg/domain/relmon/db/memory"
	kpg "github.com/opst/relmon/pkg/domain/relmon/db/postgres"
	"github.com/opst/relmon/pkg/domain/relmon/db/sqlite"
	"github.com/opst/relmon/pkg/notify"
	rssh "github.com/opst/relmon/pkg/remote/ssh"
	"github.com/opst/relmon/pkg/utils/echoutil"
	"github.com/opst/relmon/pkg/utils/filewatch"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("RELMON_CONFIG"), "path to service config. default is $RELMON_CONFIG")
	loglevel := flag.String("loglevel", "", "log level. debug|info|warn|error|off. overrides config")
	flag.Parse()

	if *configPath == "" {
		log.Fatalln("-config or RELMON_CONFIG is required")
	}
	conf, err := service.LoadServiceConfig(*configPath)
	if err != nil {
		log.Fatalf("can not read configuration: %s", err)
	}
	level := conf.Server().LogLevel()
	if *loglevel != "" {
		level = *loglevel
	}
	logger := func(prefix string) *glog.Logger {
		l := glog.New(prefix)
		echoutil.SetLevel(l, level)
		return l
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctx, cancelWatch, err := filewatch.UntilModifyContext(ctx, *configPath)
	if err != nil {
		log.Fatalf("can not watch configuration: %s", err)
	}
	defer cancelWatch()

	store, ctx, closeStore, err := openStore(ctx, conf.Database())
	if err != nil {
		log.Fatalf("can not open database: %s", err)
	}
	defer closeStore()

	sub := conf.Submission()
	executor, err := rssh.New(
		rssh.Config{
			Host:           sub.Host(),
			Port:           sub.Port(),
			Username:       sub.Username(),
			Password:       sub.Password(),
			PrivateKeyFile: sub.PrivateKeyFile(),
			KnownHostsFile: sub.KnownHostsFile(),
			PoolSize:       sub.PoolSize(),
			DialTimeout:    sub.DialTimeout(),
		},
		rssh.WithLogger(logger("[ssh]")),
	)
	if err != nil {
		log.Fatalf("can not prepare connection to submission host: %s", err)
	}
	defer executor.Close()

	b := conf.Bundle()
	files := bundle.New(bundle.Config{
		LocalDirectory:       sub.LocalDirectory(),
		RemoteDirectory:      sub.RemoteDirectory(),
		WebLocation:          b.WebLocation(),
		CMSSWRelease:         b.CMSSWRelease(),
		GitSource:            b.GitSource(),
		GitBranch:            b.GitBranch(),
		CMSSWCustomRepo:      b.CMSSWCustomRepo(),
		CMSSWCustomBranch:    b.CMSSWCustomBranch(),
		CallbackURL:          b.CallbackURL(),
		CallbackCredentials:  b.CallbackCredentials(),
		CallbackClientId:     b.CallbackClientId(),
		CallbackClientSecret: b.CallbackClientSecret(),
		ClientId:             b.ClientId(),
		CAFPool:              b.CAFPool(),
		ProxyFile:            b.ProxyFile(),
	})

	notifier, err := newNotifier(conf.Notification(), logger("[notify]"))
	if err != nil {
		log.Fatalf("can not prepare notification: %s", err)
	}

	ctrl := controller.New(
		controller.Deps{Store: store, Remote: executor, Files: files, Notifier: notifier},
		controller.WithLogger(logger("[controller]")),
	)
	if err := ctrl.Configure(controller.Config{
		Policy:  conf.Tick().Policy(),
		Timeout: conf.Tick().Timeout(),
	}); err != nil {
		log.Fatalf("can not configure controller: %s", err)
	}

	auth := Auth{
		AdminGroup:      conf.Server().AdminGroup(),
		ServiceAccounts: conf.Server().ServiceAccounts(),
	}
	if cb := conf.Callback(); cb != nil {
		v, err := callback.LoadVerifier(cb.PublicKeyFile(), cb.Audience(), cb.Issuer())
		if err != nil {
			log.Fatalf("can not load callback key: %s", err)
		}
		auth.Verifier = v
	}

	e := BuildServer(ctrl, auth, level)
	e.Logger.SetPrefix("[http]")
	addr := net.JoinHostPort(conf.Server().Host(), strconv.Itoa(conf.Server().Port()))

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := ctrl.Start(gctx); err != nil {
			return err
		}
		<-ctrl.Done()
		if gctx.Err() == nil {
			return errors.New("tick loop is stopped unexpectedly")
		}
		return nil
	})
	eg.Go(func() error {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-gctx.Done()
		graceful, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		errs := []error{}
		if err := e.Shutdown(graceful); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
		if err := ctrl.Shutdown(graceful); err != nil && !errors.Is(err, controller.ErrNotStarted) {
			errs = append(errs, fmt.Errorf("controller: %w", err))
		}
		return errors.Join(errs...)
	})

	err = eg.Wait()
	if cause := context.Cause(ctx); cause != nil {
		log.Printf("stopped: %s", cause)
	}
	if err != nil {
		log.Fatalf("error: %s", err)
	}
}

// openStore connects to the database configured.
//
// For postgres, the returned context is canceled when the schema gets outdated.
func openStore(ctx context.Context, conf *service.DatabaseConfig) (kdb.RelMonInterface, context.Context, func(), error) {
	switch conf.Driver() {
	case service.Postgres:
		pool, err := kpool.Connect(ctx, conf.DSN())
		if err != nil {
			return nil, nil, nil, err
		}
		sctx, cancel := schema.New(pool, conf.SchemaRepository()).Context(ctx)
		if err := sctx.Err(); err != nil {
			cancel()
			pool.Close()
			return nil, nil, nil, fmt.Errorf("%w (run relmonctl upgrade)", context.Cause(sctx))
		}
		return kpg.New(pool), sctx, func() { cancel(); pool.Close() }, nil
	case service.SQLite:
		store, err := sqlite.Open(conf.DSN())
		if err != nil {
			return nil, nil, nil, err
		}
		return store, ctx, func() {}, nil
	default:
		return memory.New(), ctx, func() {}, nil
	}
}

func newNotifier(conf *service.NotificationConfig, logger *glog.Logger) (notify.Notifier, error) {
	ns := notify.Multi{}
	if smtp := conf.SMTP(); smtp != nil {
		m, err := notify.NewMail(
			notify.SMTPConfig{
				Host:     smtp.Host(),
				Port:     smtp.Port(),
				From:     smtp.From(),
				Username: smtp.Username(),
				Password: smtp.Password(),
				TLS:      smtp.TLS(),
			},
			conf.ReportsURL(), conf.ServiceURL(),
			notify.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		ns = append(ns, m)
	}
	if hooks := conf.Webhooks(); len(hooks) != 0 {
		ns = append(ns, notify.Web{URLs: hooks, Client: &http.Client{Timeout: 30 * time.Second}})
	}

	switch len(ns) {
	case 0:
		logger.Warn("no notification is configured")
		return notify.None{}, nil
	case 1:
		return ns[0], nil
	default:
		return ns, nil
	}
}
