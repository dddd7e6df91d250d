package notify

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/opst/relmon/cmd/relmonctl/subcommands/common"
	"github.com/opst/relmon/pkg/callback"
	"github.com/opst/relmon/pkg/domain"
	"github.com/youta-t/flarc"
)

type Flag struct {
	RelMon              string `flag:"relmon" alias:"r" help:"Path to the job description (RELMON_<id>.json)."`
	Callback            string `flag:"callback" help:"URL to be notified."`
	NotifyDone          bool   `flag:"notifydone" help:"Mark the RelMon done, unless it has failed."`
	CallbackCredentials bool   `flag:"callback-credentials" help:"Send a bearer token issued by client credentials grant."`
	TokenURL            string `flag:"token-url" help:"Token endpoint for --callback-credentials."`
}

// environment variables giving credentials.
const (
	EnvClientId     = "CALLBACK_CLIENT_ID"
	EnvClientSecret = "CALLBACK_CLIENT_SECRET"
	EnvAudience     = "APPLICATION_CLIENT_ID"
)

func New(lookupEnv func(string) (string, bool)) (flarc.Command, error) {
	return flarc.NewCommand(
		"report progress of a RelMon to the service",
		Flag{
			TokenURL: callback.DefaultTokenURL,
		},
		flarc.Args{},
		common.NewTask(Task(lookupEnv, nil)),
		flarc.WithDescription(`
Post the job description to the callback URL.

With --notifydone, the status becomes "done" (unless "failed") and is written back
to the job description before posting.

With --callback-credentials, the client id and secret are read from
`+EnvClientId+` and `+EnvClientSecret+`, and the audience from `+EnvAudience+`.
`),
	)
}

// Task notifies. When hc is nil, the default client of package callback is used.
func Task(lookupEnv func(string) (string, bool), hc *http.Client) common.Task[Flag] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		cl flarc.Commandline[Flag],
		_ []any,
	) error {
		flags := cl.Flags()
		if flags.RelMon == "" {
			return fmt.Errorf("%w: --relmon is required", flarc.ErrUsage)
		}
		if flags.Callback == "" {
			return fmt.Errorf("%w: --callback is required", flarc.ErrUsage)
		}

		relmon, err := common.ReadRelMon(flags.RelMon)
		if err != nil {
			return err
		}

		if flags.NotifyDone {
			if relmon.Status != domain.Failed {
				relmon.Status = domain.Done
			}
			if err := common.WriteRelMon(flags.RelMon, relmon); err != nil {
				return err
			}
		}

		options := []callback.Option{}
		if hc != nil {
			options = append(options, callback.WithHTTPClient(hc))
		}
		if flags.CallbackCredentials {
			cred := callback.Credentials{TokenURL: flags.TokenURL}
			for env, dest := range map[string]*string{
				EnvClientId:     &cred.ClientId,
				EnvClientSecret: &cred.ClientSecret,
				EnvAudience:     &cred.Audience,
			} {
				v, ok := lookupEnv(env)
				if !ok || v == "" {
					return fmt.Errorf("%w: %s is required with --callback-credentials", flarc.ErrUsage, env)
				}
				*dest = v
			}
			options = append(options, callback.WithCredentials(cred))
		}

		if err := callback.New(flags.Callback, options...).Notify(ctx, relmon); err != nil {
			return err
		}
		logger.Printf("%s is notified as %s", relmon, relmon.Status)
		return nil
	}
}
