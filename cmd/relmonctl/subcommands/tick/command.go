package tick

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/opst/relmon/cmd/relmonctl/subcommands/common"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Server  string        `flag:"server" alias:"s" help:"Base URL of the RelMon service."`
	Timeout time.Duration `flag:"timeout" help:"Timeout of the request."`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"wake the RelMon service up",
		Flag{Server: "http://localhost:8000", Timeout: 30 * time.Second},
		flarc.Args{},
		common.NewTask(Task(nil)),
		flarc.WithDescription(`
Request the service to run its tick now, instead of waiting the next schedule.

Intended to be run from cron on the service host.
`),
	)
}

// Task returns the tick task. If hc is nil, a client with --timeout is used.
func Task(hc *http.Client) common.Task[Flag] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		cl flarc.Commandline[Flag],
		_ []any,
	) error {
		flags := cl.Flags()
		if flags.Server == "" {
			return fmt.Errorf("%w: --server is required", flarc.ErrUsage)
		}
		target, err := url.JoinPath(flags.Server, "api", "tick")
		if err != nil {
			return fmt.Errorf("%w: --server: %w", flarc.ErrUsage, err)
		}

		client := hc
		if client == nil {
			client = &http.Client{Timeout: flags.Timeout}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode < 200 || 300 <= resp.StatusCode {
			return fmt.Errorf("tick is rejected: %s: %s", resp.Status, body)
		}
		logger.Printf("ticked: %s", body)
		return nil
	}
}
