package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"syscall"

	subnotify "github.com/opst/relmon/cmd/relmonctl/subcommands/notify"
	subpair "github.com/opst/relmon/cmd/relmonctl/subcommands/pair"
	subtick "github.com/opst/relmon/cmd/relmonctl/subcommands/tick"
	subupgrade "github.com/opst/relmon/cmd/relmonctl/subcommands/upgrade"
	"github.com/opst/relmon/pkg/utils/try"
	"github.com/youta-t/flarc"
)

func main() {
	name := path.Base(os.Args[0])
	logger := log.New(os.Stderr, fmt.Sprintf("[%s] ", name), log.LstdFlags)

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer cancel()

	notify := try.To(subnotify.New(os.LookupEnv)).OrFatal(logger)
	pair := try.To(subpair.New()).OrFatal(logger)
	tick := try.To(subtick.New()).OrFatal(logger)
	upgrade := try.To(subupgrade.New(os.Getenv)).OrFatal(logger)

	relmonctl := try.To(
		flarc.NewCommandGroup(
			"RelMon operator and worker commands",
			struct{}{},
			flarc.WithSubcommand("notify", notify),
			flarc.WithSubcommand("pair", pair),
			flarc.WithSubcommand("tick", tick),
			flarc.WithSubcommand("upgrade", upgrade),
		),
	).OrFatal(logger)

	os.Exit(flarc.Run(ctx, relmonctl, flarc.WithHelp(true)))
}
