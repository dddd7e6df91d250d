package pair

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	glog "github.com/labstack/gommon/log"
	"github.com/opst/relmon/cmd/relmonctl/subcommands/common"
	"github.com/opst/relmon/pkg/pairing"
	"github.com/youta-t/flarc"
)

type Flag struct {
	RelMon   string `flag:"relmon" alias:"r" help:"Path to the job description (RELMON_<id>.json)."`
	Category string `flag:"category" help:"Name of the category to be paired."`
	Verbose  bool   `flag:"verbose" alias:"v" help:"Log how items are paired."`
}

// Pairs are file names to be compared. n-th reference is compared with n-th target.
type Pairs struct {
	Reference []string `json:"reference"`
	Target    []string `json:"target"`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"pair reference and target items in a category",
		Flag{},
		flarc.Args{},
		common.NewTask(Task()),
		flarc.WithDescription(`
Decide which reference file is compared with which target file in a category.

Matches (and "no_match" for automatic pairing) are written back to the job description.
File names of pairs are printed as JSON.
`),
	)
}

func Task() common.Task[Flag] {
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
		if flags.Category == "" {
			return fmt.Errorf("%w: --category is required", flarc.ErrUsage)
		}

		relmon, err := common.ReadRelMon(flags.RelMon)
		if err != nil {
			return err
		}
		category := relmon.Category(flags.Category)
		if category == nil {
			return fmt.Errorf(
				"%w: %s does not have category %s (it has %v)",
				flarc.ErrUsage, relmon, flags.Category, relmon.CategoryNames(),
			)
		}

		engineLog := glog.New("[pairing]")
		engineLog.SetOutput(cl.Stderr())
		engineLog.SetLevel(glog.WARN)
		if flags.Verbose {
			engineLog.SetLevel(glog.DEBUG)
		}

		refs, tars := pairing.New(pairing.WithLogger(engineLog)).Pair(category)
		if err := common.WriteRelMon(flags.RelMon, relmon); err != nil {
			return err
		}
		logger.Printf("%s: %d pairs in %s", relmon, len(refs), category.Name)

		enc := json.NewEncoder(cl.Stdout())
		enc.SetIndent("", "    ")
		return enc.Encode(Pairs{Reference: refs, Target: tars})
	}
}
