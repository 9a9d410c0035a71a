package cli

import (
	"github.com/spf13/cobra"

	"rnseaudit/internal/config"
	"rnseaudit/internal/core"
	"rnseaudit/internal/merkle"
	"rnseaudit/internal/orchestrator"
)

// runFlags are the flags that describe a run. They override configuration.
type runFlags struct {
	baseSeed    string
	seeds       []string
	streams     int
	ticks       int
	maxParallel int
	params      core.Params
	batchSize   int
	policy      string
}

func (f *runFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	def := core.DefaultParams()
	fs.StringVar(&f.baseSeed, "seed", "", "base seed; stream i uses seed+i*0x1000")
	fs.StringSliceVar(&f.seeds, "seeds", nil, "explicit comma-separated stream seeds (overrides --seed/--streams)")
	fs.IntVar(&f.streams, "streams", 0, "number of streams derived from the base seed")
	fs.IntVar(&f.ticks, "ticks", 0, "ticks per stream")
	fs.IntVar(&f.maxParallel, "max-parallel", 0, "maximum concurrently generating streams (0 = one per stream)")
	fs.Float64Var(&f.params.Tau, "tau", def.Tau, "acceptance threshold")
	fs.IntVar(&f.params.Q, "q", def.Q, "reweighting period")
	fs.Float64Var(&f.params.Alpha, "alpha", def.Alpha, "smoothing factor")
	fs.IntVar(&f.params.Window, "window", def.Window, "divergence reference window")
	fs.Float64Var(&f.params.Scale, "scale", def.Scale, "walk box scale")
	fs.IntVar(&f.batchSize, "batch-size", 0, "Merkle batch size R (0 disables commitment)")
	fs.StringVar(&f.policy, "policy", "", "partial final batch policy: strict|pad")
}

// apply overlays the flags that were set on cfg and revalidates it.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()
	if fs.Changed("seed") {
		s, err := config.ParseSeed(f.baseSeed)
		if err != nil {
			return invalidInvocationf("--seed: %v", err)
		}
		cfg.Run.BaseSeed = s
		cfg.Run.Seeds = nil
	}
	if fs.Changed("seeds") {
		cfg.Run.Seeds = nil
		for _, raw := range f.seeds {
			s, err := config.ParseSeed(raw)
			if err != nil {
				return invalidInvocationf("--seeds: %v", err)
			}
			cfg.Run.Seeds = append(cfg.Run.Seeds, s)
		}
	}
	if fs.Changed("streams") {
		cfg.Run.Streams = f.streams
	}
	if fs.Changed("ticks") {
		cfg.Run.Ticks = f.ticks
	}
	if fs.Changed("max-parallel") {
		cfg.Run.MaxParallel = f.maxParallel
	}
	if fs.Changed("tau") {
		cfg.Params.Tau = f.params.Tau
	}
	if fs.Changed("q") {
		cfg.Params.Q = f.params.Q
	}
	if fs.Changed("alpha") {
		cfg.Params.Alpha = f.params.Alpha
	}
	if fs.Changed("window") {
		cfg.Params.Window = f.params.Window
	}
	if fs.Changed("scale") {
		cfg.Params.Scale = f.params.Scale
	}
	if fs.Changed("batch-size") {
		cfg.Commit.BatchSize = f.batchSize
	}
	if fs.Changed("policy") {
		cfg.Commit.Policy = f.policy
	}
	return cfg.Validate()
}

// requestFor builds the orchestrator request described by cfg.
func requestFor(cfg config.Config) orchestrator.Request {
	return orchestrator.Request{
		Seeds:     cfg.StreamSeeds(),
		Ticks:     cfg.Run.Ticks,
		Params:    cfg.Params,
		BatchSize: cfg.Commit.BatchSize,
		Policy:    merkle.PadPolicy(cfg.Commit.Policy),
	}
}
