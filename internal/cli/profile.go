package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rnseaudit/internal/audit"
	"rnseaudit/internal/core"
	"rnseaudit/internal/merkle"
	"rnseaudit/internal/prng"
	"rnseaudit/internal/resolver"
	"rnseaudit/internal/spn"
	"rnseaudit/internal/tracker"
)

type profileReport struct {
	Profile        string       `json:"profile"`
	Shifts         [3]int       `json:"xorshift_shifts"`
	SPN            string       `json:"spn"`
	SPNRounds      int          `json:"spn_rounds"`
	SPNRoundKey    string       `json:"spn_round_key_base"`
	ResolverTag    string       `json:"resolver_tag"`
	Labels         []core.Label `json:"labels"`
	InitialC       float64      `json:"initial_complexity"`
	WarmupRef      float64      `json:"warmup_reference"`
	FloatPrecision int          `json:"float_precision"`
	HeadTag        string       `json:"merkle_head_tag"`
	PadTag         string       `json:"merkle_pad_tag"`
	DefaultSeed    string       `json:"default_seed"`
	SeedStride     string       `json:"seed_stride"`
	DefaultParams  core.Params  `json:"default_params"`
}

func (a *app) profileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Print the conformance constants every digest depends on",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.printJSON(profileReport{
				Profile:        core.ProfileVersion,
				Shifts:         [3]int{prng.ShiftA, prng.ShiftB, prng.ShiftC},
				SPN:            spn.Version,
				SPNRounds:      spn.Rounds,
				SPNRoundKey:    fmt.Sprintf("%#x", uint64(spn.RoundKeyBase)),
				ResolverTag:    resolver.DomainTag,
				Labels:         core.Labels(),
				InitialC:       tracker.InitialComplexity,
				WarmupRef:      tracker.WarmupReference,
				FloatPrecision: audit.FloatPrecision,
				HeadTag:        merkle.HeadTag,
				PadTag:         merkle.PadTag,
				DefaultSeed:    fmt.Sprintf("%#x", core.DefaultSeed),
				SeedStride:     fmt.Sprintf("%#x", core.SeedStride),
				DefaultParams:  core.DefaultParams(),
			})
		},
	}
}
