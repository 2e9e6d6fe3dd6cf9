package engine

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/privata-io/consent-service/api"
	"github.com/privata-io/consent-service/pkg"
	"github.com/privata-io/consent-service/pkg/config"
)

// Engine bundles a service's lifecycle hooks, its command tree and its HTTP
// routes so the root command can assemble them uniformly.
type Engine struct {
	Name      string
	Cmd       *cobra.Command
	FlagSet   *pflag.FlagSet
	Configure func() error
	Start     func() error
	Shutdown  func() error
	Routes    func(router api.EchoRouter)
}

// NewConsentCoreEngine wires the consent core behind an engine.
func NewConsentCoreEngine(cfg config.Config) (*Engine, *pkg.ConsentService) {
	cl := pkg.NewConsentService(cfg)

	return &Engine{
		Name:      "ConsentCore",
		Cmd:       cmd(cl),
		Configure: cl.Configure,
		Start:     cl.Start,
		FlagSet:   flagSet(),
		Shutdown:  cl.Shutdown,
		Routes: func(router api.EchoRouter) {
			api.RegisterHandlers(router, api.Wrapper{Cl: cl})
		},
	}, cl
}

func flagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("consent", pflag.ContinueOnError)
	flags.String("config", "", "Path to the yaml configuration file")
	return flags
}

func cmd(cl *pkg.ConsentService) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consent-service",
		Short: "consent core commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "sweep",
		Short:   "run one anomaly sweep over all active profiles",
		Example: "sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.MonitorTick(context.Background())
		},
	})
	return cmd
}
