package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	engine2 "github.com/privata-io/consent-service/engine"
	"github.com/privata-io/consent-service/pkg/config"
	"github.com/privata-io/consent-service/pkg/logger"
)

const confPort = "port"
const confInterface = "interface"
const confFile = "config"
const version = `Privata consent core v0.1 -- HEAD`

var (
	serverInterface string
	serverPort      int
	configFile      string
)

// Execute assembles the engine behind the root command and runs it. This is
// called by main.main(); it only needs to happen once.
func Execute() {
	// the engine needs its configuration before cobra parses anything, so
	// --config is pre-parsed from the raw arguments
	pre := pflag.NewFlagSet("pre", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.StringVar(&configFile, confFile, "", "")
	pre.Usage = func() {}
	_ = pre.Parse(os.Args[1:])

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	consentCoreEngine, _ := engine2.NewConsentCoreEngine(cfg)

	rootCommand := consentCoreEngine.Cmd
	rootCommand.PersistentFlags().StringVar(&configFile, confFile, "", "Path to the yaml configuration file")
	rootCommand.PersistentFlags().AddFlagSet(consentCoreEngine.FlagSet)

	serveCommand := &cobra.Command{
		Use:   "serve",
		Short: "Start the consent core as a standalone api server",
		Run: func(cmd *cobra.Command, args []string) {
			server := echo.New()
			server.HideBanner = true
			server.Use(middleware.Logger())
			consentCoreEngine.Routes(server)

			addr := fmt.Sprintf("%s:%d", serverInterface, serverPort)
			color.New(color.FgGreen, color.Bold).Fprintln(os.Stdout, version)
			color.New(color.FgCyan).Fprintf(os.Stdout, "listening on %s\n", addr)
			server.Logger.Fatal(server.Start(addr))
		},
	}
	serveCommand.Flags().StringVar(&serverInterface, confInterface, cfg.Server.Interface, "Server interface binding")
	serveCommand.Flags().IntVarP(&serverPort, confPort, "p", cfg.Server.Port, "Server listen port")
	rootCommand.AddCommand(serveCommand)

	if err := consentCoreEngine.Configure(); err != nil {
		panic(err)
	}
	if err := consentCoreEngine.Start(); err != nil {
		panic(err)
	}
	defer func() {
		if err := consentCoreEngine.Shutdown(); err != nil {
			logger.Logger().WithError(err).Error("shutdown failed")
		}
	}()

	if err := rootCommand.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
