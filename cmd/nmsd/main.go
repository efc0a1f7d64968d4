package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"beacon/internal/config"
	"beacon/internal/logger"
	"beacon/internal/models"
	"beacon/internal/probe"
	"beacon/internal/processor"
	"beacon/internal/snmp"
)

const name = "nmsd"

// overridden during build with ldflags
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// root flags are inherited by subcommands
var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "path to the YAML config file",
	Sources: cli.EnvVars("NMSD_CONFIG"),
}

var logLevelFlag = &cli.StringFlag{
	Name:    "log-level",
	Usage:   "log level (debug, info, warn, error)",
	Sources: cli.EnvVars("NMSD_LOG_LEVEL"),
}

func rootCmd() *cli.Command {
	return &cli.Command{
		Name:    name,
		Usage:   "network device monitoring daemon",
		Version: version,
		Flags: []cli.Flag{
			configFlag,
			logLevelFlag,
			&cli.StringFlag{
				Name:    "http-addr",
				Usage:   "listen address of the ops API",
				Sources: cli.EnvVars("NMSD_HTTP_ADDR"),
			},
		},
		Commands: []*cli.Command{probeCmd()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr := cmd.String("http-addr"); addr != "" {
				cfg.HTTP.Addr = addr
			}

			log := logger.WithComponent("main")
			log.Info().Str("version", version).Str("addr", cfg.HTTP.Addr).Msg("starting")

			if err := processor.New(cfg).Run(ctx); err != nil {
				return fmt.Errorf("processor exited: %w", err)
			}
			log.Info().Msg("exited")
			return nil
		},
	}
}

func probeCmd() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     "Classify one address once and exit",
		ArgsUsage: "<address>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "protocol",
				Usage: "icmp, tcp, snmp or auto",
				Value: string(models.ProtocolAuto),
			},
			&cli.Uint16Flag{
				Name:  "port",
				Usage: "port for tcp tests",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "timeout of each attempt",
				Value: 3 * time.Second,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			address := cmd.Args().First()
			if address == "" {
				return fmt.Errorf("address is required")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			session := snmp.NewSession()
			defer session.Close()
			for _, c := range cfg.Credentials {
				if err := session.AddCredential(c); err != nil {
					return fmt.Errorf("credential %q: %w", c.Name, err)
				}
			}

			p := probe.New(session, probe.Config{
				Timeout:    cmd.Duration("timeout"),
				Privileged: cfg.Polling.ICMPPrivileged,
			})
			c := p.Test(ctx, probe.Request{
				Address:  address,
				Protocol: models.Protocol(cmd.String("protocol")),
				Port:     cmd.Uint16("port"),
				Profiles: cfg.Profiles,
			})

			if !c.Success {
				return fmt.Errorf("%s did not answer over %s", address, c.Protocol)
			}
			if c.Profile != "" {
				fmt.Printf("%s answers over %s with profile %s\n", address, c.Protocol, c.Profile)
				return nil
			}
			fmt.Printf("%s answers over %s\n", address, c.Protocol)
			return nil
		},
	}
}

// loadConfig reads --config when given, otherwise uses defaults, and
// initializes logging.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if level := cmd.String("log-level"); level != "" {
		cfg.LogLevel = level
	}

	logger.Init(cfg.LogLevel)
	return cfg, nil
}
