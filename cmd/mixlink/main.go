package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/mixlink/internal/cliconfig"
	"github.com/bft-labs/mixlink/internal/configwatch"
	"github.com/bft-labs/mixlink/pkg/log"
	"github.com/bft-labs/mixlink/pkg/mixlink"
	"github.com/bft-labs/mixlink/pkg/volume"
	"github.com/bft-labs/mixlink/pkg/volume/platform"
)

const helpDescription = `
Show and control application volumes from a serial display device.

mixlink sends the master volume and the volumes of running applications to
the device as "name,volume,name,volume,..." lines and applies the
"index,volume" lines it sends back.

Configuration is read from $HOME/.mixlink/config.toml (or ./config.yaml),
then MIXLINK_* environment variables, then flags.
`

var exampleUsage = strings.TrimSpace(`
  mixlink start --port /dev/ttyACM0
  mixlink start --debug
  mixlink list-applications
  mixlink init-config
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// legacyConfigPath is where the configuration lived before the TOML layout.
const legacyConfigPath = "config.yaml"

type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	envFile string
	changed map[string]bool
	zlog    zerolog.Logger
	logger  log.Logger
}

func main() {
	c := &cli{
		cfg:  cliconfig.DefaultConfig(),
		zlog: cliconfig.Logger(),
	}

	root := &cobra.Command{
		Use:           "mixlink",
		Short:         "Sync application volumes with a serial display device",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.mixlink/config.toml)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "dotenv file with MIXLINK_* variables (default: ./.env if present)")
	root.PersistentFlags().StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "log level: debug, info, warn, error")

	root.AddCommand(c.startCommand(), c.listApplicationsCommand(), c.listDevicesCommand(), c.initConfigCommand())

	if err := root.Execute(); err != nil {
		c.zlog.Error().Err(err).Msg("mixlink")
		os.Exit(1)
	}
}

// resolvedConfigPath returns the file to load, or "" when there is none.
func (c *cli) resolvedConfigPath() string {
	if c.cfgPath != "" {
		return c.cfgPath
	}
	if p := cliconfig.DefaultConfigPath(); p != "" && cliconfig.FileExists(p) {
		return p
	}
	if cliconfig.FileExists(legacyConfigPath) {
		return legacyConfigPath
	}
	return ""
}

// load applies file, env and flag configuration in that order of increasing
// precedence, then validates.
func (c *cli) load(cmd *cobra.Command) error {
	c.changed = map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { c.changed[f.Name] = true })

	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else if cliconfig.FileExists(".env") {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}

	if p := c.resolvedConfigPath(); p != "" {
		fc, err := cliconfig.LoadFileConfig(p)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, c.changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(&c.cfg, c.changed); err != nil {
		return err
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	c.zlog = c.zlog.Level(log.ParseLevel(c.cfg.LogLevel))
	c.logger = log.NewZerologAdapterWithLogger(c.zlog)
	return nil
}

// reloadSettings rebuilds display settings from path on top of the
// configuration the process started with.
func (c *cli) reloadSettings(path string) (volume.Settings, error) {
	fc, err := cliconfig.LoadFileConfig(path)
	if err != nil {
		return volume.Settings{}, err
	}
	cfg := cliconfig.DefaultConfig()
	cfg.SerialPort, cfg.BaudRate, cfg.Debug = c.cfg.SerialPort, c.cfg.BaudRate, c.cfg.Debug
	if c.changed["max-apps"] {
		cfg.MaxApps = c.cfg.MaxApps
	}
	if err := cliconfig.ApplyFileConfig(&cfg, fc, c.changed); err != nil {
		return volume.Settings{}, err
	}
	if err := cliconfig.ApplyEnvConfig(&cfg, c.changed); err != nil {
		return volume.Settings{}, err
	}
	if err := cfg.Validate(); err != nil {
		return volume.Settings{}, err
	}
	return cfg.Settings(), nil
}

func (c *cli) startCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start communication with the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd); err != nil {
				return err
			}
			c.zlog.Info().Interface("config", c.cfg).Msg("configuration")

			r, err := mixlink.New(c.cfg.RunnerConfig(),
				mixlink.WithLogger(c.logger),
				mixlink.WithEventHandler(stateLogger{logger: c.logger}),
			)
			if err != nil {
				return fmt.Errorf("create runner: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			if err := r.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}

			if p := c.resolvedConfigPath(); p != "" {
				w := configwatch.New(p, c.reloadSettings, r.UpdateSettings,
					configwatch.WithLogger(c.logger.With(log.String("component", "configwatch"))))
				go func() {
					if err := w.Run(ctx); err != nil {
						c.logger.Warn("config watcher disabled", log.Err(err))
					}
				}()
			}

			select {
			case <-sigCh:
				c.zlog.Info().Msg("received signal, stopping...")
				if err := r.Stop(); err != nil && !errors.Is(err, mixlink.ErrNotRunning) {
					return fmt.Errorf("stop: %w", err)
				}
			case <-r.Done():
			}

			st := r.Stats()
			c.logger.Info("session ended",
				log.Any("frames_sent", st.FramesSent),
				log.Any("updates_applied", st.UpdatesApplied),
				log.Any("reconnects", st.Reconnects),
			)
			return r.Err()
		},
	}

	cmd.Flags().StringVar(&c.cfg.SerialPort, "port", c.cfg.SerialPort, "serial port to use (default: first port found)")
	cmd.Flags().IntVar(&c.cfg.BaudRate, "baudrate", c.cfg.BaudRate, "baud rate to use")
	cmd.Flags().BoolVar(&c.cfg.Debug, "debug", c.cfg.Debug, "use stdin/stdout instead of serial")
	cmd.Flags().DurationVar(&c.cfg.ReadTimeout, "read-timeout", c.cfg.ReadTimeout, "how long to wait for the device before resending")
	cmd.Flags().DurationVar(&c.cfg.ReconnectInterval, "reconnect-interval", c.cfg.ReconnectInterval, "delay between connection attempts")
	cmd.Flags().IntVar(&c.cfg.MaxApps, "max-apps", c.cfg.MaxApps, "maximum number of entries shown on the device")
	return cmd
}

func (c *cli) listApplicationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-applications",
		Short: "List all found programs and their volumes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd); err != nil {
				return err
			}
			backend, err := platform.Backend(c.logger)
			if err != nil {
				return err
			}
			entities, err := mixlink.ListEntities(cmd.Context(), backend, c.cfg.Settings())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== Found applications ===")
			for _, e := range entities {
				fmt.Fprintf(out, "Name: %s\n", e.Name)
				fmt.Fprintf(out, "Display name: %s\n", e.DisplayName)
				fmt.Fprintf(out, "Binary: %s\n", e.Binary)
				fmt.Fprintf(out, "Volume: %d\n", e.Volume)
				fmt.Fprintf(out, "Type: %s\n\n", e.Type)
			}
			return nil
		},
	}
}

func (c *cli) listDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-devices",
		Short: "List all found serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := mixlink.ListPorts()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PORT\tUSB\tVID:PID\tPRODUCT")
			for _, p := range ports {
				id := ""
				if p.IsUSB {
					id = p.VID + ":" + p.PID
				}
				fmt.Fprintf(tw, "%s\t%v\t%s\t%s\n", p.Name, p.IsUSB, id, p.Product)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) initConfigCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.cfgPath
			if path == "" {
				path = cliconfig.DefaultConfigPath()
			}
			if path == "" {
				return errors.New("no home directory; pass --config")
			}
			if err := cliconfig.WriteFileConfig(path, cliconfig.DefaultConfig(), force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// stateLogger reports connection state changes.
type stateLogger struct {
	mixlink.BaseEventHandler
	logger log.Logger
}

func (s stateLogger) OnStateChange(ev mixlink.StateChangeEvent) {
	s.logger.Info("connection "+strings.ToLower(ev.Current.String()),
		log.String("previous", ev.Previous.String()),
		log.String("reason", ev.Reason),
	)
}
