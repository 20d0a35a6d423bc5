// Command seasyncd is the headless entrypoint for the sync core. The
// spec treats the menu-bar UI, setup dialog, and settings window as
// external collaborators (§1); this CLI is the one concrete surface that
// drives configure/sync/logout/run, built the way theanswer42-bt-go's
// cmd/bt wires cobra around its application core.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/seasync/seasync/config"
	"github.com/seasync/seasync/model"
	"github.com/seasync/seasync/observable"
	"github.com/seasync/seasync/orchestrator"
	"github.com/seasync/seasync/remote"
	"github.com/seasync/seasync/secret"
	"github.com/seasync/seasync/store"
	"github.com/seasync/seasync/trigger"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "seasyncd",
	Short: "Seafile-compatible directory sync core",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "seasync.toml", "path to the config file")
	rootCmd.AddCommand(configureCmd, syncCmd, statusCmd, logoutCmd, runCmd)
}

func newLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// app bundles the collaborators every subcommand needs, mirroring the
// way bt-go's newApp() assembles its application core from config.
type app struct {
	cfg     config.Config
	store   *store.Store
	secrets secret.Store
	client  *remote.Client
	logger  zerolog.Logger
}

func newApp() (*app, error) {
	cfg, err := config.ReadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	logger := newLogger()
	secrets := secret.NewSQLiteStore(st.DB())
	client := remote.NewClient(cfg.ServerURL, logger)

	acct, ok, err := secrets.LoadAccount()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("loading account: %w", err)
	}
	if ok {
		client.SetToken(acct.Token)
	}

	return &app{cfg: cfg, store: st, secrets: secrets, client: client, logger: logger}, nil
}

func (a *app) Close() {
	a.store.Close()
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Log in and save account credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		user, _ := cmd.Flags().GetString("user")
		pass, _ := cmd.Flags().GetString("pass")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		a.client = remote.NewClient(server, a.logger)
		token, err := a.client.Login(user, pass)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		acct := model.Account{ServerURL: server, Username: user, Token: token}
		if err := a.secrets.SaveAccount(acct); err != nil {
			return fmt.Errorf("saving account: %w", err)
		}

		cfg := a.cfg
		cfg.ServerURL = server
		if err := config.WriteToFile(configPath, cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Println("configured and logged in as", user)
		return nil
	},
}

func init() {
	configureCmd.Flags().String("server", "", "server base URL")
	configureCmd.Flags().String("user", "", "username")
	configureCmd.Flags().String("pass", "", "password")
	configureCmd.MarkFlagRequired("server")
	configureCmd.MarkFlagRequired("user")
	configureCmd.MarkFlagRequired("pass")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single sync cycle now and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		publisher := observable.NewPublisher()
		orch := orchestrator.New(a.client, a.store, a.secrets, publisher, a.cfg, a.logger)
		orch.TriggerCycle()

		snap := publisher.Snapshot()
		fmt.Printf("status=%s libraries=%d errors=%d\n", snap.State, len(snap.Libraries), len(snap.Errors))
		for _, e := range snap.Errors {
			fmt.Printf("  error: %s\n", e.Error())
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether an account is configured",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		acct, ok, err := a.secrets.LoadAccount()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("not configured")
			return nil
		}
		fmt.Printf("configured: %s as %s\n", acct.ServerURL, acct.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the account and clear local sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.secrets.DeleteAccount(); err != nil {
			return fmt.Errorf("deleting account: %w", err)
		}
		if err := a.store.DeleteAll(); err != nil {
			return fmt.Errorf("clearing state store: %w", err)
		}
		fmt.Println("logged out")
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trigger loop (periodic + watcher) until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		publisher := observable.NewPublisher()
		orch := orchestrator.New(a.client, a.store, a.secrets, publisher, a.cfg, a.logger)
		pingURL := a.cfg.ServerURL
		loop := trigger.New(orch, a.cfg, pingURL, a.logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := loop.Start(ctx); err != nil {
			return fmt.Errorf("starting trigger loop: %w", err)
		}

		loop.TriggerManual()
		<-ctx.Done()
		a.logger.Info().Msg("shutting down")
		return nil
	},
}
