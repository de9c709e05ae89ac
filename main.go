package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agentdeck/internal/api"
	"agentdeck/internal/auth"
	"agentdeck/internal/config"
	"agentdeck/internal/engine"
	"agentdeck/internal/gitrepo"
	"agentdeck/internal/model"
	"agentdeck/internal/open"
	"agentdeck/internal/tui"
)

var rootCmd = &cobra.Command{
	Use:   "agentdeck",
	Short: "Terminal dashboard for remote agent runs",
	Long: `Agentdeck lists and creates remote agent runs and shows their status
and pull requests. Run it with no arguments for the interactive dashboard;
runs are filtered to the current repository when the working directory has
a parseable git origin remote.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, store, err := buildEngine()
		if err != nil {
			return err
		}
		m := tui.New(eng, store, config.WebURL(), config.AutoRefresh(), config.RefreshInterval())
		p := tea.NewProgram(m, tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

func main() {
	cobra.OnInitialize(config.Init)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("api-url", config.DefaultAPIURL, "agent service base URL")
	rootCmd.PersistentFlags().String("web-url", config.DefaultWebURL, "web UI base URL")
	rootCmd.PersistentFlags().Bool("auto-refresh", true, "poll for updates in the dashboard")
	rootCmd.PersistentFlags().Int("refresh-interval", config.DefaultRefreshInterval, "polling period in seconds")
	_ = viper.BindPFlag("api-url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("web-url", rootCmd.PersistentFlags().Lookup("web-url"))
	_ = viper.BindPFlag("auto-refresh", rootCmd.PersistentFlags().Lookup("auto-refresh"))
	_ = viper.BindPFlag("refresh-interval", rootCmd.PersistentFlags().Lookup("refresh-interval"))
}

func registerCommands() {
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(openCmd())
}

// buildEngine wires the credential store, gateway, and engine for the
// current working directory.
func buildEngine() (*engine.Engine, *auth.Store, error) {
	logger := newLogger()
	store, err := auth.NewStore(logger)
	if err != nil {
		return nil, nil, err
	}
	client := api.New(config.APIURL(), store, nil, logger)
	resolve := func() *model.RepoContext {
		wd, err := os.Getwd()
		if err != nil {
			return nil
		}
		return gitrepo.Resolve(wd)
	}
	return engine.New(client, store, resolve, logger), store, nil
}

// newLogger logs to a file in the config dir; the terminal belongs to the
// dashboard.
func newLogger() *slog.Logger {
	base, err := os.UserConfigDir()
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	dir := filepath.Join(base, "agentdeck")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	f, err := os.OpenFile(filepath.Join(dir, "agentdeck.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(f, nil))
}

func loginCmd() *cobra.Command {
	var token string
	var orgID int
	var browser bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API token and organization id",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			store, err := auth.NewStore(logger)
			if err != nil {
				return err
			}
			if browser {
				url := config.WebURL() + "/cli-token"
				fmt.Println("Opening", url, "— paste the token shown after authenticating.")
				if err := open.URL(url); err != nil {
					fmt.Println("Could not open a browser; visit the URL manually.")
				}
			}
			if token == "" {
				fmt.Print("API token: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil {
					return err
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return fmt.Errorf("no token given")
			}
			if orgID <= 0 {
				return fmt.Errorf("--org is required and must be positive")
			}
			if err := store.Login(token, orgID); err != nil {
				return err
			}
			fmt.Println("Logged in.")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "API token (prompted when omitted)")
	cmd.Flags().IntVar(&orgID, "org", 0, "organization id")
	cmd.Flags().BoolVar(&browser, "browser", false, "open the token page in a browser first")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := auth.NewStore(newLogger())
			if err != nil {
				return err
			}
			if err := store.Logout(); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agent runs for the current repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, store, err := buildEngine()
			if err != nil {
				return err
			}
			if !store.IsAuthenticated() {
				return fmt.Errorf("not logged in; run: agentdeck login")
			}
			records, err := eng.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(eng.Runs())
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"ID", "Status", "Title", "When", "PRs"})
			for _, rec := range records {
				if rec.Placeholder {
					fmt.Println(rec.Title)
					return nil
				}
				run := rec.Run
				t.AppendRow(table.Row{
					run.ID,
					run.Status,
					rec.Title,
					engine.RelativeTime(run.CreatedAt, time.Now()),
					engine.PRSummary(run),
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output raw JSON")
	return cmd
}

func createCmd() *cobra.Command {
	var runModel string
	var repoID int
	cmd := &cobra.Command{
		Use:   "create <prompt>",
		Short: "Start a new agent run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := buildEngine()
			if err != nil {
				return err
			}
			run, err := eng.CreateRun(cmd.Context(), strings.Join(args, " "), runModel, repoID)
			if err != nil {
				return err
			}
			fmt.Printf("Created agent run %d\n", run.ID)
			if run.WebURL != "" {
				fmt.Println(run.WebURL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runModel, "model", "", "model to run with")
	cmd.Flags().IntVar(&repoID, "repo-id", 0, "repository id to attach")
	return cmd
}

func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <id>",
		Short: "Open an agent run in the browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("invalid run id %q", args[0])
			}
			logger := newLogger()
			store, err := auth.NewStore(logger)
			if err != nil {
				return err
			}
			client := api.New(config.APIURL(), store, nil, logger)
			run, err := client.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if run.WebURL == "" {
				return fmt.Errorf("run %d has no web URL", id)
			}
			return open.URL(run.WebURL)
		},
	}
}
