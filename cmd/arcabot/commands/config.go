package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/ai"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/config"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/database"
)

// newConfigCmd creates the `arcabot config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration",
		Long: `Create and inspect config.yaml and store API keys in the OS keyring.

Examples:
  arcabot config init
  arcabot config show
  arcabot config set-key gemini`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
		newConfigSetKeyCmd(),
	)
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create config.yaml interactively",
		RunE:  runConfigInit,
	}
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		overwrite := false
		if err := huh.NewConfirm().
			Title(fmt.Sprintf("%s already exists. Overwrite it?", path)).
			Value(&overwrite).
			Run(); err != nil {
			return wizardError(err)
		}
		if !overwrite {
			return nil
		}
	}

	cfg := config.DefaultConfig()
	var (
		backend     = string(cfg.Database.Backend)
		sqlitePath  = cfg.Database.SQLite.Path
		supabaseURL string
		dbUser      = cfg.Database.PostgreSQL.User
		provider    = cfg.AI.Provider
		model       string
		apiKey      string
		uploadsDir  = cfg.Dispatch.Media.Dir
		metricsOn   = cfg.Metrics.Enabled
	)
	if backend == "" {
		backend = string(database.BackendSQLite)
	}

	isPostgres := func() bool { return backend == string(database.BackendPostgreSQL) }
	aiOff := func() bool { return provider == "none" }

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Instance name").Value(&cfg.Name),
			huh.NewSelect[string]().
				Title("Database").
				Options(
					huh.NewOption("SQLite (local file)", string(database.BackendSQLite)),
					huh.NewOption("PostgreSQL / Supabase", string(database.BackendPostgreSQL)),
				).
				Value(&backend),
		),
		huh.NewGroup(
			huh.NewInput().Title("SQLite file").Value(&sqlitePath),
		).WithHideFunc(isPostgres),
		huh.NewGroup(
			huh.NewInput().
				Title("Supabase project URL").
				Description("https://<ref>.supabase.co, or leave empty to edit the host later").
				Value(&supabaseURL),
			huh.NewInput().Title("Database user").Value(&dbUser),
		).WithHideFunc(func() bool { return !isPostgres() }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("AI provider for AI replies").
				Options(
					huh.NewOption("Gemini", "gemini"),
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("None", "none"),
				).
				Value(&provider),
		),
		huh.NewGroup(
			huh.NewInput().Title("Model").Placeholder("provider default").Value(&model),
			huh.NewInput().
				Title("API key").
				Description("Stored in the OS keyring, never in config.yaml. Leave empty to use the environment.").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
		).WithHideFunc(aiOff),
		huh.NewGroup(
			huh.NewInput().Title("Uploads directory").Value(&uploadsDir),
			huh.NewConfirm().Title("Serve /metrics and /healthz?").Value(&metricsOn),
		),
	)
	if err := form.Run(); err != nil {
		return wizardError(err)
	}

	cfg.Database.Backend = database.BackendType(backend)
	cfg.Database.SQLite.Path = sqlitePath
	if isPostgres() {
		cfg.Database.PostgreSQL.SupabaseURL = strings.TrimSpace(supabaseURL)
		cfg.Database.PostgreSQL.User = dbUser
		cfg.Database.PostgreSQL.Password = "${" + config.DBPasswordEnvVar + "}"
	}
	cfg.AI.Provider = provider
	cfg.AI.Model = strings.TrimSpace(model)
	cfg.AI.APIKey = ""
	cfg.Dispatch.Media.Dir = uploadsDir
	cfg.Metrics.Enabled = metricsOn

	out := cmd.OutOrStdout()
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" && !aiOff() {
		if err := config.StoreKeyring(config.KeyringKey(provider), apiKey); err != nil {
			fmt.Fprintf(out, "Could not store the API key in the OS keyring: %v\n", err)
			fmt.Fprintf(out, "Set %s in the environment or .env instead.\n", ai.KeyEnvVar(provider))
		} else {
			fmt.Fprintln(out, "API key stored in the OS keyring.")
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveConfigToFile(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(out, "Configuration written to %s\n", path)
	if isPostgres() {
		fmt.Fprintf(out, "Set the database password in %s.\n", config.DBPasswordEnvVar)
	}
	return nil
}

func wizardError(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return fmt.Errorf("setup cancelled")
	}
	return err
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.AI.APIKey != "" {
				cfg.AI.APIKey = "****"
			}
			if cfg.Database.PostgreSQL.Password != "" {
				cfg.Database.PostgreSQL.Password = "****"
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			out := cmd.OutOrStdout()
			if path == "" {
				path = "(defaults)"
			}
			fmt.Fprintf(out, "# %s\n%s", path, data)
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key <provider>",
		Short: "Store an AI provider API key in the OS keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := strings.ToLower(args[0])
			if provider != "gemini" && provider != "openai" {
				return fmt.Errorf("unknown provider %q (gemini or openai)", args[0])
			}

			key, err := readSecret(fmt.Sprintf("%s API key: ", provider))
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("empty key")
			}
			if err := config.StoreKeyring(config.KeyringKey(provider), key); err != nil {
				return fmt.Errorf("storing key in keyring: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key stored in the OS keyring (%s/%s).\n",
				config.KeyringService, config.KeyringKey(provider))
			return nil
		},
	}
}

// readSecret reads a line without echo from a terminal, or plainly from a
// pipe.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
