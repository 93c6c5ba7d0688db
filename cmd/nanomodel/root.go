package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arthur-debert/nanomodel/nanomodel"
)

// CLI is the nanomodel command line: schema validation and document
// access over a JSON data file or a MongoDB database.
type CLI struct {
	rootCmd   *cobra.Command
	viperInst *viper.Viper
	out       io.Writer

	config  nanomodel.Config
	logger  *slog.Logger
	closers []io.Closer
}

// NewCLI creates the command tree writing results to out.
func NewCLI(out io.Writer) *CLI {
	cli := &CLI{
		viperInst: viper.New(),
		out:       out,
		logger:    slog.Default(),
	}
	cli.setupViperConfig()
	cli.createRootCommand()
	cli.addCommands()
	return cli
}

// setupViperConfig configures defaults, environment variables and config
// file discovery.
func (cli *CLI) setupViperConfig() {
	v := cli.viperInst

	defaults := nanomodel.DefaultConfig()
	v.SetDefault("cache_size", defaults.CacheSize)
	v.SetDefault("cache_ttl", defaults.CacheTTL)
	v.SetDefault("data_path", defaults.DataPath)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("resolve_timeout", defaults.ResolveTimeout)
	v.SetDefault("format", "json")

	// NANOMODEL_CONFIG points at a config file; otherwise nanomodel.yaml is
	// looked up in the usual places.
	if configFile := os.Getenv("NANOMODEL_CONFIG"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(appName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.nanomodel")
	}

	v.SetEnvPrefix("NANOMODEL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

func (cli *CLI) createRootCommand() {
	cli.rootCmd = &cobra.Command{
		Use:   appName,
		Short: "Schema-validated document access",
		Long: `nanomodel validates documents against a YAML schema and reads or writes
them through the document model: coercion, caching and reference checks
included.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (NANOMODEL_*)
3. Configuration file (NANOMODEL_CONFIG, ./nanomodel.yaml, ~/.nanomodel/nanomodel.yaml)

Examples:
  nanomodel --schema users.yaml validate ada.json
  nanomodel --schema users.yaml --data app.json insert ada.json
  nanomodel --schema users.yaml find '{"age": {"$gte": 30}}' --sort -age --limit 5
  NANOMODEL_MONGO_URI=mongodb://localhost:27017 nanomodel --schema users.yaml count`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: cli.preRun,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return cli.cleanup()
		},
	}
	cli.addGlobalFlags()
}

// addGlobalFlags adds persistent flags that apply to all commands
func (cli *CLI) addGlobalFlags() {
	flags := cli.rootCmd.PersistentFlags()

	flags.StringP("schema", "s", "", "YAML schema file")
	flags.StringP("collection", "c", "", "Collection name (defaults to the schema name)")
	flags.StringP("data", "d", "", "JSON data file")
	flags.String("mongo-uri", "", "MongoDB connection string; replaces the data file")
	flags.String("mongo-db", appName, "MongoDB database name")
	flags.StringP("format", "f", "json", "Output format (json|yaml)")
	flags.String("log-level", "", "Log level (debug|info|warn|error)")
	flags.Bool("log-stdout", false, "Also write log records to the output")

	bindings := map[string]string{
		"schema":     "schema",
		"collection": "collection",
		"data_path":  "data",
		"mongo_uri":  "mongo-uri",
		"mongo_db":   "mongo-db",
		"format":     "format",
		"log_level":  "log-level",
		"log_stdout": "log-stdout",
	}
	for key, flag := range bindings {
		_ = cli.viperInst.BindPFlag(key, flags.Lookup(flag))
	}
}

func (cli *CLI) preRun(cmd *cobra.Command, args []string) error {
	if err := cli.viperInst.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := nanomodel.DefaultConfig()
	if err := cli.viperInst.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	if err := nanomodel.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cli.config = cfg

	switch f := cli.viperInst.GetString("format"); f {
	case "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", f)
	}

	level, _ := nanomodel.ParseLogLevel(cfg.LogLevel)
	logger, closer, err := initLogging(level, cli.viperInst.GetBool("log_stdout"), cli.out)
	if err != nil {
		return err
	}
	cli.closers = append(cli.closers, closer)
	cli.logger = logger.With("request_id", uuid.NewString(), "command", cmd.Name())
	cli.logger.Debug("config loaded", "data_path", cfg.DataPath, "config_file", cli.viperInst.ConfigFileUsed())
	return nil
}

func (cli *CLI) cleanup() error {
	var first error
	for i := len(cli.closers) - 1; i >= 0; i-- {
		if err := cli.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	cli.closers = nil
	return first
}

// Execute runs the command line with os.Args.
func (cli *CLI) Execute() error {
	return cli.ExecuteContext(context.Background(), os.Args[1:])
}

// ExecuteContext runs the command line with args.
func (cli *CLI) ExecuteContext(ctx context.Context, args []string) error {
	cli.rootCmd.SetArgs(args)
	cli.rootCmd.SetOut(cli.out)
	err := cli.rootCmd.ExecuteContext(ctx)
	if cerr := cli.cleanup(); err == nil {
		err = cerr
	}
	return err
}

// addCommands adds all the CLI commands
func (cli *CLI) addCommands() {
	cli.addValidateCommand()
	cli.addSchemaCommand()
	cli.addGetCommand()
	cli.addFindCommand()
	cli.addCountCommand()
	cli.addInsertCommand()
	cli.addRemoveCommand()
}
