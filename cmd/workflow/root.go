package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli carries state shared by the subcommands.
type cli struct {
	viper   *viper.Viper
	cfgFile string
	config  *Config
	json    bool
}

func newRootCmd() *cobra.Command {
	c := &cli{viper: viper.New()}

	root := &cobra.Command{
		Use:   appName,
		Short: "Run and manage workflow executions",
		Long: `workflow runs graph workflows defined in YAML or JSON.

Executions are persisted to the configured store so paused executions
can be resumed later, from another process, with a human response.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(c.viper, c.cfgFile)
			if err != nil {
				return err
			}
			c.config = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is ./workflow.yaml)")
	flags.BoolVar(&c.json, "json", false, "print results as JSON")
	flags.String("store", "file", "store type: memory, file, sqlite, postgres, mysql")
	flags.String("store-dir", "", "directory for the file store")
	flags.String("dsn", "", "database connection string for sql stores")
	flags.String("log-level", "warn", "log level: debug, info, warn, error")
	flags.String("node-logs", "", "directory for per-node execution logs")
	flags.String("script-engine", "expr", "expression engine: expr or risor")

	c.viper.BindPFlag("store.type", flags.Lookup("store"))
	c.viper.BindPFlag("store.dsn", flags.Lookup("dsn"))
	c.viper.BindPFlag("log.level", flags.Lookup("log-level"))
	c.viper.BindPFlag("node_logs_dir", flags.Lookup("node-logs"))
	c.viper.BindPFlag("store.dir", flags.Lookup("store-dir"))
	c.viper.BindPFlag("script.engine", flags.Lookup("script-engine"))

	root.AddCommand(
		c.runCmd(),
		c.resumeCmd(),
		c.statusCmd(),
		c.cancelCmd(),
		c.listCmd(),
		c.validateCmd(),
	)
	return root
}
