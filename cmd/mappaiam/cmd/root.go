package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mappa-gov/portal-iam/cmd/mappaiam/cmd/iam"
	"github.com/mappa-gov/portal-iam/cmd/mappaiam/cmd/users"
	"github.com/mappa-gov/portal-iam/internal/config"
)

var (
	cfg        *config.Config
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "mappaiam",
	Short: "MAPPA portal identity and permission resolver",
	Long: `mappaiam resolves who the signed-in portal user is and what they may do.
It serves the resolved identity over HTTP and manages role and permission grants.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file %s: %w", configFile, err)
			}
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML/TOML/JSON config file")
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: MAPPA_DATABASE_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: MAPPA_SERVER_ADDR)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: MAPPA_DEBUG)")
	rootCmd.PersistentFlags().String("cache-backend", "", "Identity cache backend: single, lru or redis (env: MAPPA_IDENTITY_CACHE_BACKEND)")

	cobra.CheckErr(viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("db-url")))
	cobra.CheckErr(viper.BindPFlag("server_addr", rootCmd.PersistentFlags().Lookup("server-addr")))
	cobra.CheckErr(viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")))
	cobra.CheckErr(viper.BindPFlag("identity.cache_backend", rootCmd.PersistentFlags().Lookup("cache-backend")))

	// Add subcommands
	rootCmd.AddCommand(iam.IamCmd)
	rootCmd.AddCommand(users.UsersCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
