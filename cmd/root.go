package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pkichain/pkichain/client"
	"github.com/pkichain/pkichain/session"
)

var (
	debug       bool
	configPath  string
	apiURL      string
	timeout     time.Duration
	sessionFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pkichain",
	Short: "Order and manage SSL certificates with PKIChain",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
		readConfig()
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug mode")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", client.DefaultBaseURL, "PKIChain API base URL (can also be set via PKICHAIN_API_URL or config key api_url)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&sessionFile, "session-file", "", "Where the login session is kept (default $HOME/.pkichain/session.yaml)")

	// Global viper env handling. Precedence is: flags > env > config.
	viper.SetEnvPrefix("PKICHAIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("session_file", rootCmd.PersistentFlags().Lookup("session-file"))
}

func readConfig() {
	viper.SetConfigType("yaml")
	viper.SetConfigName("pkichain")
	viper.AddConfigPath("/etc/pkichain/")
	viper.AddConfigPath("$HOME/.pkichain/")
	viper.AddConfigPath(".")
	if configPath != "" {
		viper.SetConfigFile(configPath)
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Debug("No configuration file found")
		} else {
			slog.Error("Error reading config file", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		slog.Debug("Using config file", slog.String("config", viper.ConfigFileUsed()))
	}
}

// bindFlags binds the flags of cmd to their config keys and fills every flag
// that was not given on the command line from the config.
func bindFlags(cmd *cobra.Command, keyMapping map[string]string) {
	for k, v := range keyMapping {
		err := viper.BindPFlag(v, cmd.Flags().Lookup(k))
		if err != nil {
			slog.Error("Failed to bind flag", slog.String("flag", k), slog.Any("error", err))
			os.Exit(1)
		}
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		v, ok := keyMapping[f.Name]
		if f.Changed || !ok || !viper.IsSet(v) {
			return
		}
		val := viper.Get(v)
		if s, isSlice := val.([]any); isSlice {
			parts := make([]string, 0, len(s))
			for _, p := range s {
				parts = append(parts, fmt.Sprintf("%v", p))
			}
			val = strings.Join(parts, ",")
		}
		if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
			slog.Error("Failed to set flag", slog.String("flag", f.Name), slog.Any("error", err))
			os.Exit(1)
		}
	})
}

func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newSessionManager() *session.Manager {
	path := viper.GetString("session_file")
	if path == "" {
		p, err := session.DefaultPath()
		if err != nil {
			slog.Error("failed to determine session file", slog.Any("error", err))
			os.Exit(1)
		}
		path = p
	}
	return session.NewManager(session.NewFileStore(path))
}

func newClient(tokens client.TokenSource) *client.Client {
	c, err := client.NewClient(viper.GetString("api_url"), tokens,
		client.WithDebug(debug),
		client.WithTimeout(viper.GetDuration("timeout")),
		client.WithUserAgent("pkichain-cli"),
	)
	if err != nil {
		slog.Error("failed to create client", slog.Any("error", err))
		os.Exit(1)
	}
	return c
}

// loggedIn returns a client for a command that needs a valid session.
func loggedIn() (*session.Manager, *client.Client) {
	mgr := newSessionManager()
	if _, err := mgr.Token(); err != nil {
		slog.Error("no usable session", slog.Any("error", err))
		os.Exit(1)
	}
	return mgr, newClient(mgr)
}
