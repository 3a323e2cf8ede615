package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	cfgAPIURL       = "api-url"
	cfgStateFile    = "state-file"
	cfgVoterID      = "voter-id"
	cfgRetries      = "retries"
	cfgQuestion     = "question"
	cfgChoice1Label = "choice-1-label"
	cfgChoice2Label = "choice-2-label"
	cfgDuration     = "duration"
)

const (
	defaultAPIURL       = "http://localhost:8080"
	defaultQuestion     = "Do you think DOGS make better pets than CATS?"
	defaultChoice1Label = "YES"
	defaultChoice2Label = "NO"
	defaultDuration     = 60
)

type cli struct {
	v       *viper.Viper
	cfgFile string
	out     io.Writer
}

// Execute runs the ballot command tree against os.Args.
func Execute() {
	if err := NewRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCommand builds a fresh command tree. Settings resolve as flags, then
// BALLOT_* environment variables, then the config file.
func NewRootCommand(out io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out}

	root := &cobra.Command{
		Use:           "ballot",
		Short:         "Vote on two-choice questions with commit-reveal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.initConfig()
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.ballot/config.yaml)")
	flags.String(cfgAPIURL, defaultAPIURL, "base URL of the voting API")
	flags.String(cfgStateFile, "", "file holding the active session (default is $HOME/.ballot/state.yaml)")
	flags.String(cfgVoterID, "", "identity sent as X-Voter-Id")
	flags.Uint64(cfgRetries, 4, "retries for transient API failures")
	for _, key := range []string{cfgAPIURL, cfgStateFile, cfgVoterID, cfgRetries} {
		_ = c.v.BindPFlag(key, flags.Lookup(key))
	}

	root.AddCommand(
		c.newStartCommand(),
		c.newCommitCommand(),
		c.newRevealCommand(),
		c.newStatusCommand(),
		c.newWinnerCommand(),
		c.newCommitsCommand(),
	)
	return root
}

func (c *cli) initConfig() error {
	c.v.SetEnvPrefix("BALLOT")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	c.v.SetDefault(cfgQuestion, defaultQuestion)
	c.v.SetDefault(cfgChoice1Label, defaultChoice1Label)
	c.v.SetDefault(cfgChoice2Label, defaultChoice2Label)
	c.v.SetDefault(cfgDuration, defaultDuration)

	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", c.cfgFile, err)
		}
		return nil
	}

	home, err := homedir.Dir()
	if err != nil {
		return nil
	}
	c.v.AddConfigPath(filepath.Join(home, ".ballot"))
	c.v.SetConfigName("config")
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func (c *cli) client() *client {
	return newClient(c.v.GetString(cfgAPIURL), c.v.GetString(cfgVoterID), c.v.GetUint64(cfgRetries))
}

func (c *cli) state() (*state, error) {
	path := strings.TrimSpace(c.v.GetString(cfgStateFile))
	if path == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".ballot", "state.yaml")
	}
	return loadState(path)
}

func (c *cli) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
