package gitlabsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/skaphos/gitlab-sync/internal/config"
	"github.com/skaphos/gitlab-sync/internal/credentials"
	"github.com/skaphos/gitlab-sync/internal/discovery"
	"github.com/skaphos/gitlab-sync/internal/engine"
	"github.com/skaphos/gitlab-sync/internal/gitlab"
	"github.com/skaphos/gitlab-sync/internal/logging"
	"github.com/skaphos/gitlab-sync/internal/model"
	"github.com/skaphos/gitlab-sync/internal/report"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Clone missing projects, then pull and push every default branch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMode(cmd, string(model.ModeSync))
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull the default branch of every local clone",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMode(cmd, string(model.ModePull))
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Pull, then push the default branch of every local clone",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMode(cmd, string(model.ModePush))
	},
}

func init() {
	for _, cmd := range []*cobra.Command{syncCmd, pullCmd, pushCmd} {
		addRunFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("concurrency", 0, "max projects reconciled in parallel (default: sync.concurrency)")
	cmd.Flags().Int("timeout", 0, "per-project timeout in seconds (default: sync.timeout_seconds)")
	cmd.Flags().String("format", "table", "output format: table or json")
	cmd.Flags().Bool("no-headers", false, "omit the table header row")
}

// runOptions is the flag set shared by every run command.
type runOptions struct {
	mode        model.Mode
	concurrency int
	timeout     int
	format      string
	noHeaders   bool
}

func parseRunOptions(cmd *cobra.Command, rawMode string) (runOptions, error) {
	mode, err := engine.ParseMode(rawMode)
	if err != nil {
		return runOptions{}, err
	}
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	timeout, _ := cmd.Flags().GetInt("timeout")
	format, _ := cmd.Flags().GetString("format")
	noHeaders, _ := cmd.Flags().GetBool("no-headers")
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "table" && format != "json" {
		return runOptions{}, fmt.Errorf("unsupported format %q", format)
	}
	if concurrency < 0 {
		return runOptions{}, errors.New("--concurrency must not be negative")
	}
	if timeout < 0 {
		return runOptions{}, errors.New("--timeout must not be negative")
	}
	return runOptions{mode: mode, concurrency: concurrency, timeout: timeout, format: format, noHeaders: noHeaders}, nil
}

func runMode(cmd *cobra.Command, rawMode string) error {
	opts, err := parseRunOptions(cmd, rawMode)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfgPath, err := config.ResolveConfigPath(flagConfig, cwd)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, config.ErrNotFound) {
		console := consoleLogger(cmd)
		console.Error(config.ErrNotFound.Error())
		raiseExitCode(1)
		return runInit(cmd, console)
	}
	if err != nil {
		return err
	}

	log, closeLog, err := runLogger(cmd, cfgPath, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "closing log file: %v\n", err)
		}
	}()
	log.Debugf("using config %s", cfgPath)

	token, err := credentials.Resolve(credentials.Options{
		GitLabURL:   cfg.GitLab.URL,
		ConfigToken: cfg.GitLab.Token,
		UseKeyring:  cfg.GitLab.UseKeyring,
	})
	if err != nil {
		return fatal(log, err)
	}
	log.Debugf("using GitLab token from %s", token.Source)

	ctx := cmd.Context()
	client := gitlab.NewClient(cfg.GitLab.URL, token.Value, nil, log)
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return fatal(log, err)
	}
	log.Infof("connected as %s (%s)", user.Username, user.Name)

	source := gitlab.Source{
		Client:           client,
		Group:            cfg.GitLab.Group,
		Root:             config.ResolvePath(cfgPath, cfg.Sync.Root),
		Layout:           gitlab.Layout(cfg.Sync.Layout),
		Exclude:          cfg.Sync.Exclude,
		IncludeSubgroups: cfg.GitLab.IncludeSubgroups,
		Log:              log,
	}
	projects, err := source.Projects(ctx)
	if err != nil {
		return fatal(log, err)
	}
	log.Debugf("found %d projects in %s", len(projects), cfg.GitLab.Group)

	if opts.concurrency == 0 {
		opts.concurrency = cfg.Sync.Concurrency
	}
	if opts.timeout == 0 {
		opts.timeout = cfg.Sync.TimeoutSeconds
	}

	eng := engine.New(engine.Options{
		Transport:  model.Transport(strings.ToLower(cfg.GitLab.Protocol)),
		RemoteName: cfg.Sync.RemoteName,
	}, nil, nil, report.NewLogReporter(log))
	results, runErr := eng.Run(ctx, projects, engine.RunOptions{
		Mode:        opts.mode,
		Concurrency: opts.concurrency,
		Timeout:     time.Duration(opts.timeout) * time.Second,
	})

	if runErr == nil {
		reportStrays(ctx, log, source, projects, cfg.Sync.RemoteName)
	}

	setColorOutputMode(cmd, opts.format)
	switch opts.format {
	case "json":
		err = writeResultsJSON(cmd, results)
	default:
		err = writeResultsTable(cmd, results, cwd, opts.noHeaders)
	}
	if err != nil {
		return err
	}

	for _, res := range results {
		raiseExitCode(resultExitCode(res))
	}
	if runErr != nil {
		return fatal(log, runErr)
	}
	log.Info("done.")
	return nil
}

// reportStrays warns about clones under the root that the group no longer
// lists. It never changes the exit code.
func reportStrays(ctx context.Context, log logrus.FieldLogger, source gitlab.Source, projects []model.Project, remoteName string) {
	strays, err := discovery.Strays(ctx, discovery.Options{
		Root:       source.Root,
		Projects:   projects,
		RemoteName: remoteName,
	})
	if err != nil {
		log.Warnf("scanning %s for stray repositories failed: %v", source.Root, err)
		return
	}
	for _, stray := range strays {
		entry := log.WithField("repo", stray.Path)
		if stray.RemoteURL != "" {
			entry = entry.WithField("remote", stray.RemoteURL)
		}
		entry.Warnf("local repository is not synced from group %s", source.Group)
	}
}

func runLogger(cmd *cobra.Command, cfgPath string, cfg *config.Config) (*logrus.Logger, func() error, error) {
	level, err := logging.ParseLevel(cfg.Log.Level, flagVerbose, flagQuiet)
	if err != nil {
		return nil, nil, err
	}
	log, closer := logging.New(logging.Options{
		Console:    cmd.ErrOrStderr(),
		Level:      level,
		Color:      isColorTerminal(cmd.ErrOrStderr()),
		File:       config.ResolvePath(cfgPath, cfg.Log.File),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	return log, closer.Close, nil
}

func resultExitCode(res engine.Result) int {
	switch {
	case res.Failed():
		return 2
	case res.NeedsAttention():
		return 1
	default:
		return 0
	}
}
