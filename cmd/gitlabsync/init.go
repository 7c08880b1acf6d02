// SPDX-License-Identifier: MIT
package gitlabsync

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/skaphos/gitlab-sync/internal/config"
	"github.com/skaphos/gitlab-sync/internal/credentials"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample gitlab-sync configuration",
	Long:  "Creates gitlab-sync.yaml in the current directory unless --config or GITLAB_SYNC_CONFIG points elsewhere.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runInit(cmd, consoleLogger(cmd))
	},
}

func init() {
	initCmd.Flags().Bool("store-token", false, "save $GITLAB_TOKEN in the OS keyring for the configured GitLab host")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, log logrus.FieldLogger) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfgPath, err := config.InitConfigPath(flagConfig, cwd)
	if err != nil {
		return err
	}
	storeToken, _ := cmd.Flags().GetBool("store-token")
	if _, err := os.Stat(cfgPath); err == nil {
		log.Warnf("found %s, project already initialized", cfgPath)
	} else {
		if err := config.WriteSample(cfgPath); err != nil {
			return fatal(log, err)
		}
		log.Infof("created %s configuration file", cfgPath)
		if !storeToken {
			log.Warnf("add your GitLab token to %s (or export GITLAB_TOKEN) before running gitlab-sync", cfgPath)
		}
	}
	if storeToken {
		return storeKeyringToken(cfgPath, log)
	}
	return nil
}

// storeKeyringToken saves $GITLAB_TOKEN under the host of the configured
// GitLab URL.
func storeKeyringToken(cfgPath string, log logrus.FieldLogger) error {
	token := strings.TrimSpace(os.Getenv(credentials.EnvToken))
	if token == "" {
		return fatal(log, fmt.Errorf("--store-token needs %s to be set", credentials.EnvToken))
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fatal(log, err)
	}
	if err := credentials.Store(cfg.GitLab.URL, token); err != nil {
		return fatal(log, err)
	}
	log.Infof("stored GitLab token for %s in the OS keyring", credentials.Host(cfg.GitLab.URL))
	if !cfg.GitLab.UseKeyring {
		log.Warnf("set gitlab.use_keyring: true in %s to use the stored token", cfgPath)
	}
	return nil
}
