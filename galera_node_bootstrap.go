/*
 * Copyright (c) Marco Tusa 2021 - present
 *                     GNU GENERAL PUBLIC LICENSE
 *                        Version 3, 29 June 2007
 *
 *  Copyright (C) 2007 Free Software Foundation, Inc. <https://fsf.org/>
 *  Everyone is permitted to copy and distribute verbatim copies
 *  of this license document, but changing it is not allowed.
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	DO "galera_node_bootstrap/internal/DataObjects"
	global "galera_node_bootstrap/internal/Global"
	host "galera_node_bootstrap/internal/Host"
	platform "galera_node_bootstrap/internal/Platform"
)

var galeraNodeBootstrapVersion = "1.0.0"

const (
	exitOK           = 0
	exitConfigError  = 1
	exitProvisioning = 2
)

type cliOptions struct {
	configFile string
	configPath string
	factsFile  string
}

/*
Main function must contain only initial parameter, log system init and main object init
*/
func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	opts := &cliOptions{}
	exitCode := exitOK
	help := global.HelpText{}

	root := &cobra.Command{
		Use:           "galera_node_bootstrap",
		Short:         "Provision one node of a Galera MySQL cluster",
		Long:          help.GetHelpText(),
		Version:       galeraNodeBootstrapVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exitCode = provision(cmd.Context(), opts)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "configfile", "", "Config file name")
	root.PersistentFlags().StringVar(&opts.configPath, "configpath", "", "Config file path, ./config/ when empty")
	root.PersistentFlags().StringVar(&opts.factsFile, "facts", "", "YAML file with platform facts, overrides global.factsFile")

	root.AddCommand(&cobra.Command{
		Use:   "render",
		Short: "Print the my.cnf and wsrep.cnf this node would get, changing nothing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exitCode = render(cmd, opts)
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Galera Node Bootstrap Version: ", galeraNodeBootstrapVersion)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	return exitCode
}

func loadConfiguration(opts *cliOptions) (global.Configuration, platform.Facts, error) {
	var facts platform.Facts
	if opts.configFile == "" {
		return global.Configuration{}, facts, global.NewConfigError("configfile", "you must at least pass the --configfile=xxx parameter")
	}
	configPath := opts.configPath
	if configPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return global.Configuration{}, facts, err
		}
		configPath = filepath.Join(cwd, "config")
	}

	config, err := global.GetConfig(filepath.Join(configPath, opts.configFile))
	if err != nil {
		return config, facts, err
	}
	if err := global.InitLog(config); err != nil {
		return config, facts, err
	}

	factsFile := opts.factsFile
	if factsFile == "" {
		factsFile = config.Global.FactsFile
	}
	if factsFile != "" {
		facts, err = platform.LoadFacts(factsFile)
	} else {
		facts, err = platform.DiscoverFacts()
	}
	return config, facts, err
}

func newCollaborators(config global.Configuration) DO.Collaborators {
	runner := host.ExecRunner{}
	var services DO.ServiceManager = host.NewSystemdManager(runner)
	if config.Mysql.UseUpstart {
		services = host.NewUpstartManager(runner)
	}
	return DO.Collaborators{
		Packages: func(profile platform.Profile) DO.PackageManager {
			if profile.IsRhel() {
				return host.NewRpmManager(runner)
			}
			return host.NewDpkgManager(runner)
		},
		Fetcher:  host.NewHTTPFetcher(30 * time.Minute),
		Services: services,
		Files:    host.LocalFileSystem{},
		Commands: runner,
		SQL:      host.NewMySQLExecutor(10 * time.Second),
		Secrets:  DO.FileSecretStore{Path: config.Global.SecretsFile},
	}
}

func provision(ctx context.Context, opts *cliOptions) int {
	config, facts, err := loadConfiguration(opts)
	if err != nil {
		log.Error(err)
		return exitConfigError
	}

	global.InitPerformance(config.Global.Performance)
	global.SetPerformanceObj("main", true, log.InfoLevel)

	locker := DO.NewFileLock(config.Global.LockFilePath, time.Duration(config.Global.LockFileTimeout)*time.Second)
	if err := locker.SetLock(); err != nil {
		log.Error("Cannot create a lock, exit: ", err)
		return exitProvisioning
	}
	defer func() {
		if err := locker.RemoveLock(); err != nil {
			log.Warn("Cannot remove lock ", locker.Path(), ": ", err)
		}
	}()

	entry := log.WithFields(log.Fields{"run": uuid.New().String(), "node": facts.Hostname})
	sequencer := DO.NewSequencer(config, facts, newCollaborators(config)).WithLogEntry(entry)
	node, err := sequencer.Run(ctx)

	global.SetPerformanceObj("main", false, log.InfoLevel)
	global.ReportPerformance()

	if err != nil {
		entry.WithField("phase", node.Phase.String()).Error(err)
		return exitCodeFor(err)
	}
	entry.WithField("actions", len(node.Actions)).Info("Node provisioned")
	return exitOK
}

func render(cmd *cobra.Command, opts *cliOptions) int {
	config, facts, err := loadConfiguration(opts)
	if err != nil {
		log.Error(err)
		return exitConfigError
	}
	artifacts, err := DO.NewSequencer(config, facts, newCollaborators(config)).Preview()
	if err != nil {
		log.Error(err)
		return exitCodeFor(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "### peers in join order: %s\n", strings.Join(artifacts.Peers, ", "))
	for _, artifact := range artifacts.All() {
		fmt.Fprintf(cmd.OutOrStdout(), "### %s (%s:%s %#o)\n%s\n", artifact.Path, artifact.Owner, artifact.Group, artifact.Mode, artifact.Content)
	}
	return exitOK
}

func exitCodeFor(err error) int {
	var configErr *global.ConfigError
	var platformErr *global.UnsupportedPlatformError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &configErr), errors.As(err, &platformErr):
		return exitConfigError
	default:
		return exitProvisioning
	}
}
