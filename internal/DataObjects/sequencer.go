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

package DataObjects

import (
	"context"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	galera "galera_node_bootstrap/internal/Galera"
	global "galera_node_bootstrap/internal/Global"
	host "galera_node_bootstrap/internal/Host"
	platform "galera_node_bootstrap/internal/Platform"
	SQLGalera "galera_node_bootstrap/internal/Sql/Galera"
)

const (
	mysqlUser  = "mysql"
	mysqlGroup = "mysql"
	// present once mysql_install_db has populated the data directory
	systemUserTable = "mysql/user.frm"
	// holds the service action owed for configuration already on disk
	pendingActionFile = "pending_service_action"
)

/*
Sequencer provisions one node, phase after phase:

	Validating -> PackageTransition -> DirectoriesReady -> ConfigWritten ->
	DataInitialized -> ServiceRunning -> Hardened

Validating only reads; a failure there moves to Aborted before anything
on the host is touched. Later failures stop the run where it is. Every
phase checks before it acts, so running again is always safe.
*/
type Sequencer struct {
	config global.Configuration
	facts  platform.Facts
	collab Collaborators
	node   *ProvisionedNode
	plan   runPlan
	entry  *log.Entry
}

// runPlan is what Validating works out for the phases that follow.
type runPlan struct {
	profile       platform.Profile
	layout        platform.Layout
	clusterURL    string
	tunables      map[string]string
	skipFederated bool
	sstAddress    string
	saveSecrets   bool
}

func NewSequencer(config global.Configuration, facts platform.Facts, collab Collaborators) *Sequencer {
	return &Sequencer{
		config: config,
		facts:  facts,
		collab: collab,
		node:   &ProvisionedNode{Name: facts.Hostname, Phase: PhaseValidating},
		entry:  log.WithField("node", facts.Hostname),
	}
}

// WithLogEntry sets the logger fields carried by every message of the run.
func (s *Sequencer) WithLogEntry(entry *log.Entry) *Sequencer {
	s.entry = entry
	return s
}

// Run takes the node as far as it can. The returned error is a
// *global.ConfigError or *global.UnsupportedPlatformError when the run was
// aborted, a *global.ProvisioningError when a host action failed.
func (s *Sequencer) Run(ctx context.Context) (*ProvisionedNode, error) {
	s.setPhase(PhaseValidating)
	if err := s.timed(PhaseValidating, s.validate); err != nil {
		s.setPhase(PhaseAborted)
		return s.node, err
	}

	steps := []struct {
		phase Phase
		run   func(context.Context) error
	}{
		{PhasePackageTransition, s.transitionPackages},
		{PhaseDirectoriesReady, s.ensureDirectories},
		{PhaseConfigWritten, s.writeConfiguration},
		{PhaseDataInitialized, s.initializeData},
		{PhaseServiceRunning, s.startService},
		{PhaseHardened, s.harden},
	}
	for _, step := range steps {
		run := step.run
		if err := s.timed(step.phase, func() error { return run(ctx) }); err != nil {
			if s.node.PendingAction != "" {
				s.entry.Warnf("Configuration changed but the %s of %s was not applied, the next run applies it",
					s.node.PendingAction, s.plan.layout.ServiceName)
			}
			return s.node, err
		}
		s.setPhase(step.phase)
	}
	return s.node, nil
}

func (s *Sequencer) setPhase(phase Phase) {
	s.node.Phase = phase
	s.entry.WithField("phase", phase.String()).Info("Phase reached")
}

func (s *Sequencer) timed(phase Phase, fn func() error) error {
	global.SetPerformanceObj(phase.String(), true, log.InfoLevel)
	defer global.SetPerformanceObj(phase.String(), false, log.InfoLevel)
	return fn()
}

func (s *Sequencer) fail(phase Phase, action string, err error) error {
	return &global.ProvisioningError{Phase: phase.String(), Action: action, Err: err}
}

// ---------------------------------------------------------------------------
// Validating
// ---------------------------------------------------------------------------

func (s *Sequencer) validate() error {
	// an unsupported platform is reported before a missing version
	version, versionErr := s.facts.Version()
	profile, err := platform.Resolve(s.facts.Platform, version, s.facts.Machine)
	if err != nil {
		return err
	}
	if versionErr != nil {
		return versionErr
	}
	s.plan.profile = profile
	s.plan.layout = profile.ResolveLayout(s.config.Mysql)

	if err := s.config.Validate(); err != nil {
		return err
	}

	if s.plan.tunables, err = galera.EnforceTunables(s.config.Mysql.Tunables); err != nil {
		return err
	}
	s.plan.skipFederated = galera.SkipFederated(profile.Platform, profile.Version)
	s.plan.clusterURL = galera.BuildClusterURL(s.config.Galera.Nodes, s.config.Wsrep.Port)

	s.plan.sstAddress = s.config.Wsrep.SstReceiveAddress
	if s.plan.sstAddress == "" {
		if s.plan.sstAddress, err = s.facts.AddressOf(s.config.Wsrep.SstReceiveInterface); err != nil {
			return err
		}
	}

	persisted, err := s.collab.Secrets.Load()
	if err != nil {
		return err
	}
	secrets, changed, err := resolveSecrets(s.config, persisted)
	if err != nil {
		return err
	}
	s.node.Credentials = secrets
	s.plan.saveSecrets = changed

	if s.config.Galera.InitNode != "" {
		s.entry.WithField("initiator", s.config.Galera.InitNode).Debug("Initiator node configured")
	}
	s.entry.WithFields(log.Fields{
		"platform":  profile.Platform,
		"branch":    profile.Branch,
		"arch":      profile.Arch,
		"wsrepUrls": s.plan.clusterURL,
	}).Info("Preconditions verified")

	// last step, only once every check passed
	if s.plan.saveSecrets {
		if err := s.collab.Secrets.Save(secrets); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// PackageTransition
// ---------------------------------------------------------------------------

// The Galera server conflicts with the stock server package, which goes first.
func (s *Sequencer) transitionPackages(ctx context.Context) error {
	phase := PhasePackageTransition
	packages := s.collab.Packages(s.plan.profile)

	for _, name := range s.config.Mysql.ServerPackages {
		installed, err := packages.IsInstalled(ctx, name)
		if err != nil {
			return s.fail(phase, "query "+name, err)
		}
		if !installed {
			continue
		}
		s.entry.WithField("package", name).Info("Removing generic MySQL server package")
		if err := packages.Remove(ctx, name); err != nil {
			return s.fail(phase, "remove "+name, err)
		}
		s.node.record("remove", name)
	}

	for _, name := range s.plan.profile.SupportPackages {
		if err := s.installPackage(ctx, packages, name, "", ""); err != nil {
			return err
		}
	}

	if _, err := s.collab.Files.EnsureDirectory(s.config.Packages.CacheDir, "root", "root", true); err != nil {
		return s.fail(phase, "create "+s.config.Packages.CacheDir, err)
	}

	artifacts := []struct {
		name     string
		root     string
		artifact string
	}{
		{s.plan.profile.GaleraPackage, s.config.Packages.GaleraDownloadRoot, s.plan.profile.GaleraArtifact},
		{s.plan.profile.ServerPackage, s.config.Packages.ServerDownloadRoot, s.plan.profile.ServerArtifact},
	}
	for _, a := range artifacts {
		if err := s.installPackage(ctx, packages, a.name, a.root, a.artifact); err != nil {
			return err
		}
	}
	return nil
}

// installPackage installs name unless present. Without an artifact the
// package comes from the configured repositories.
func (s *Sequencer) installPackage(ctx context.Context, packages PackageManager, name string, downloadRoot string, artifact string) error {
	phase := PhasePackageTransition
	installed, err := packages.IsInstalled(ctx, name)
	if err != nil {
		return s.fail(phase, "query "+name, err)
	}
	if installed {
		s.entry.WithField("package", name).Debug("Package already installed")
		return nil
	}

	var localPath string
	if artifact != "" {
		url := strings.TrimSuffix(downloadRoot, "/") + "/" + artifact
		localPath = filepath.Join(s.config.Packages.CacheDir, artifact)

		checksum := s.config.Packages.Checksums[artifact]
		if checksum == "" {
			s.entry.WithField("artifact", artifact).Warn("No checksum configured, trusting the download root")
		}
		s.entry.WithField("artifact", artifact).Info("Downloading ", url)
		fetched, err := s.collab.Fetcher.FetchIfMissing(ctx, url, localPath, checksum)
		if err != nil {
			return s.fail(phase, "download "+artifact, err)
		}
		if fetched {
			s.node.record("download", artifact)
		}
	}

	s.entry.WithField("package", name).Info("Installing package")
	if err := packages.Install(ctx, name, localPath); err != nil {
		return s.fail(phase, "install "+name, err)
	}
	s.node.record("install", name)
	return nil
}

// ---------------------------------------------------------------------------
// DirectoriesReady
// ---------------------------------------------------------------------------

func (s *Sequencer) serverDirectories() []string {
	conf := s.config.Mysql
	candidates := []string{
		filepath.Dir(conf.PidFile),
		filepath.Dir(conf.SlowQueryLog),
		conf.ConfdDir,
		conf.LogDir,
		conf.DataDir,
	}
	seen := make(map[string]bool, len(candidates))
	var dirs []string
	for _, d := range candidates {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		dirs = append(dirs, d)
	}
	return dirs
}

func (s *Sequencer) ensureDirectories(_ context.Context) error {
	for _, dir := range s.serverDirectories() {
		created, err := s.collab.Files.EnsureDirectory(dir, mysqlUser, mysqlGroup, true)
		if err != nil {
			return s.fail(PhaseDirectoriesReady, "create "+dir, err)
		}
		if created {
			s.node.record("mkdir", dir)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// ConfigWritten
// ---------------------------------------------------------------------------

func (s *Sequencer) writeConfiguration(_ context.Context) error {
	phase := PhaseConfigWritten
	artifacts, err := galera.Render(galera.RenderInput{
		Config:            s.config,
		Profile:           s.plan.profile,
		ClusterURL:        s.plan.clusterURL,
		SkipFederated:     s.plan.skipFederated,
		SstReceiveAddress: s.plan.sstAddress,
		Tunables:          s.plan.tunables,
		WsrepPassword:     s.node.Credentials.WsrepPassword,
	})
	if err != nil {
		return s.fail(phase, "render", err)
	}

	anyChanged := false
	for _, artifact := range artifacts.All() {
		changed, err := s.collab.Files.WriteFile(artifact.Path, []byte(artifact.Content),
			artifact.Owner, artifact.Group, artifact.Mode)
		if err != nil {
			return s.fail(phase, "write "+artifact.Path, err)
		}
		if changed {
			s.node.record("write", artifact.Path)
			s.entry.WithField("file", artifact.Path).Info("Configuration updated")
			// scheduled before the next file is touched
			if !anyChanged {
				if err := s.schedulePendingAction(); err != nil {
					return err
				}
			}
			anyChanged = true
		}
	}
	if anyChanged {
		return nil
	}
	return s.resumePendingAction()
}

func (s *Sequencer) pendingActionPath() string {
	return filepath.Join(s.config.Global.StateDir, pendingActionFile)
}

// schedulePendingAction keeps the reload policy action on disk until
// applyPendingAction has run it, so a run that stops early leaves it to the
// next one.
func (s *Sequencer) schedulePendingAction() error {
	action := s.config.Mysql.ReloadAction
	if action != ReloadActionRestart && action != ReloadActionReload {
		s.entry.Infof("Configuration updated but mysql.reloadAction is %s. No action taken.", action)
		return nil
	}
	stateDir := s.config.Global.StateDir
	if _, err := s.collab.Files.EnsureDirectory(stateDir, "root", "root", true); err != nil {
		return s.fail(PhaseConfigWritten, "create "+stateDir, err)
	}
	if _, err := s.collab.Files.WriteFile(s.pendingActionPath(), []byte(action+"\n"), "root", "root", 0644); err != nil {
		return s.fail(PhaseConfigWritten, "write "+s.pendingActionPath(), err)
	}
	s.node.PendingAction = action
	return nil
}

// resumePendingAction picks up an action a previous run scheduled but did not
// get to apply. The current reload policy decides what runs.
func (s *Sequencer) resumePendingAction() error {
	marker := s.pendingActionPath()
	if !s.collab.Files.Exists(marker) {
		return nil
	}
	action := s.config.Mysql.ReloadAction
	if action != ReloadActionRestart && action != ReloadActionReload {
		s.entry.Infof("A previous run left a service action pending but mysql.reloadAction is %s. No action taken.", action)
		if err := s.collab.Files.Remove(marker); err != nil {
			return s.fail(PhaseConfigWritten, "remove "+marker, err)
		}
		return nil
	}
	s.entry.WithField("action", action).Warn("Configuration written by a previous run was never applied, scheduling it")
	s.node.PendingAction = action
	return nil
}

// ---------------------------------------------------------------------------
// DataInitialized
// ---------------------------------------------------------------------------

func (s *Sequencer) initializeData(ctx context.Context) error {
	dataDir := s.config.Mysql.DataDir
	marker := filepath.Join(dataDir, systemUserTable)
	s.node.DataDirPresent = s.collab.Files.Exists(marker)
	if s.node.DataDirPresent {
		s.entry.WithField("datadir", dataDir).Info("Data directory already initialized")
		return nil
	}

	s.entry.WithField("datadir", dataDir).Info("Initializing data directory")
	if err := s.collab.Commands.Run(ctx, s.config.Mysql.InstallDbBin, "--user="+mysqlUser, "--datadir="+dataDir); err != nil {
		return s.fail(PhaseDataInitialized, s.config.Mysql.InstallDbBin, err)
	}
	s.node.record("initialize", dataDir)
	return nil
}

// ---------------------------------------------------------------------------
// ServiceRunning
// ---------------------------------------------------------------------------

func (s *Sequencer) startService(ctx context.Context) error {
	service := s.plan.layout.ServiceName
	if err := s.collab.Services.EnsureRunning(ctx, service); err != nil {
		return s.fail(PhaseServiceRunning, "start "+service, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Hardened
// ---------------------------------------------------------------------------

// harden runs the three administrative steps with wsrep off for the
// session, then applies the service action left by ConfigWritten.
func (s *Sequencer) harden(ctx context.Context) error {
	phase := PhaseHardened
	socket := s.plan.layout.Socket
	passwordless := host.Credentials{User: "root", Socket: socket}
	root := host.Credentials{User: "root", Password: s.node.Credentials.RootPassword, Socket: socket}

	probe := host.Statement{Name: "probe-root-login", Query: SQLGalera.Dml_probe_login}
	if err := s.collab.SQL.Execute(ctx, passwordless, false, probe); err == nil {
		s.entry.Info("Root accepts passwordless login, assigning the root password")
		err := s.collab.SQL.Execute(ctx, passwordless, true,
			host.Statement{Name: "assign-root-password", Query: SQLGalera.Dml_assign_root_password,
				Args: []interface{}{s.node.Credentials.RootPassword}},
			host.Statement{Name: "flush-privileges", Query: SQLGalera.Dml_flush_privileges})
		if err != nil {
			return s.fail(phase, "assign-root-password", err)
		}
		s.node.record("sql", "assign-root-password")
	} else {
		s.entry.Debug("Root password already set")
	}

	err := s.collab.SQL.Execute(ctx, root, true,
		host.Statement{Name: "delete-blank-users", Query: SQLGalera.Dml_delete_blank_users, Args: []interface{}{""}},
		host.Statement{Name: "flush-privileges", Query: SQLGalera.Dml_flush_privileges})
	if err != nil {
		return s.fail(phase, "delete-blank-users", err)
	}

	err = s.collab.SQL.Execute(ctx, root, true,
		host.Statement{Name: "grant-wsrep-user", Query: SQLGalera.Dml_grant_wsrep_user,
			Args: []interface{}{s.config.Wsrep.User, s.node.Credentials.WsrepPassword}})
	if err != nil {
		return s.fail(phase, "grant-wsrep-user", err)
	}

	return s.applyPendingAction(ctx)
}

func (s *Sequencer) applyPendingAction(ctx context.Context) error {
	action := s.node.PendingAction
	if action == "" {
		return nil
	}
	service := s.plan.layout.ServiceName
	var err error
	switch action {
	case ReloadActionRestart:
		err = s.collab.Services.Restart(ctx, service)
	case ReloadActionReload:
		err = s.collab.Services.Reload(ctx, service)
	}
	if err != nil {
		return s.fail(PhaseHardened, action+" "+service, err)
	}
	if err := s.collab.Files.Remove(s.pendingActionPath()); err != nil {
		return s.fail(PhaseHardened, "remove "+s.pendingActionPath(), err)
	}
	s.node.record(action, service)
	s.node.PendingAction = ""
	return nil
}

// Preview runs the read only checks and renders both files without touching
// the host. Generated secrets are not saved and the SST password is masked.
func (s *Sequencer) Preview() (galera.Artifacts, error) {
	saver := s.collab.Secrets
	s.collab.Secrets = readOnlySecrets{saver}
	defer func() { s.collab.Secrets = saver }()

	if err := s.validate(); err != nil {
		return galera.Artifacts{}, err
	}
	return galera.Render(galera.RenderInput{
		Config:            s.config,
		Profile:           s.plan.profile,
		ClusterURL:        s.plan.clusterURL,
		SkipFederated:     s.plan.skipFederated,
		SstReceiveAddress: s.plan.sstAddress,
		Tunables:          s.plan.tunables,
		WsrepPassword:     "********",
	})
}

type readOnlySecrets struct {
	SecretStore
}

func (readOnlySecrets) Save(Secrets) error {
	return nil
}
