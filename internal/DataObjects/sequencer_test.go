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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	global "galera_node_bootstrap/internal/Global"
	host "galera_node_bootstrap/internal/Host"
	platform "galera_node_bootstrap/internal/Platform"
)

// fakeHost is an in memory node. Every fake records the calls it receives
// in calls, in order, so tests can check what a run did to the host.
type fakeHost struct {
	installed    map[string]bool
	cached       map[string]bool
	files        map[string][]byte
	dirs         map[string]bool
	running      bool
	rootPassword string
	users        map[string]string
	secrets      Secrets
	failOn       string
	calls        []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		installed: map[string]bool{"mysql-server": true},
		cached:    map[string]bool{},
		files:     map[string][]byte{},
		dirs:      map[string]bool{},
		users:     map[string]string{"": ""},
	}
}

func (h *fakeHost) call(name string) error {
	h.calls = append(h.calls, name)
	if h.failOn != "" && name == h.failOn {
		return errors.New("simulated failure of " + name)
	}
	return nil
}

func (h *fakeHost) countCalls(prefix string) int {
	count := 0
	for _, c := range h.calls {
		if strings.HasPrefix(c, prefix) {
			count++
		}
	}
	return count
}

type fakePackages struct{ h *fakeHost }

func (p fakePackages) IsInstalled(_ context.Context, name string) (bool, error) {
	return p.h.installed[name], nil
}

func (p fakePackages) Remove(_ context.Context, name string) error {
	if err := p.h.call("remove " + name); err != nil {
		return err
	}
	delete(p.h.installed, name)
	return nil
}

func (p fakePackages) Install(_ context.Context, name string, sourcePath string) error {
	if err := p.h.call("install " + name); err != nil {
		return err
	}
	if sourcePath != "" && !p.h.cached[sourcePath] {
		return errors.New(sourcePath + " was not downloaded")
	}
	p.h.installed[name] = true
	return nil
}

type fakeFetcher struct{ h *fakeHost }

func (f fakeFetcher) FetchIfMissing(_ context.Context, url string, destPath string, _ string) (bool, error) {
	if f.h.cached[destPath] {
		return false, nil
	}
	if err := f.h.call("fetch " + url); err != nil {
		return false, err
	}
	f.h.cached[destPath] = true
	return true, nil
}

type fakeServices struct{ h *fakeHost }

func (s fakeServices) EnsureRunning(_ context.Context, name string) error {
	if s.h.running {
		return nil
	}
	if err := s.h.call("start " + name); err != nil {
		return err
	}
	s.h.running = true
	return nil
}

func (s fakeServices) Restart(_ context.Context, name string) error {
	return s.h.call("restart " + name)
}

func (s fakeServices) Reload(_ context.Context, name string) error {
	return s.h.call("reload " + name)
}

type fakeFiles struct{ h *fakeHost }

func (f fakeFiles) Exists(path string) bool {
	_, isFile := f.h.files[path]
	return isFile || f.h.dirs[path]
}

func (f fakeFiles) EnsureDirectory(path string, _ string, _ string, _ bool) (bool, error) {
	if f.h.dirs[path] {
		return false, nil
	}
	if err := f.h.call("mkdir " + path); err != nil {
		return false, err
	}
	f.h.dirs[path] = true
	return true, nil
}

func (f fakeFiles) WriteFile(path string, content []byte, _ string, _ string, _ os.FileMode) (bool, error) {
	if current, ok := f.h.files[path]; ok && string(current) == string(content) {
		return false, nil
	}
	if err := f.h.call("write " + path); err != nil {
		return false, err
	}
	f.h.files[path] = content
	return true, nil
}

func (f fakeFiles) Remove(path string) error {
	if _, ok := f.h.files[path]; !ok {
		return nil
	}
	if err := f.h.call("rm " + path); err != nil {
		return err
	}
	delete(f.h.files, path)
	return nil
}

type fakeCommands struct{ h *fakeHost }

func (c fakeCommands) Run(_ context.Context, name string, args ...string) error {
	if err := c.h.call(name); err != nil {
		return err
	}
	for _, arg := range args {
		if dir := strings.TrimPrefix(arg, "--datadir="); dir != arg {
			c.h.files[filepath.Join(dir, "mysql", "user.frm")] = nil
		}
	}
	return nil
}

// fakeSQL checks the root password like the server would.
type fakeSQL struct{ h *fakeHost }

func (s fakeSQL) Execute(_ context.Context, creds host.Credentials, _ bool, statements ...host.Statement) error {
	if !s.h.running {
		return errors.New("server is not running")
	}
	if creds.User == "root" && creds.Password != s.h.rootPassword {
		return errors.New("access denied for user root")
	}
	for _, stmt := range statements {
		if err := s.h.call("sql " + stmt.Name); err != nil {
			return err
		}
		switch stmt.Name {
		case "assign-root-password":
			s.h.rootPassword = stmt.Args[0].(string)
		case "delete-blank-users":
			delete(s.h.users, stmt.Args[0].(string))
		case "grant-wsrep-user":
			s.h.users[stmt.Args[0].(string)] = stmt.Args[1].(string)
		}
	}
	return nil
}

type fakeSecrets struct{ h *fakeHost }

func (s fakeSecrets) Load() (Secrets, error) {
	return s.h.secrets, nil
}

func (s fakeSecrets) Save(secrets Secrets) error {
	if err := s.h.call("save-secrets"); err != nil {
		return err
	}
	s.h.secrets = secrets
	return nil
}

func (h *fakeHost) collaborators() Collaborators {
	return Collaborators{
		Packages: func(platform.Profile) PackageManager { return fakePackages{h} },
		Fetcher:  fakeFetcher{h},
		Services: fakeServices{h},
		Files:    fakeFiles{h},
		Commands: fakeCommands{h},
		SQL:      fakeSQL{h},
		Secrets:  fakeSecrets{h},
	}
}

func testConfig() global.Configuration {
	config := global.DefaultConfiguration()
	config.Galera.Nodes = []string{"10.0.0.11", "10.0.0.12", "10.0.0.13"}
	config.Galera.InitNode = "10.0.0.11"
	config.Wsrep.ClusterName = "inventory"
	return config
}

func testFacts() platform.Facts {
	return platform.Facts{
		Platform:        "centos",
		PlatformVersion: "6.5",
		Machine:         "x86_64",
		Hostname:        "db1",
		Interfaces:      map[string]string{"eth0": "10.0.0.11"},
	}
}

func runOnce(t *testing.T, config global.Configuration, facts platform.Facts, h *fakeHost) (*ProvisionedNode, error) {
	t.Helper()
	return NewSequencer(config, facts, h.collaborators()).Run(context.Background())
}

func TestSequencerFirstRun(t *testing.T) {
	h := newFakeHost()
	node, err := runOnce(t, testConfig(), testFacts(), h)
	require.NoError(t, err)

	assert.Equal(t, PhaseHardened, node.Phase)
	assert.False(t, node.DataDirPresent)
	assert.Empty(t, node.PendingAction)

	assert.False(t, h.installed["mysql-server"], "generic server is removed")
	assert.True(t, h.installed["galera"])
	assert.True(t, h.installed["MySQL-server"])
	assert.True(t, h.installed["rsync"])
	assert.True(t, h.running)

	assert.NotEmpty(t, h.secrets.RootPassword)
	assert.Equal(t, h.secrets.RootPassword, h.rootPassword)
	assert.Equal(t, h.secrets.WsrepPassword, h.users["wsrep_sst"])
	_, anonymous := h.users[""]
	assert.False(t, anonymous)

	assert.Contains(t, node.Actions, "remove:mysql-server")
	assert.Contains(t, node.Actions, "download:galera-23.2.2-1.rhel5.x86_64.rpm")
	assert.Contains(t, node.Actions, "install:galera")
	assert.Contains(t, node.Actions, "initialize:/var/lib/mysql")
	assert.Contains(t, node.Actions, "sql:assign-root-password")
	assert.Contains(t, node.Actions, "restart:mysql")
	assert.NotContains(t, h.files, pendingMarker, "applied action is cleared")

	myCnf := string(h.files["/etc/my.cnf"])
	assert.Contains(t, myCnf, "wsrep_urls = gcomm://10.0.0.11:4567,gcomm://10.0.0.12:4567,gcomm://10.0.0.13:4567,gcomm://")
	assert.NotContains(t, myCnf, "skip-federated", "centos 6.5 keeps federated")
	wsrepCnf := string(h.files["/etc/mysql/conf.d/wsrep.cnf"])
	assert.Contains(t, wsrepCnf, "wsrep_sst_receive_address    = 10.0.0.11")
	assert.Contains(t, wsrepCnf, h.secrets.WsrepPassword)
}

func TestSequencerOrder(t *testing.T) {
	h := newFakeHost()
	_, err := runOnce(t, testConfig(), testFacts(), h)
	require.NoError(t, err)

	index := func(call string) int {
		for i, c := range h.calls {
			if c == call {
				return i
			}
		}
		t.Fatalf("%s was not called: %v", call, h.calls)
		return -1
	}
	assert.Less(t, index("save-secrets"), index("remove mysql-server"))
	assert.Less(t, index("remove mysql-server"), index("install galera"))
	assert.Less(t, index("install galera"), index("install MySQL-server"))
	assert.Less(t, index("install MySQL-server"), index("mkdir /var/lib/mysql"))
	assert.Less(t, index("mkdir /var/lib/mysql"), index("write /etc/my.cnf"))
	assert.Less(t, index("write /etc/my.cnf"), index("mysql_install_db"))
	assert.Less(t, index("mysql_install_db"), index("start mysql"))
	assert.Less(t, index("start mysql"), index("sql assign-root-password"))
	assert.Less(t, index("sql assign-root-password"), index("sql delete-blank-users"))
	assert.Less(t, index("sql delete-blank-users"), index("sql grant-wsrep-user"))
	assert.Less(t, index("sql grant-wsrep-user"), index("restart mysql"))
}

func TestSequencerSecondRunIsHarmless(t *testing.T) {
	h := newFakeHost()
	_, err := runOnce(t, testConfig(), testFacts(), h)
	require.NoError(t, err)
	firstRoot := h.rootPassword
	h.calls = nil

	node, err := runOnce(t, testConfig(), testFacts(), h)
	require.NoError(t, err)
	assert.Equal(t, PhaseHardened, node.Phase)
	assert.True(t, node.DataDirPresent)

	for _, forbidden := range []string{"remove ", "install ", "fetch ", "write ", "mysql_install_db",
		"restart ", "reload ", "start ", "sql assign-root-password", "save-secrets"} {
		assert.Zero(t, h.countCalls(forbidden), "second run must not call %q: %v", forbidden, h.calls)
	}
	for _, action := range node.Actions {
		assert.NotContains(t, action, "initialize")
		assert.NotContains(t, action, "assign-root-password")
	}
	assert.Equal(t, firstRoot, h.rootPassword, "secrets are not regenerated")
}

func TestSequencerAborts(t *testing.T) {
	tests := []struct {
		name    string
		config  func(*global.Configuration)
		facts   func(*platform.Facts)
		errType interface{}
	}{
		{
			name:    "windows",
			facts:   func(f *platform.Facts) { f.Platform = "windows" },
			errType: &global.UnsupportedPlatformError{},
		},
		{
			name:    "empty node list",
			config:  func(c *global.Configuration) { c.Galera.Nodes = nil; c.Galera.InitNode = "" },
			errType: &global.ConfigError{},
		},
		{
			name:    "initiator outside the node list",
			config:  func(c *global.Configuration) { c.Galera.InitNode = "10.9.9.9" },
			errType: &global.ConfigError{},
		},
		{
			name:    "missing secrets without generation",
			config:  func(c *global.Configuration) { c.Global.AutoGenerateSecrets = false },
			errType: &global.ConfigError{},
		},
		{
			name:    "loopback bind address",
			config:  func(c *global.Configuration) { c.Mysql.Tunables = map[string]string{"bind-address": "127.0.0.1"} },
			errType: &global.ConfigError{},
		},
		{
			name:    "sst interface without address",
			facts:   func(f *platform.Facts) { f.Interfaces = nil },
			errType: &global.ConfigError{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, facts := testConfig(), testFacts()
			if tt.config != nil {
				tt.config(&config)
			}
			if tt.facts != nil {
				tt.facts(&facts)
			}
			h := newFakeHost()
			node, err := runOnce(t, config, facts, h)

			require.Error(t, err)
			assert.IsType(t, tt.errType, err)
			assert.Equal(t, PhaseAborted, node.Phase)
			assert.Empty(t, h.calls, "nothing is touched before validation passes")
			assert.Empty(t, node.Actions)
		})
	}
}

func TestSequencerHaltsOnProvisioningError(t *testing.T) {
	tests := []struct {
		failOn    string
		wantPhase Phase
		wantStep  string
	}{
		{"fetch https://launchpad.net/galera/2.x/23.2.2/+download/galera-23.2.2-1.rhel5.x86_64.rpm", PhaseValidating, "PackageTransition"},
		{"mkdir /var/log/mysql", PhasePackageTransition, "DirectoriesReady"},
		{"write /etc/mysql/conf.d/wsrep.cnf", PhaseDirectoriesReady, "ConfigWritten"},
		{"mysql_install_db", PhaseConfigWritten, "DataInitialized"},
		{"start mysql", PhaseDataInitialized, "ServiceRunning"},
		{"sql grant-wsrep-user", PhaseServiceRunning, "Hardened"},
	}
	for _, tt := range tests {
		t.Run(tt.wantStep, func(t *testing.T) {
			h := newFakeHost()
			h.failOn = tt.failOn
			node, err := runOnce(t, testConfig(), testFacts(), h)

			var provisioningErr *global.ProvisioningError
			require.True(t, errors.As(err, &provisioningErr), "got %v", err)
			assert.Equal(t, tt.wantStep, provisioningErr.Phase)
			assert.Equal(t, tt.wantPhase, node.Phase)
			assert.Equal(t, tt.failOn, h.calls[len(h.calls)-1], "nothing runs after the failure")
			assert.Zero(t, h.countCalls("restart "))
		})
	}
}

func TestSequencerReloadPolicy(t *testing.T) {
	for _, action := range []string{ReloadActionRestart, ReloadActionReload, ReloadActionNone} {
		t.Run(action, func(t *testing.T) {
			config := testConfig()
			config.Mysql.ReloadAction = action
			h := newFakeHost()
			_, err := runOnce(t, config, testFacts(), h)
			require.NoError(t, err)

			restarts, reloads := h.countCalls("restart "), h.countCalls("reload ")
			switch action {
			case ReloadActionRestart:
				assert.Equal(t, 1, restarts, "both files changed, one restart")
				assert.Zero(t, reloads)
			case ReloadActionReload:
				assert.Equal(t, 1, reloads)
				assert.Zero(t, restarts)
			case ReloadActionNone:
				assert.Zero(t, restarts+reloads)
			}
		})
	}
}

func TestSequencerConfigChangeOnLiveNode(t *testing.T) {
	h := newFakeHost()
	_, err := runOnce(t, testConfig(), testFacts(), h)
	require.NoError(t, err)
	h.calls = nil

	config := testConfig()
	config.Galera.Nodes = append(config.Galera.Nodes, "10.0.0.14")
	node, err := runOnce(t, config, testFacts(), h)
	require.NoError(t, err)

	assert.Equal(t, []string{"write /etc/my.cnf", "write " + pendingMarker}, filterCalls(h.calls, "write "))
	assert.Equal(t, 1, h.countCalls("restart mysql"))
	assert.Zero(t, h.countCalls("mysql_install_db"))
	assert.Equal(t, []string{"write:/etc/my.cnf", "restart:mysql"}, node.Actions)
}

const pendingMarker = "/var/lib/galera-bootstrap/pending_service_action"

func TestSequencerResumesActionAfterFailedRun(t *testing.T) {
	h := newFakeHost()
	_, err := runOnce(t, testConfig(), testFacts(), h)
	require.NoError(t, err)

	config := testConfig()
	config.Galera.Nodes = append(config.Galera.Nodes, "10.0.0.14")

	h.calls = nil
	h.failOn = "sql grant-wsrep-user"
	node, err := runOnce(t, config, testFacts(), h)
	require.Error(t, err)
	assert.Equal(t, PhaseServiceRunning, node.Phase)
	assert.Zero(t, h.countCalls("restart "))
	assert.Equal(t, "restart\n", string(h.files[pendingMarker]))
	assert.Contains(t, string(h.files["/etc/my.cnf"]), "gcomm://10.0.0.14:4567")

	h.calls = nil
	h.failOn = ""
	node, err = runOnce(t, config, testFacts(), h)
	require.NoError(t, err)
	assert.Equal(t, PhaseHardened, node.Phase)
	assert.Zero(t, h.countCalls("write "), "configuration is already on disk")
	assert.Equal(t, 1, h.countCalls("restart mysql"))
	assert.Contains(t, node.Actions, "restart:mysql")
	assert.NotContains(t, h.files, pendingMarker)

	h.calls = nil
	_, err = runOnce(t, config, testFacts(), h)
	require.NoError(t, err)
	assert.Zero(t, h.countCalls("restart "), "the action is applied once")
}

func TestSequencerFailedWriteKeepsAction(t *testing.T) {
	h := newFakeHost()
	h.failOn = "write /etc/mysql/conf.d/wsrep.cnf"
	_, err := runOnce(t, testConfig(), testFacts(), h)
	require.Error(t, err)
	assert.Contains(t, h.files, pendingMarker, "my.cnf changed before the failure")

	h.failOn = ""
	_, err = runOnce(t, testConfig(), testFacts(), h)
	require.NoError(t, err)
	assert.Equal(t, 1, h.countCalls("restart mysql"))
	assert.NotContains(t, h.files, pendingMarker)
}

func TestSequencerDropsPendingActionWithNonePolicy(t *testing.T) {
	h := newFakeHost()
	_, err := runOnce(t, testConfig(), testFacts(), h)
	require.NoError(t, err)
	h.files[pendingMarker] = []byte("restart\n")
	h.calls = nil

	config := testConfig()
	config.Mysql.ReloadAction = ReloadActionNone
	_, err = runOnce(t, config, testFacts(), h)
	require.NoError(t, err)
	assert.Zero(t, h.countCalls("restart ")+h.countCalls("reload "))
	assert.NotContains(t, h.files, pendingMarker)
}

func TestSequencerUsesConfiguredSecrets(t *testing.T) {
	config := testConfig()
	config.Mysql.RootPassword = "rootpw"
	config.Wsrep.Password = "sstpw"
	config.Global.AutoGenerateSecrets = false
	h := newFakeHost()

	_, err := runOnce(t, config, testFacts(), h)
	require.NoError(t, err)
	assert.Equal(t, "rootpw", h.rootPassword)
	assert.Equal(t, "sstpw", h.users["wsrep_sst"])
}

func TestSequencerPreview(t *testing.T) {
	h := newFakeHost()
	artifacts, err := NewSequencer(testConfig(), testFacts(), h.collaborators()).Preview()
	require.NoError(t, err)

	assert.Empty(t, h.calls, "preview touches nothing")
	assert.Contains(t, artifacts.WsrepCnf.Content, `"wsrep_sst:********"`)
	assert.Contains(t, artifacts.MyCnf.Content, "binlog_format = ROW")
}

func filterCalls(calls []string, prefix string) []string {
	var out []string
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}
