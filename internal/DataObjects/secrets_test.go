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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	global "galera_node_bootstrap/internal/Global"
)

func TestResolveSecrets(t *testing.T) {
	config := global.DefaultConfiguration()

	generated, changed, err := resolveSecrets(config, Secrets{})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, generated.RootPassword, secretLength)
	assert.Len(t, generated.WsrepPassword, secretLength)
	assert.NotEqual(t, generated.RootPassword, generated.WsrepPassword)

	reused, changed, err := resolveSecrets(config, generated)
	require.NoError(t, err)
	assert.False(t, changed, "persisted secrets are reused as they are")
	assert.Equal(t, generated, reused)

	config.Mysql.RootPassword = "from-config"
	overridden, changed, err := resolveSecrets(config, generated)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "from-config", overridden.RootPassword)
	assert.Equal(t, generated.WsrepPassword, overridden.WsrepPassword)
}

func TestResolveSecretsWithoutGeneration(t *testing.T) {
	config := global.DefaultConfiguration()
	config.Global.AutoGenerateSecrets = false
	config.Wsrep.Password = "sst"

	_, _, err := resolveSecrets(config, Secrets{})
	var configErr *global.ConfigError
	require.True(t, errors.As(err, &configErr))
	assert.Equal(t, "mysql.rootPassword", configErr.Field)

	resolved, _, err := resolveSecrets(config, Secrets{RootPassword: "persisted"})
	require.NoError(t, err)
	assert.Equal(t, Secrets{RootPassword: "persisted", WsrepPassword: "sst"}, resolved)
}

func TestFileSecretStore(t *testing.T) {
	store := FileSecretStore{Path: filepath.Join(t.TempDir(), "etc", "secrets.toml")}

	empty, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Secrets{}, empty)

	want := Secrets{RootPassword: "r00t", WsrepPassword: "sst"}
	require.NoError(t, store.Save(want))

	info, err := os.Stat(store.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "DataInitialized", PhaseDataInitialized.String())
	assert.Equal(t, "Phase(42)", Phase(42).String())
	assert.True(t, PhaseAborted.IsTerminal())
	assert.False(t, PhaseServiceRunning.IsTerminal())
}
