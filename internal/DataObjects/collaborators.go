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
	"os"

	host "galera_node_bootstrap/internal/Host"
	platform "galera_node_bootstrap/internal/Platform"
)

/*
The sequencer only talks to the host through these interfaces.
Real implementations live in internal/Host, tests use recording fakes.
*/

type PackageManager interface {
	IsInstalled(ctx context.Context, name string) (bool, error)
	Remove(ctx context.Context, name string) error
	// Install from sourcePath when set, from the configured repositories otherwise
	Install(ctx context.Context, name string, sourcePath string) error
}

type Fetcher interface {
	FetchIfMissing(ctx context.Context, url string, destPath string, checksum string) (bool, error)
}

type ServiceManager interface {
	EnsureRunning(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	Reload(ctx context.Context, name string) error
}

type FileSystem interface {
	Exists(path string) bool
	EnsureDirectory(path string, owner string, group string, recursive bool) (bool, error)
	WriteFile(path string, content []byte, owner string, group string, mode os.FileMode) (bool, error)
	// Remove deletes path, a missing path is not an error
	Remove(path string) error
}

type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type SQLExecutor interface {
	Execute(ctx context.Context, creds host.Credentials, localOnly bool, statements ...host.Statement) error
}

type SecretStore interface {
	Load() (Secrets, error)
	Save(secrets Secrets) error
}

// Collaborators groups what a run needs. Packages is a factory because rpm or
// dpkg is only known once the platform is resolved.
type Collaborators struct {
	Packages func(profile platform.Profile) PackageManager
	Fetcher  Fetcher
	Services ServiceManager
	Files    FileSystem
	Commands CommandRunner
	SQL      SQLExecutor
	Secrets  SecretStore
}
