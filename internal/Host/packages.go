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

package Host

import (
	"context"
	"strings"
)

// RpmManager installs through yum, local artifacts with localinstall.
type RpmManager struct {
	runner Runner
}

func NewRpmManager(runner Runner) *RpmManager {
	return &RpmManager{runner: runner}
}

func (m *RpmManager) IsInstalled(ctx context.Context, name string) (bool, error) {
	// rpm -q exits 1 for a missing package, that is not a failure here
	output, err := m.runner.Output(ctx, "rpm", "-q", name)
	if err != nil {
		if strings.Contains(output, "is not installed") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m *RpmManager) Remove(ctx context.Context, name string) error {
	return m.runner.Run(ctx, "yum", "-y", "remove", name)
}

func (m *RpmManager) Install(ctx context.Context, name string, sourcePath string) error {
	if sourcePath != "" {
		return m.runner.Run(ctx, "yum", "-y", "--nogpgcheck", "localinstall", sourcePath)
	}
	return m.runner.Run(ctx, "yum", "-y", "install", name)
}

// DpkgManager installs local .deb artifacts with dpkg and the rest with apt-get.
type DpkgManager struct {
	runner Runner
}

func NewDpkgManager(runner Runner) *DpkgManager {
	return &DpkgManager{runner: runner}
}

func (m *DpkgManager) IsInstalled(ctx context.Context, name string) (bool, error) {
	output, err := m.runner.Output(ctx, "dpkg-query", "-W", "-f=${Status}", name)
	if err != nil {
		if strings.Contains(output, "no packages found") || strings.Contains(output, "not installed") {
			return false, nil
		}
		return false, err
	}
	return strings.Contains(output, "install ok installed"), nil
}

func (m *DpkgManager) Remove(ctx context.Context, name string) error {
	return m.runner.Run(ctx, "apt-get", "-y", "remove", name)
}

func (m *DpkgManager) Install(ctx context.Context, name string, sourcePath string) error {
	if sourcePath != "" {
		return m.runner.Run(ctx, "dpkg", "-i", sourcePath)
	}
	return m.runner.Run(ctx, "apt-get", "-y", "install", name)
}
