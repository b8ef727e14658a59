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

	log "github.com/sirupsen/logrus"
)

// SystemdManager drives the database service through systemctl.
type SystemdManager struct {
	runner Runner
}

func NewSystemdManager(runner Runner) *SystemdManager {
	return &SystemdManager{runner: runner}
}

// EnsureRunning enables the unit and starts it, a no-op when already active.
func (s *SystemdManager) EnsureRunning(ctx context.Context, name string) error {
	if err := s.runner.Run(ctx, "systemctl", "is-active", "--quiet", name); err == nil {
		log.WithField("service", name).Debug("service already running")
		return s.runner.Run(ctx, "systemctl", "enable", name)
	}
	return s.runner.Run(ctx, "systemctl", "enable", "--now", name)
}

func (s *SystemdManager) Restart(ctx context.Context, name string) error {
	return s.runner.Run(ctx, "systemctl", "restart", name)
}

func (s *SystemdManager) Reload(ctx context.Context, name string) error {
	return s.runner.Run(ctx, "systemctl", "reload", name)
}

// UpstartManager is used on hosts where the server ships an upstart job.
type UpstartManager struct {
	runner Runner
}

func NewUpstartManager(runner Runner) *UpstartManager {
	return &UpstartManager{runner: runner}
}

func (u *UpstartManager) EnsureRunning(ctx context.Context, name string) error {
	output, err := u.runner.Output(ctx, "initctl", "status", name)
	if err == nil && strings.Contains(output, "start/running") {
		log.WithField("service", name).Debug("service already running")
		return nil
	}
	return u.runner.Run(ctx, "initctl", "start", name)
}

func (u *UpstartManager) Restart(ctx context.Context, name string) error {
	return u.runner.Run(ctx, "initctl", "restart", name)
}

func (u *UpstartManager) Reload(ctx context.Context, name string) error {
	return u.runner.Run(ctx, "initctl", "reload", name)
}
