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

package Global

import (
	"fmt"
)

/*
Error taxonomy used across the bootstrap run.
	ConfigError              bad input, caught while validating, never retried
	UnsupportedPlatformError host cannot run the Galera server at all
	ProvisioningError        an external action failed, re-running is safe
*/

type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func NewConfigError(field string, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type UnsupportedPlatformError struct {
	Platform string
	Arch     string
	Reason   string
}

func (e *UnsupportedPlatformError) Error() string {
	if e.Arch != "" {
		return fmt.Sprintf("unsupported platform %s (%s): %s", e.Platform, e.Arch, e.Reason)
	}
	return fmt.Sprintf("unsupported platform %s: %s", e.Platform, e.Reason)
}

type ProvisioningError struct {
	Phase  string
	Action string
	Err    error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning failed in phase %s while running %s: %v", e.Phase, e.Action, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}
