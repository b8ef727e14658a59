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
	"fmt"
)

type Phase int

const (
	PhaseValidating Phase = iota
	PhasePackageTransition
	PhaseDirectoriesReady
	PhaseConfigWritten
	PhaseDataInitialized
	PhaseServiceRunning
	PhaseHardened
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseValidating:
		return "Validating"
	case PhasePackageTransition:
		return "PackageTransition"
	case PhaseDirectoriesReady:
		return "DirectoriesReady"
	case PhaseConfigWritten:
		return "ConfigWritten"
	case PhaseDataInitialized:
		return "DataInitialized"
	case PhaseServiceRunning:
		return "ServiceRunning"
	case PhaseHardened:
		return "Hardened"
	case PhaseAborted:
		return "Aborted"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// IsTerminal is true for Hardened and Aborted.
func (p Phase) IsTerminal() bool {
	return p == PhaseHardened || p == PhaseAborted
}

const (
	ReloadActionRestart = "restart"
	ReloadActionReload  = "reload"
	ReloadActionNone    = "none"
)

// ProvisionedNode is the state of one run on this node. Actions lists the
// mutating calls issued, in order, as "verb:target".
type ProvisionedNode struct {
	Name           string
	Phase          Phase
	DataDirPresent bool
	Credentials    Secrets
	PendingAction  string
	Actions        []string
}

func (node *ProvisionedNode) record(verb string, target string) {
	node.Actions = append(node.Actions, verb+":"+target)
}
