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

package Galera

import (
	"net"
	"strings"

	log "github.com/sirupsen/logrus"

	global "galera_node_bootstrap/internal/Global"
)

// RequiredTunables must be set this way in my.cnf for Galera to work.
// Any value coming from configuration is replaced.
var RequiredTunables = map[string]string{
	"binlog_format":                  "ROW",
	"innodb_autoinc_lock_mode":       "2",
	"innodb_locks_unsafe_for_binlog": "1",
	"innodb_support_xa":              "0",
}

const bindAddressKey = "bind_address"

// EnforceTunables returns a copy of in with the required Galera settings
// written over whatever was there. bind-address is dropped, Galera needs the
// server reachable from its peers, and a loopback value is rejected.
func EnforceTunables(in map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(in)+len(RequiredTunables))
	for k, v := range in {
		out[normalizeTunableKey(k)] = v
	}

	if value, ok := out[bindAddressKey]; ok {
		if isLoopback(value) {
			return nil, global.NewConfigError("mysql.tunables.bind-address",
				"%s binds the server to loopback, peers would not reach it", value)
		}
		log.WithField("tunable", bindAddressKey).Warn("bind-address is not rendered for Galera nodes, ignoring ", value)
		delete(out, bindAddressKey)
	}

	for key, required := range RequiredTunables {
		if current, ok := out[key]; ok && !strings.EqualFold(current, required) {
			log.WithFields(log.Fields{"tunable": key, "configured": current, "enforced": required}).
				Warn("Overriding tunable incompatible with Galera")
		}
		out[key] = required
	}
	return out, nil
}

// SkipFederated tells whether the FEDERATED engine must be disabled. The
// Galera server packages ship without it on these platforms.
func SkipFederated(platform string, version float64) bool {
	switch strings.ToLower(platform) {
	case "fedora", "ubuntu", "amazon":
		return true
	case "centos", "redhat", "scientific":
		return version < 6.0
	default:
		return false
	}
}

// my.cnf accepts both spellings, the map keeps one
func normalizeTunableKey(key string) string {
	return strings.ReplaceAll(strings.TrimSpace(key), "-", "_")
}

func isLoopback(value string) bool {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "localhost") {
		return true
	}
	ip := net.ParseIP(value)
	return ip != nil && ip.IsLoopback()
}
