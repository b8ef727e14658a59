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

package Platform

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	global "galera_node_bootstrap/internal/Global"
)

// Facts describe the host. They are either read from a YAML file produced by
// the automation layer or discovered on the node.
type Facts struct {
	Platform        string            `yaml:"platform"`
	PlatformVersion string            `yaml:"platform_version"`
	Machine         string            `yaml:"machine"`
	Hostname        string            `yaml:"hostname"`
	Interfaces      map[string]string `yaml:"interfaces"`
}

// os-release ID values that differ from the platform names used in the tables
var osReleaseIds = map[string]string{
	"rhel":          "redhat",
	"amzn":          "amazon",
	"sles":          "suse",
	"opensuse":      "suse",
	"opensuse-leap": "suse",
	"scientific":    "scientific",
}

func LoadFacts(path string) (Facts, error) {
	var facts Facts
	data, err := os.ReadFile(path)
	if err != nil {
		return facts, fmt.Errorf("reading facts file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &facts); err != nil {
		return facts, fmt.Errorf("parsing facts file %s: %w", path, err)
	}
	return facts, nil
}

// DiscoverFacts reads /etc/os-release and the network interfaces of the host.
func DiscoverFacts() (Facts, error) {
	facts := Facts{Machine: goArchToMachine(runtime.GOARCH)}

	switch runtime.GOOS {
	case "windows":
		facts.Platform = "windows"
	case "darwin":
		facts.Platform = "mac_os_x"
	default:
		data, err := os.ReadFile("/etc/os-release")
		if err != nil {
			return facts, fmt.Errorf("reading /etc/os-release: %w", err)
		}
		release := parseOsRelease(string(data))
		facts.Platform = normalizePlatform(release["ID"])
		facts.PlatformVersion = release["VERSION_ID"]
	}

	if hostname, err := os.Hostname(); err == nil {
		facts.Hostname = hostname
	}

	interfaces, err := net.Interfaces()
	if err != nil {
		return facts, fmt.Errorf("listing network interfaces: %w", err)
	}
	facts.Interfaces = make(map[string]string, len(interfaces))
	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			log.WithField("interface", iface.Name).Debug("cannot read addresses: ", err)
			continue
		}
		if ip := firstIPv4(addrs); ip != "" {
			facts.Interfaces[iface.Name] = ip
		}
	}
	return facts, nil
}

// Version returns the numeric major.minor version, 7.9.2009 becomes 7.9
func (f Facts) Version() (float64, error) {
	v := strings.TrimSpace(f.PlatformVersion)
	if v == "" {
		return 0, global.NewConfigError("facts.platform_version", "platform version is unknown")
	}
	parts := strings.SplitN(v, ".", 3)
	if len(parts) > 2 {
		v = parts[0] + "." + parts[1]
	}
	version, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, global.NewConfigError("facts.platform_version", "%q is not numeric", f.PlatformVersion)
	}
	return version, nil
}

// AddressOf returns the IPv4 address bound to the interface.
func (f Facts) AddressOf(iface string) (string, error) {
	if ip, ok := f.Interfaces[iface]; ok && ip != "" {
		return ip, nil
	}
	return "", global.NewConfigError("wsrep.sstReceiveInterface", "interface %s has no IPv4 address on %s", iface, f.Hostname)
}

func parseOsRelease(content string) map[string]string {
	release := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keyValue := strings.SplitN(line, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.Trim(strings.TrimSpace(keyValue[1]), `"'`)
		if key != "" && value != "" {
			release[key] = value
		}
	}
	return release
}

func normalizePlatform(id string) string {
	id = strings.ToLower(id)
	if mapped, ok := osReleaseIds[id]; ok {
		return mapped
	}
	return id
}

func goArchToMachine(goarch string) string {
	switch goarch {
	case "amd64":
		return ArchX8664
	case "386":
		return ArchI386
	default:
		return goarch
	}
}

func firstIPv4(addrs []net.Addr) string {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
