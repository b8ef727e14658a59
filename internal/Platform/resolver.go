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
	"strings"

	global "galera_node_bootstrap/internal/Global"
)

const (
	BranchRhel   = "rhel"
	BranchDebian = "debian"

	ArchI386  = "i386"
	ArchX8664 = "x86_64"
)

// Layout holds the server file layout that differs per platform branch.
type Layout struct {
	ConfDir     string
	Socket      string
	ServiceName string
	RootGroup   string
}

// Profile is built once per run and never modified afterwards.
type Profile struct {
	Platform        string
	Branch          string
	Version         float64
	Arch            string
	GaleraPackage   string
	GaleraArtifact  string
	ServerPackage   string
	ServerArtifact  string
	ProviderPath    string
	SupportPackages []string
	Layout          Layout
}

type branchTable struct {
	galeraArtifacts map[string]string
	serverArtifacts map[string]string
	serverPackage   string
	providerPath    string
	supportPackages []string
	layout          Layout
}

var rhelTable = branchTable{
	galeraArtifacts: map[string]string{
		ArchI386:  "galera-23.2.2-1.rhel5.i386.rpm",
		ArchX8664: "galera-23.2.2-1.rhel5.x86_64.rpm",
	},
	serverArtifacts: map[string]string{
		ArchI386:  "MySQL-server-5.5.28_wsrep_23.7-1.rhel5.i386.rpm",
		ArchX8664: "MySQL-server-5.5.28_wsrep_23.7-1.rhel5.x86_64.rpm",
	},
	serverPackage:   "MySQL-server",
	providerPath:    "/usr/lib64/galera/libgalera_smm.so",
	supportPackages: []string{"openssl", "psmisc", "libaio", "wget", "rsync", "nc"},
	layout: Layout{
		ConfDir:     "/etc",
		Socket:      "/var/lib/mysql/mysql.sock",
		ServiceName: "mysql",
		RootGroup:   "root",
	},
}

var debianTable = branchTable{
	galeraArtifacts: map[string]string{
		ArchI386:  "galera-23.2.2-i386.deb",
		ArchX8664: "galera-23.2.2-amd64.deb",
	},
	serverArtifacts: map[string]string{
		ArchI386:  "mysql-server-wsrep-5.5.28-23.7-i386.deb",
		ArchX8664: "mysql-server-wsrep-5.5.28-23.7-amd64.deb",
	},
	serverPackage:   "mysql-server-wsrep",
	providerPath:    "/usr/lib/galera/libgalera_smm.so",
	supportPackages: []string{"libssl0.9.8", "psmisc", "libaio1", "wget", "rsync", "netcat"},
	layout: Layout{
		ConfDir:     "/etc/mysql",
		Socket:      "/var/run/mysqld/mysqld.sock",
		ServiceName: "mysql",
		RootGroup:   "root",
	},
}

var rhelFamily = map[string]bool{
	"centos":     true,
	"redhat":     true,
	"fedora":     true,
	"suse":       true,
	"scientific": true,
	"amazon":     true,
}

// desktop platforms the Galera server is not shipped for
var unsupportedPlatforms = map[string]bool{
	"windows":  true,
	"mac_os_x": true,
	"darwin":   true,
}

var archAliases = map[string]string{
	"i386":   ArchI386,
	"i686":   ArchI386,
	"386":    ArchI386,
	"x86_64": ArchX8664,
	"amd64":  ArchX8664,
}

// Resolve maps platform facts to the package artifacts and paths of this
// Galera release. It is a pure table lookup.
func Resolve(platform string, version float64, arch string) (Profile, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		return Profile{}, &global.UnsupportedPlatformError{Platform: "<empty>", Arch: arch, Reason: "platform is unknown"}
	}
	if unsupportedPlatforms[platform] {
		return Profile{}, &global.UnsupportedPlatformError{
			Platform: platform,
			Arch:     arch,
			Reason:   "Windows and Mac OS X are not supported by the Galera MySQL solution",
		}
	}

	normalizedArch, ok := archAliases[strings.ToLower(arch)]
	if !ok {
		return Profile{}, &global.UnsupportedPlatformError{
			Platform: platform,
			Arch:     arch,
			Reason:   "no Galera packages are published for this architecture",
		}
	}

	table, branch := debianTable, BranchDebian
	if rhelFamily[platform] {
		table, branch = rhelTable, BranchRhel
	}

	support := make([]string, len(table.supportPackages))
	copy(support, table.supportPackages)

	return Profile{
		Platform:        platform,
		Branch:          branch,
		Version:         version,
		Arch:            normalizedArch,
		GaleraPackage:   "galera",
		GaleraArtifact:  table.galeraArtifacts[normalizedArch],
		ServerPackage:   table.serverPackage,
		ServerArtifact:  table.serverArtifacts[normalizedArch],
		ProviderPath:    table.providerPath,
		SupportPackages: support,
		Layout:          table.layout,
	}, nil
}

// IsRhel reports whether packages for this profile are rpm based.
func (p Profile) IsRhel() bool {
	return p.Branch == BranchRhel
}

// ResolveLayout returns the layout with the values set in the configuration
// taking precedence over the platform defaults.
func (p Profile) ResolveLayout(conf global.Mysql) Layout {
	layout := p.Layout
	if conf.ConfDir != "" {
		layout.ConfDir = conf.ConfDir
	}
	if conf.Socket != "" {
		layout.Socket = conf.Socket
	}
	if conf.ServiceName != "" {
		layout.ServiceName = conf.ServiceName
	}
	if conf.RootGroup != "" {
		layout.RootGroup = conf.RootGroup
	}
	return layout
}
