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
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/template"

	global "galera_node_bootstrap/internal/Global"
	platform "galera_node_bootstrap/internal/Platform"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

var templates = template.Must(template.New("galera").
	Funcs(template.FuncMap{"onOff": onOff}).
	ParseFS(templateFiles, "templates/*.tmpl"))

const (
	MyCnfName    = "my.cnf"
	WsrepCnfName = "wsrep.cnf"
)

// RenderInput carries everything the two files depend on. Tunables must
// already have gone through EnforceTunables.
type RenderInput struct {
	Config            global.Configuration
	Profile           platform.Profile
	ClusterURL        string
	SkipFederated     bool
	SstReceiveAddress string
	Tunables          map[string]string
	WsrepPassword     string
}

type Artifact struct {
	Path    string
	Content string
	Owner   string
	Group   string
	Mode    os.FileMode
}

type Artifacts struct {
	MyCnf    Artifact
	WsrepCnf Artifact
	// peers of wsrep_urls in the order the node tries them
	Peers []string
}

// All returns the artifacts in the order they are written.
func (a Artifacts) All() []Artifact {
	return []Artifact{a.MyCnf, a.WsrepCnf}
}

type tunable struct {
	Key   string
	Value string
}

type myCnfData struct {
	Port          int
	Socket        string
	PidFile       string
	DataDir       string
	LogDir        string
	SlowQueryLog  string
	ConfdDir      string
	ClusterURL    string
	SkipFederated bool
	Tunables      []tunable
}

type wsrepCnfData struct {
	global.Wsrep
	Provider          string
	SstReceiveAddress string
}

// Render builds my.cnf and wsrep.cnf. Same input, same bytes.
func Render(in RenderInput) (Artifacts, error) {
	if in.ClusterURL == "" {
		return Artifacts{}, global.NewConfigError("wsrep_urls", "bootstrap descriptor is empty")
	}
	if in.SstReceiveAddress == "" {
		return Artifacts{}, global.NewConfigError("wsrep.sstReceiveAddress", "SST receive address is not resolved")
	}
	mysqlConf := in.Config.Mysql
	layout := in.Profile.ResolveLayout(mysqlConf)

	myCnf, err := execute(MyCnfName, myCnfData{
		Port:          mysqlConf.Port,
		Socket:        layout.Socket,
		PidFile:       mysqlConf.PidFile,
		DataDir:       mysqlConf.DataDir,
		LogDir:        mysqlConf.LogDir,
		SlowQueryLog:  mysqlConf.SlowQueryLog,
		ConfdDir:      mysqlConf.ConfdDir,
		ClusterURL:    in.ClusterURL,
		SkipFederated: in.SkipFederated,
		Tunables:      sortedTunables(in.Tunables),
	})
	if err != nil {
		return Artifacts{}, err
	}

	wsrep := in.Config.Wsrep
	wsrep.Password = in.WsrepPassword
	provider := wsrep.Provider
	if provider == "" {
		provider = in.Profile.ProviderPath
	}
	wsrepCnf, err := execute(WsrepCnfName, wsrepCnfData{
		Wsrep:             wsrep,
		Provider:          provider,
		SstReceiveAddress: in.SstReceiveAddress,
	})
	if err != nil {
		return Artifacts{}, err
	}

	return Artifacts{
		MyCnf: Artifact{
			Path:    filepath.Join(layout.ConfDir, MyCnfName),
			Content: myCnf,
			Owner:   "root",
			Group:   layout.RootGroup,
			Mode:    0644,
		},
		// holds the SST credentials
		WsrepCnf: Artifact{
			Path:    filepath.Join(mysqlConf.ConfdDir, WsrepCnfName),
			Content: wsrepCnf,
			Owner:   "root",
			Group:   "mysql",
			Mode:    0640,
		},
		Peers: ParseClusterURL(in.ClusterURL),
	}, nil
}

func execute(name string, data interface{}) (string, error) {
	var b bytes.Buffer
	if err := templates.ExecuteTemplate(&b, name+".tmpl", data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return b.String(), nil
}

func sortedTunables(in map[string]string) []tunable {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]tunable, 0, len(keys))
	for _, k := range keys {
		out = append(out, tunable{Key: k, Value: in[k]})
	}
	return out
}

func onOff(b bool) int {
	return global.Bool2int(b)
}
