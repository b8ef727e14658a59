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
	"errors"
	"fmt"
	"net"
	"os"
	"reflect"
	"strings"

	"github.com/Tusamarco/toml"
	"github.com/go-playground/validator/v10"
)

/*
Here we have the references objects and methods to deal with the configuration file
Configuration is written in toml using the libraries found in: github.com/Tusamarco/toml
Configuration file has 5 main sections:
	[galera]
		nodes, initNode
	[wsrep]
		cluster name, SST settings and replication tunables
	[mysql]
		server layout, reload action and free form [mysql.tunables]
	[packages]
		download roots, cache and checksums
	[global]
		log, lock and secrets handling
*/

type Configuration struct {
	Galera   GaleraCluster   `toml:"galera"`
	Wsrep    Wsrep           `toml:"wsrep"`
	Mysql    Mysql           `toml:"mysql"`
	Packages Packages        `toml:"packages"`
	Global   GlobalBootstrap `toml:"global"`
}

// GaleraCluster holds the membership. Order of Nodes is significant.
type GaleraCluster struct {
	Nodes    []string `validate:"required,min=1,dive,required"`
	InitNode string
}

type Wsrep struct {
	ClusterName          string `validate:"required"`
	User                 string `validate:"required"`
	Password             string
	Port                 int    `validate:"min=1,max=65535"`
	SstMethod            string `validate:"required"`
	SstReceiveInterface  string
	SstReceiveAddress    string
	SlaveThreads         int `validate:"min=1"`
	CertifyNonPK         bool
	MaxWsRows            int64 `validate:"min=0"`
	MaxWsSize            int64 `validate:"min=0"`
	RetryAutocommit      int   `validate:"min=0"`
	AutoIncrementControl bool
	CausalReads          bool
	Debug                bool
	Provider             string
}

type Mysql struct {
	DataDir        string `validate:"required"`
	ConfDir        string
	ConfdDir       string `validate:"required"`
	LogDir         string `validate:"required"`
	PidFile        string `validate:"required"`
	SlowQueryLog   string `validate:"required"`
	Socket         string
	Port           int `validate:"min=1,max=65535"`
	ServiceName    string
	RootGroup      string
	RootPassword   string
	ReloadAction   string `validate:"oneof=restart reload none"`
	UseUpstart     bool
	ServerPackages []string
	InstallDbBin   string `validate:"required"`
	Tunables       map[string]string
}

type Packages struct {
	GaleraDownloadRoot string `validate:"required,url"`
	ServerDownloadRoot string `validate:"required,url"`
	CacheDir           string `validate:"required"`
	Checksums          map[string]string
}

type GlobalBootstrap struct {
	LogLevel            string
	LogTarget           string // stdout | file
	LogFile             string
	Performance         bool
	AutoGenerateSecrets bool
	SecretsFile         string `validate:"required"`
	StateDir            string `validate:"required"`
	LockFilePath        string
	LockFileTimeout     int64 `validate:"min=0"`
	FactsFile           string
}

var validate = validator.New()

const emptyNodeListReason = "node list is empty, set it to the address of every cluster member"

// fillDefaults sets the stock Galera 23.2.2 defaults. Platform dependent
// values (conf dir, socket, service name, root group) stay empty and are
// resolved against the platform profile later.
func (conf *Configuration) fillDefaults() {
	conf.Wsrep.ClusterName = "my_galera_cluster"
	conf.Wsrep.User = "wsrep_sst"
	conf.Wsrep.Port = 4567
	conf.Wsrep.SstMethod = "rsync"
	conf.Wsrep.SstReceiveInterface = "eth0"
	conf.Wsrep.SlaveThreads = 1
	conf.Wsrep.CertifyNonPK = true
	conf.Wsrep.MaxWsRows = 131072
	conf.Wsrep.MaxWsSize = 1073741824
	conf.Wsrep.RetryAutocommit = 1
	conf.Wsrep.AutoIncrementControl = true

	conf.Mysql.DataDir = "/var/lib/mysql"
	conf.Mysql.ConfdDir = "/etc/mysql/conf.d"
	conf.Mysql.LogDir = "/var/log/mysql"
	conf.Mysql.PidFile = "/var/run/mysqld/mysqld.pid"
	conf.Mysql.SlowQueryLog = "/var/log/mysql/slow.log"
	conf.Mysql.Port = 3306
	conf.Mysql.ReloadAction = "restart"
	conf.Mysql.ServerPackages = []string{"mysql-server"}
	conf.Mysql.InstallDbBin = "mysql_install_db"
	conf.Mysql.Tunables = map[string]string{"default_storage_engine": "InnoDB"}

	conf.Packages.GaleraDownloadRoot = "https://launchpad.net/galera/2.x/23.2.2/+download/"
	conf.Packages.ServerDownloadRoot = "https://launchpad.net/codership-mysql/5.5/5.5.28-23.7/+download/"
	conf.Packages.CacheDir = "/var/cache/galera-bootstrap"

	conf.Global.LogLevel = "info"
	conf.Global.LogTarget = "stdout"
	conf.Global.AutoGenerateSecrets = true
	conf.Global.SecretsFile = "/etc/galera-bootstrap/secrets.toml"
	conf.Global.StateDir = "/var/lib/galera-bootstrap"
	conf.Global.LockFilePath = "/tmp"
	conf.Global.LockFileTimeout = 3600
}

// DefaultConfiguration returns a configuration holding only the defaults.
func DefaultConfiguration() Configuration {
	var config Configuration
	config.fillDefaults()
	return config
}

// GetConfig decodes the toml file over the defaults and applies the
// environment overrides. The result is not validated.
func GetConfig(path string) (Configuration, error) {
	config := DefaultConfiguration()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return config, fmt.Errorf("reading configuration %s: %w", path, err)
	}
	config.applyEnvOverrides(os.LookupEnv)
	return config, nil
}

// applyEnvOverrides lets the automation layer feed membership and credentials
// without rewriting the file.
func (conf *Configuration) applyEnvOverrides(lookup func(string) (string, bool)) {
	if v, ok := lookup("GALERA_NODES"); ok && v != "" {
		var nodes []string
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				nodes = append(nodes, n)
			}
		}
		conf.Galera.Nodes = nodes
	}
	if v, ok := lookup("GALERA_INIT_NODE"); ok {
		conf.Galera.InitNode = strings.TrimSpace(v)
	}
	if v, ok := lookup("WSREP_CLUSTER_NAME"); ok && v != "" {
		conf.Wsrep.ClusterName = v
	}
	if v, ok := lookup("WSREP_PASSWORD"); ok && v != "" {
		conf.Wsrep.Password = v
	}
	if v, ok := lookup("MYSQL_ROOT_PASSWORD"); ok && v != "" {
		conf.Mysql.RootPassword = v
	}
}

// Validate checks the locally verifiable fields. Cluster name agreement across
// nodes cannot be checked from here.
func (conf *Configuration) Validate() error {
	if err := validate.Struct(conf); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			return fieldErrorToConfigError(fieldErrors[0])
		}
		return &ConfigError{Reason: err.Error()}
	}

	seen := make(map[string]bool, len(conf.Galera.Nodes))
	for _, node := range conf.Galera.Nodes {
		if seen[node] {
			return NewConfigError("galera.nodes", "node %s is listed twice", node)
		}
		seen[node] = true
	}

	if conf.Galera.InitNode != "" && !seen[conf.Galera.InitNode] {
		return NewConfigError("galera.initNode", "initiator %s is not one of galera.nodes %v",
			conf.Galera.InitNode, conf.Galera.Nodes)
	}

	if conf.Wsrep.SstReceiveAddress != "" && net.ParseIP(conf.Wsrep.SstReceiveAddress) == nil {
		return NewConfigError("wsrep.sstReceiveAddress", "%q is not an IP address", conf.Wsrep.SstReceiveAddress)
	}
	if conf.Wsrep.SstReceiveAddress == "" && conf.Wsrep.SstReceiveInterface == "" {
		return NewConfigError("wsrep.sstReceiveInterface", "set either sstReceiveInterface or sstReceiveAddress")
	}

	return conf.validateRenderedValues()
}

// Values below end up in my.cnf and wsrep.cnf as they are. A quote or a line
// break would end the value early and let the rest be read as settings.
const (
	forbiddenInQuoted = "\"\r\n"
	forbiddenInValue  = "\r\n"
	forbiddenInKey    = " \t\r\n=\"[]#"
)

func (conf *Configuration) validateRenderedValues() error {
	quoted := []struct {
		field string
		value string
		chars string
	}{
		{"wsrep.clusterName", conf.Wsrep.ClusterName, forbiddenInQuoted},
		{"wsrep.user", conf.Wsrep.User, forbiddenInQuoted + ":"},
		{"wsrep.password", conf.Wsrep.Password, forbiddenInQuoted},
		{"wsrep.sstMethod", conf.Wsrep.SstMethod, forbiddenInKey},
		{"wsrep.provider", conf.Wsrep.Provider, forbiddenInQuoted},
	}
	for _, q := range quoted {
		if strings.ContainsAny(q.value, q.chars) {
			return NewConfigError(q.field, "must not contain any of %q", q.chars)
		}
	}

	for key, value := range conf.Mysql.Tunables {
		if key == "" || strings.ContainsAny(key, forbiddenInKey) {
			return NewConfigError("mysql.tunables", "%q is not a valid option name", key)
		}
		if strings.ContainsAny(value, forbiddenInValue) {
			return NewConfigError("mysql.tunables."+key, "value must be on a single line")
		}
	}
	return nil
}

func fieldErrorToConfigError(fe validator.FieldError) *ConfigError {
	field := configFieldName(fe.Namespace())
	switch fe.Tag() {
	case "required":
		if strings.Contains(fe.Namespace(), "[") {
			return NewConfigError(field, "contains an empty entry")
		}
		if field == "galera.nodes" {
			return NewConfigError(field, emptyNodeListReason)
		}
		return NewConfigError(field, "must be set")
	case "min":
		if fe.Kind() == reflect.Slice {
			return NewConfigError(field, emptyNodeListReason)
		}
		return NewConfigError(field, "value %v is below the minimum %s", fe.Value(), fe.Param())
	case "max":
		return NewConfigError(field, "value %v is above the maximum %s", fe.Value(), fe.Param())
	case "oneof":
		return NewConfigError(field, "value %q must be one of [%s]", fe.Value(), fe.Param())
	case "url":
		return NewConfigError(field, "value %q is not a valid URL", fe.Value())
	default:
		return NewConfigError(field, "failed %s check", fe.Tag())
	}
}

// configFieldName turns Configuration.Galera.Nodes[1] into galera.nodes
func configFieldName(namespace string) string {
	namespace = strings.TrimPrefix(namespace, "Configuration.")
	if idx := strings.Index(namespace, "["); idx >= 0 {
		namespace = namespace[:idx]
	}
	parts := strings.Split(namespace, ".")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToLower(p[:1]) + p[1:]
	}
	return strings.Join(parts, ".")
}
