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
	"os"
	"path/filepath"
	"strings"

	"github.com/Tusamarco/toml"
	log "github.com/sirupsen/logrus"

	global "galera_node_bootstrap/internal/Global"
)

const secretLength = 20

type Secrets struct {
	RootPassword  string `toml:"rootPassword"`
	WsrepPassword string `toml:"wsrepPassword"`
}

// FileSecretStore keeps generated passwords in a root only toml file so the
// next run reuses them.
type FileSecretStore struct {
	Path string
}

func (s FileSecretStore) Load() (Secrets, error) {
	var secrets Secrets
	if _, err := os.Stat(s.Path); os.IsNotExist(err) {
		return secrets, nil
	}
	if _, err := toml.DecodeFile(s.Path, &secrets); err != nil {
		return secrets, fmt.Errorf("reading secrets %s: %w", s.Path, err)
	}
	return secrets, nil
}

func (s FileSecretStore) Save(secrets Secrets) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return fmt.Errorf("creating secrets directory: %w", err)
	}
	file, err := os.OpenFile(s.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("writing secrets %s: %w", s.Path, err)
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(secrets); err != nil {
		return fmt.Errorf("encoding secrets %s: %w", s.Path, err)
	}
	return nil
}

/*
resolveSecrets decides the credentials of this run.
 1. a value set in configuration wins
 2. otherwise the persisted value is reused
 3. otherwise, with autoGenerateSecrets, a new one is generated

When generation is off every missing value is a ConfigError. The returned
bool tells whether something new has to be persisted.
*/
func resolveSecrets(config global.Configuration, persisted Secrets) (Secrets, bool, error) {
	resolved := Secrets{
		RootPassword:  firstNonEmpty(config.Mysql.RootPassword, persisted.RootPassword),
		WsrepPassword: firstNonEmpty(config.Wsrep.Password, persisted.WsrepPassword),
	}

	var missing []string
	if resolved.RootPassword == "" {
		missing = append(missing, "mysql.rootPassword")
	}
	if resolved.WsrepPassword == "" {
		missing = append(missing, "wsrep.password")
	}
	if len(missing) == 0 {
		return resolved, resolved != persisted, nil
	}

	if !config.Global.AutoGenerateSecrets {
		return resolved, false, global.NewConfigError(strings.Join(missing, ", "),
			"must be set when autoGenerateSecrets is false")
	}

	var err error
	if resolved.RootPassword == "" {
		if resolved.RootPassword, err = global.GenerateSecret(secretLength); err != nil {
			return resolved, false, err
		}
	}
	if resolved.WsrepPassword == "" {
		if resolved.WsrepPassword, err = global.GenerateSecret(secretLength); err != nil {
			return resolved, false, err
		}
	}
	log.WithField("generated", strings.Join(missing, ", ")).Info("Generated missing credentials")
	return resolved, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
