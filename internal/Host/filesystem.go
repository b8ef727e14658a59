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
	"bytes"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
)

// LocalFileSystem works on the node's own disk. Ownership changes need root.
type LocalFileSystem struct{}

func (LocalFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (fs LocalFileSystem) EnsureDirectory(path string, owner string, group string, recursive bool) (bool, error) {
	created := false
	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("%s exists and is not a directory", path)
		}
	} else if os.IsNotExist(err) {
		if recursive {
			err = os.MkdirAll(path, 0755)
		} else {
			err = os.Mkdir(path, 0755)
		}
		if err != nil {
			return false, fmt.Errorf("creating directory %s: %w", path, err)
		}
		created = true
	} else {
		return false, fmt.Errorf("checking directory %s: %w", path, err)
	}

	if err := chown(path, owner, group); err != nil {
		return created, err
	}
	return created, nil
}

// WriteFile replaces path atomically when the content differs. Mode and
// ownership are corrected either way; only a content change reports true.
func (fs LocalFileSystem) WriteFile(path string, content []byte, owner string, group string, mode os.FileMode) (bool, error) {
	current, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	changed := err != nil || !bytes.Equal(current, content)

	if changed {
		tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".")
		if err != nil {
			return false, fmt.Errorf("creating temporary file for %s: %w", path, err)
		}
		tmpName := tmp.Name()
		_, writeErr := tmp.Write(content)
		closeErr := tmp.Close()
		if writeErr != nil || closeErr != nil {
			os.Remove(tmpName)
			return false, fmt.Errorf("writing %s: %v %v", path, writeErr, closeErr)
		}
		if err := os.Rename(tmpName, path); err != nil {
			os.Remove(tmpName)
			return false, fmt.Errorf("replacing %s: %w", path, err)
		}
	}

	if err := os.Chmod(path, mode); err != nil {
		return changed, fmt.Errorf("chmod %s: %w", path, err)
	}
	return changed, chown(path, owner, group)
}

func (LocalFileSystem) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

func chown(path string, owner string, group string) error {
	if owner == "" && group == "" {
		return nil
	}
	uid, gid := -1, -1
	if owner != "" {
		u, err := user.Lookup(owner)
		if err != nil {
			return fmt.Errorf("looking up user %s: %w", owner, err)
		}
		uid, _ = strconv.Atoi(u.Uid)
	}
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return fmt.Errorf("looking up group %s: %w", group, err)
		}
		gid, _ = strconv.Atoi(g.Gid)
	}
	if err := os.Lchown(path, uid, gid); err != nil {
		return fmt.Errorf("chown %s to %s:%s: %w", path, owner, group, err)
	}
	return nil
}
