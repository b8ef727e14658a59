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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

const lockFileName = "galera_node_bootstrap.lock"

/*
FileLockImp keeps two runs from provisioning the same node at once.
The lock file holds the owner pid and creation time:

	pid=1234
	time=1690000000000000000

A lock left by a process that is gone, or older than the timeout, is replaced.
*/
type FileLockImp struct {
	flPid      int
	flFullPath string
	flTimeout  time.Duration
	now        func() time.Time
	alive      func(pid int) bool
}

func NewFileLock(dir string, timeout time.Duration) *FileLockImp {
	return &FileLockImp{
		flPid:      os.Getpid(),
		flFullPath: filepath.Join(dir, lockFileName),
		flTimeout:  timeout,
		now:        time.Now,
		alive:      processAlive,
	}
}

func (flLocker *FileLockImp) Path() string {
	return flLocker.flFullPath
}

func (flLocker *FileLockImp) SetLock() error {
	exists, localPID, localTime, err := flLocker.CheckLockFileExists()
	if err != nil {
		return err
	}
	if exists {
		if !flLocker.EvaluateFileLockForRemoval(localPID, localTime) {
			return fmt.Errorf("another provisioning run (pid %d) holds %s", localPID, flLocker.flFullPath)
		}
		if err := os.Remove(flLocker.flFullPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale lock %s: %w", flLocker.flFullPath, err)
		}
	}

	file, err := os.OpenFile(flLocker.flFullPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("creating lock %s: %w", flLocker.flFullPath, err)
	}
	defer file.Close()
	_, err = fmt.Fprintf(file, "pid=%d\ntime=%d\n", flLocker.flPid, flLocker.now().UnixNano())
	return err
}

func (flLocker *FileLockImp) RemoveLock() error {
	exists, localPID, _, err := flLocker.CheckLockFileExists()
	if err != nil || !exists {
		return err
	}
	if localPID != flLocker.flPid {
		log.Warningf("Lock %s belongs to pid %d, leaving it", flLocker.flFullPath, localPID)
		return nil
	}
	return os.Remove(flLocker.flFullPath)
}

// CheckLockFileExists returns the pid and creation time found in the lock file.
func (flLocker *FileLockImp) CheckLockFileExists() (bool, int, int64, error) {
	file, err := os.Open(flLocker.flFullPath)
	if os.IsNotExist(err) {
		return false, 0, 0, nil
	}
	if err != nil {
		return false, 0, 0, fmt.Errorf("opening lock %s: %w", flLocker.flFullPath, err)
	}
	defer file.Close()

	var localPID int
	var localTime int64
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		keyValue := strings.SplitN(scanner.Text(), "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		switch keyValue[0] {
		case "pid":
			if localPID, err = strconv.Atoi(keyValue[1]); err != nil {
				log.Warningf("Conversion error in PID %s", err.Error())
			}
		case "time":
			if localTime, err = strconv.ParseInt(keyValue[1], 10, 64); err != nil {
				log.Warningf("Conversion error in Time %s", err.Error())
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return false, 0, 0, err
	}
	return true, localPID, localTime, nil
}

// EvaluateFileLockForRemoval is true when the existing lock can be replaced.
func (flLocker *FileLockImp) EvaluateFileLockForRemoval(localPID int, localTime int64) bool {
	if localPID == flLocker.flPid {
		return true
	}
	if localPID <= 0 || !flLocker.alive(localPID) {
		log.Warningf("Process %d is gone, lock is expired", localPID)
		return true
	}
	age := flLocker.now().Sub(time.Unix(0, localTime))
	if flLocker.flTimeout > 0 && age > flLocker.flTimeout {
		log.Warningf("Lock of process %d is %s old, over the timeout of %s", localPID, age.Round(time.Second), flLocker.flTimeout)
		return true
	}
	return false
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
