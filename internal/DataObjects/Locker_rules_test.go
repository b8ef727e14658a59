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
	"time"
)

type fileLockRule struct {
	name     string
	pidTest  int
	timeTest int64
	alive    bool
	want     bool
}

var lockTestNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testFileLockFactory(dir string, alive bool) *FileLockImp {
	locker := NewFileLock(dir, time.Hour)
	locker.flPid = 4242
	locker.now = func() time.Time { return lockTestNow }
	locker.alive = func(int) bool { return alive }
	return locker
}

func rulesTestEvaluateFileLock() []fileLockRule {
	recent := lockTestNow.Add(-10 * time.Minute).UnixNano()
	expired := lockTestNow.Add(-2 * time.Hour).UnixNano()

	return []fileLockRule{
		{name: "own pid", pidTest: 4242, timeTest: recent, alive: true, want: true},
		{name: "live process recent lock", pidTest: 100, timeTest: recent, alive: true, want: false},
		{name: "live process expired lock", pidTest: 100, timeTest: expired, alive: true, want: true},
		{name: "dead process", pidTest: 100, timeTest: recent, alive: false, want: true},
		{name: "unreadable pid", pidTest: 0, timeTest: recent, alive: true, want: true},
	}
}
