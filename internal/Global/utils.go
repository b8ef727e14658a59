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
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// bytes at or above this value are discarded so every letter is equally likely
const secretByteLimit = 256 - 256%len(secretAlphabet)

// GenerateSecret returns a random alphanumeric string of the given length.
func GenerateSecret(length int) (string, error) {
	return generateSecret(rand.Reader, length)
}

func generateSecret(random io.Reader, length int) (string, error) {
	secret := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(secret) < length {
		if _, err := io.ReadFull(random, buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, c := range buf {
			if int(c) >= secretByteLimit {
				continue
			}
			secret = append(secret, secretAlphabet[int(c)%len(secretAlphabet)])
			if len(secret) == length {
				break
			}
		}
	}
	return string(secret), nil
}

/* =====================
PERFORMANCE
One entry per provisioning phase, reported in insertion order at the end of the run.
*/

type PerfObject struct {
	Name     string
	Time     [2]int64
	LogLevel log.Level
}

type OrderedPerfMap struct {
	sync.RWMutex
	store map[string]PerfObject
	keys  []string
}

func NewOrderedMap() *OrderedPerfMap {
	return &OrderedPerfMap{
		store: map[string]PerfObject{},
		keys:  []string{},
	}
}

// Get will return the value associated with the key.
// If the key doesn't exist, the second return value will be false.
func (o *OrderedPerfMap) Get(key string) (PerfObject, bool) {
	o.RLock()
	defer o.RUnlock()

	val, exists := o.store[key]
	return val, exists
}

// Set will store a key-value pair. If the key already exists,
// it will overwrite the existing key-value pair.
func (o *OrderedPerfMap) Set(key string, val PerfObject) {
	o.Lock()
	defer o.Unlock()

	if _, exists := o.store[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.store[key] = val
}

// Values returns the stored objects in insertion order.
func (o *OrderedPerfMap) Values() []PerfObject {
	o.RLock()
	defer o.RUnlock()

	values := make([]PerfObject, 0, len(o.keys))
	for _, k := range o.keys {
		values = append(values, o.store[k])
	}
	return values
}

var Performance bool
var PerformanceMapOrdered *OrderedPerfMap

func InitPerformance(enabled bool) {
	Performance = enabled
	if enabled {
		PerformanceMapOrdered = NewOrderedMap()
	}
}

func SetPerformanceObj(key string, start bool, logLevel log.Level) {
	if !Performance || PerformanceMapOrdered == nil {
		return
	}
	perfObj, exists := PerformanceMapOrdered.Get(key)
	if !exists {
		perfObj = PerfObject{Name: key, LogLevel: logLevel}
	}

	if start {
		perfObj.Time[0] = time.Now().UnixNano()
	} else {
		perfObj.Time[1] = time.Now().UnixNano()
	}
	PerformanceMapOrdered.Set(key, perfObj)
}

func ReportPerformance() {
	if !Performance || PerformanceMapOrdered == nil {
		return
	}
	formatter := message.NewPrinter(language.English)

	log.Info("======== Reporting execution times (nanosec/ms) by phase ============")
	for _, perfObj := range PerformanceMapOrdered.Values() {
		if perfObj.Time[1] == 0 {
			// phase never completed
			continue
		}
		elapsed := perfObj.Time[1] - perfObj.Time[0]
		if perfObj.LogLevel <= log.GetLevel() {
			log.Info("Phase: ", perfObj.Name, " = ", formatter.Sprintf("%d", elapsed), " ns ",
				strconv.FormatInt(elapsed/1000000, 10), " ms")
		}
	}
}

func Bool2int(b bool) int {
	if b {
		return 1
	}
	return 0
}
