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
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// InitLog points logrus at the configured target and sets the level.
// Colors are only written when logging to stdout.
func InitLog(config Configuration) error {
	formatter := LogFormat{TimestampFormat: "2006-01-02 15:04:05"}

	var out io.Writer = os.Stdout
	switch strings.ToLower(config.Global.LogTarget) {
	case "", "stdout":
		formatter.Colors = true
	case "file":
		if config.Global.LogFile == "" {
			return NewConfigError("global.logFile", "logTarget is file but no logFile is set")
		}
		file, err := os.OpenFile(config.Global.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
		if err != nil {
			return fmt.Errorf("opening log file %s: %w", config.Global.LogFile, err)
		}
		out = file
	default:
		return NewConfigError("global.logTarget", "unknown target %q, use stdout or file", config.Global.LogTarget)
	}
	log.SetOutput(out)
	log.SetFormatter(&formatter)
	log.SetLevel(ParseLogLevel(config.Global.LogLevel))

	log.Debug("Go version: ", runtime.Version())
	log.Debug("Log initialized")
	return nil
}

// ParseLogLevel maps the config value to a logrus level, info when unknown.
func ParseLogLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warning", "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

type LogFormat struct {
	TimestampFormat string
	Colors          bool
}

func (f *LogFormat) Format(entry *log.Entry) ([]byte, error) {
	var b *bytes.Buffer

	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	if f.Colors {
		b.WriteString("\x1b[" + strconv.Itoa(getColorByLevel(entry.Level)) + "m")
	}
	b.WriteByte('[')
	b.WriteString(strings.ToUpper(entry.Level.String()))
	b.WriteString("]")
	if f.Colors {
		b.WriteString("\x1b[0m")
	}
	b.WriteByte(':')
	b.WriteString(entry.Time.Format(f.TimestampFormat))

	if entry.Message != "" {
		b.WriteString(" - ")
		b.WriteString(entry.Message)
	}

	if len(entry.Data) > 0 {
		b.WriteString(" || ")
	}
	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteByte('{')
		fmt.Fprint(b, entry.Data[key])
		b.WriteString("}, ")
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

const (
	colorRed    = 31
	colorYellow = 33
	colorBlue   = 36
	colorGray   = 34
	paniclevel  = 35
)

func getColorByLevel(level log.Level) int {
	switch level {
	case log.DebugLevel, log.TraceLevel:
		return colorGray
	case log.WarnLevel:
		return colorYellow
	case log.ErrorLevel:
		return colorRed
	case log.PanicLevel, log.FatalLevel:
		return paniclevel
	default:
		return colorBlue
	}
}
