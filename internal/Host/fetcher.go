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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// HTTPFetcher downloads artifacts once into the local cache. There is no
// retry here; a failed download fails the run and the next run tries again.
type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

// FetchIfMissing downloads url to destPath unless destPath exists. When
// checksum is set the file, cached or fresh, must match its SHA-256.
func (f *HTTPFetcher) FetchIfMissing(ctx context.Context, url string, destPath string, checksum string) (bool, error) {
	if _, err := os.Stat(destPath); err == nil {
		if checksum != "" {
			if err := verifyChecksum(destPath, checksum); err != nil {
				return false, fmt.Errorf("cached artifact %s: %w", destPath, err)
			}
		}
		log.WithField("artifact", destPath).Debug("artifact already cached")
		return false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("building request for %s: %w", url, err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("downloading %s: unexpected status %s", url, resp.Status)
	}

	partial := destPath + ".part"
	out, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return false, fmt.Errorf("creating %s: %w", partial, err)
	}
	hash := sha256.New()
	_, copyErr := io.Copy(io.MultiWriter(out, hash), resp.Body)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(partial)
		return false, fmt.Errorf("writing %s: %v %v", partial, copyErr, closeErr)
	}

	if checksum != "" && !strings.EqualFold(hex.EncodeToString(hash.Sum(nil)), checksum) {
		os.Remove(partial)
		return false, fmt.Errorf("checksum mismatch for %s", url)
	}
	if err := os.Rename(partial, destPath); err != nil {
		os.Remove(partial)
		return false, fmt.Errorf("moving %s into place: %w", destPath, err)
	}
	return true, nil
}

func verifyChecksum(path string, checksum string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return err
	}
	if !strings.EqualFold(hex.EncodeToString(hash.Sum(nil)), checksum) {
		return fmt.Errorf("checksum mismatch, remove the file to download it again")
	}
	return nil
}
