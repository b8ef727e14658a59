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
	"net"
	"strconv"
	"strings"
)

const gcommScheme = "gcomm://"

/*
BuildClusterURL renders the wsrep_urls bootstrap descriptor:

	gcomm://node1:4567,gcomm://node2:4567,gcomm://

Peers are tried in list order. The trailing empty gcomm:// lets whichever
node finds no live peer form a new cluster, so every node gets the same
configuration whether it initialises the cluster or joins it.
*/
func BuildClusterURL(nodes []string, port int) string {
	var b strings.Builder
	portText := strconv.Itoa(port)
	for _, node := range nodes {
		b.WriteString(gcommScheme)
		b.WriteString(net.JoinHostPort(node, portText))
		b.WriteByte(',')
	}
	b.WriteString(gcommScheme)
	return b.String()
}

// ParseClusterURL returns the peer addresses of a descriptor, without the
// trailing empty entry.
func ParseClusterURL(descriptor string) []string {
	var peers []string
	for _, part := range strings.Split(descriptor, ",") {
		peer := strings.TrimPrefix(strings.TrimSpace(part), gcommScheme)
		if peer != "" {
			peers = append(peers, peer)
		}
	}
	return peers
}
