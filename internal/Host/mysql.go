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
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"

	SQLGalera "galera_node_bootstrap/internal/Sql/Galera"
)

type Credentials struct {
	User     string
	Password string
	Socket   string
}

type Statement struct {
	Name  string
	Query string
	Args  []interface{}
}

// MySQLExecutor runs administrative statements on the local server through
// its unix socket.
type MySQLExecutor struct {
	Timeout time.Duration
}

func NewMySQLExecutor(timeout time.Duration) *MySQLExecutor {
	return &MySQLExecutor{Timeout: timeout}
}

// dsn keeps interpolateParams on so that ? values are escaped by the driver
// for statements the server cannot prepare (GRANT, SET PASSWORD).
func (e *MySQLExecutor) dsn(creds Credentials) string {
	config := mysql.NewConfig()
	config.User = creds.User
	config.Passwd = creds.Password
	config.Net = "unix"
	config.Addr = creds.Socket
	config.DBName = "mysql"
	config.Timeout = e.Timeout
	config.InterpolateParams = true
	return config.FormatDSN()
}

// Execute runs the statements in order on a single session. With localOnly
// the session has wsrep_on disabled while they run.
func (e *MySQLExecutor) Execute(ctx context.Context, creds Credentials, localOnly bool, statements ...Statement) error {
	db, err := sql.Open("mysql", e.dsn(creds))
	if err != nil {
		return err
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("connecting as %s on %s: %w", creds.User, creds.Socket, err)
	}
	defer conn.Close()

	if localOnly {
		if _, err := conn.ExecContext(ctx, SQLGalera.Dml_wsrep_off); err != nil {
			return fmt.Errorf("disabling wsrep for the session: %w", err)
		}
		defer func() {
			if _, err := conn.ExecContext(context.Background(), SQLGalera.Dml_wsrep_on); err != nil {
				log.Warn("Cannot enable wsrep again on the session: ", err)
			}
		}()
	}

	for _, stmt := range statements {
		log.WithField("statement", stmt.Name).Debug(stmt.Query)
		if _, err := conn.ExecContext(ctx, stmt.Query, stmt.Args...); err != nil {
			return fmt.Errorf("%s: %w", stmt.Name, err)
		}
	}
	return nil
}
