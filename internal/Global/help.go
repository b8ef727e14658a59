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

type HelpText struct{}

func (help *HelpText) GetHelpText() string {
	helpText := `galera_node_bootstrap

Provision one node of a Galera (WSREP) MySQL cluster. Run it on every node with
the same configuration; it is safe to run again at any time.

Parameters for the executable --configfile <file name> --configpath <full path> [--facts <yaml file>]

Parameters in the config file:
[galera]
	nodes : [] Ordered list of hostnames or IPs of every cluster member. Same order on every node.
	initNode : [] Optional. The node expected to form a fresh cluster. Must be one of nodes.
[wsrep]
	clusterName : ["my_galera_cluster"] Logical cluster name. Must be the same on all nodes.
	user : ["wsrep_sst"] Replication user granted on every node
	password : [] Replication user password. Generated and stored when autoGenerateSecrets = true
	port : [4567] Group communication port used in the bootstrap URLs
	sstMethod : ["rsync"] State Snapshot Transfer method
	sstReceiveInterface : ["eth0"] Interface whose IPv4 address receives SST
	sstReceiveAddress : [] Explicit SST address, wins over sstReceiveInterface
	slaveThreads : [1] Threads applying write sets from other nodes
	certifyNonPK : [true] Generate primary keys for tables without one
	maxWsRows : [131072] Maximum rows in a write set
	maxWsSize : [1073741824] Maximum write set size in bytes
	retryAutocommit : [1] Retries of deadlocked autocommit statements
	autoIncrementControl : [true] Let the provider manage auto_increment_increment/offset
	causalReads : [false] Strictly synchronous reads
	debug : [false] WSREP debug logging
	provider : [] Provider library, the platform default when empty
[mysql]
	dataDir, confDir, confdDir, logDir, pidFile, slowQueryLog, socket, port
	serviceName : ["mysql"] Service name of the server
	rootPassword : [] Generated and stored when autoGenerateSecrets = true
	reloadAction : ["restart"] restart | reload | none. Applied once at the end of the run when a config file changed
	useUpstart : [false] Manage the service with upstart instead of systemd
	serverPackages : ["mysql-server"] Generic server packages removed before installing the Galera server
	[mysql.tunables] free form my.cnf [mysqld] settings. binlog_format, innodb_autoinc_lock_mode,
	innodb_locks_unsafe_for_binlog and innodb_support_xa are always overwritten. bind-address is never rendered.
[packages]
	galeraDownloadRoot, serverDownloadRoot : base URLs of the artifacts
	cacheDir : ["/var/cache/galera-bootstrap"] Where artifacts are downloaded once
	[packages.checksums] artifact file name = sha256 hex. Verified when present
[global]
	logLevel : [info] debug | info | warning | error
	logTarget : [stdout] stdout | file
	logFile : Target file when logTarget = file
	performance : [false] Report time spent in each phase
	autoGenerateSecrets : [true] When false every password must be provided
	secretsFile : ["/etc/galera-bootstrap/secrets.toml"] Where generated passwords are kept
	stateDir : ["/var/lib/galera-bootstrap"] Keeps a service restart/reload owed by a run that stopped early
	lockFilePath : ["/tmp"] Directory of the run lock file
	lockFileTimeout : [3600] Seconds after which a lock is considered stale and replaced
	factsFile : [] YAML file with platform facts, discovered from the host when empty

Environment overrides:
	GALERA_NODES (comma separated), GALERA_INIT_NODE, WSREP_CLUSTER_NAME, WSREP_PASSWORD, MYSQL_ROOT_PASSWORD

Exit codes:
	0 success, 1 configuration or platform error (nothing changed), 2 provisioning error (re-run when fixed)
`
	return helpText
}
