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

/*
Class dealing with ALL SQL commands.
No SQL should be hardcoded in any other class.
Values are always passed as ? parameters, never concatenated.
*/

const (
	// session scope: the statements that follow are not replicated as write sets
	Dml_wsrep_off = "SET SESSION wsrep_on=OFF"
	Dml_wsrep_on  = "SET SESSION wsrep_on=ON"

	// succeeds only while root still has no password
	Dml_probe_login = "SHOW DATABASES"

	Dml_assign_root_password = "UPDATE mysql.user SET Password=PASSWORD(?) WHERE User='root'"
	Dml_delete_blank_users   = "DELETE FROM mysql.user WHERE User=?"
	Dml_grant_wsrep_user     = "GRANT ALL ON *.* TO ?@'%' IDENTIFIED BY ?"
	Dml_flush_privileges     = "FLUSH PRIVILEGES"
)
