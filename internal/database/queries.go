/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

const (
	queryGetEntry = `
		SELECT payload, source, revision, updated_at
		FROM cache_entries
		WHERE storage_key = ?`

	queryGetRevision = `
		SELECT revision
		FROM cache_entries
		WHERE storage_key = ?`

	queryInsertEntry = `
		INSERT INTO cache_entries (storage_key, user_id, entity, payload, source, revision, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)`

	queryUpdateEntry = `
		UPDATE cache_entries
		SET payload = ?, source = ?, revision = revision + 1, updated_at = ?
		WHERE storage_key = ? AND revision = ?`

	queryDeleteEntry = `
		DELETE FROM cache_entries WHERE storage_key = ?`

	queryPurgeUser = `
		DELETE FROM cache_entries WHERE user_id = ?`

	queryCountUserEntries = `
		SELECT COUNT(*) FROM cache_entries WHERE user_id = ?`
)
