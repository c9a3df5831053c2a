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

package backend

import (
	"net/url"
	"strings"

	"party-request-go/internal/models"
)

// Endpoint describes one backend operation.
type Endpoint struct {
	Name   string
	Method string
	// Path may contain "{ns}", replaced by the caller's role namespace.
	Path string
	// Authenticated endpoints require a live session token.
	Authenticated bool
	// AuthClass endpoints establish or check identity. A 401 from one of
	// them means the session itself is gone.
	AuthClass bool
}

var (
	EndpointLogin    = Endpoint{Name: "login", Method: "POST", Path: "/{ns}/us_log/", AuthClass: true}
	EndpointRegister = Endpoint{Name: "register", Method: "POST", Path: "/{ns}/crt_ur/", AuthClass: true}
	EndpointMe       = Endpoint{Name: "me", Method: "GET", Path: "/{ns}/me/", Authenticated: true, AuthClass: true}

	EndpointCreateParty  = Endpoint{Name: "create_party", Method: "POST", Path: "/dj_wallet/crt_hub/", Authenticated: true}
	EndpointJoinParty    = Endpoint{Name: "join_party", Method: "POST", Path: "/user_wallet/jo/_hub/", Authenticated: true}
	EndpointPartyDetails = Endpoint{Name: "party_details", Method: "GET", Path: "/user_wallet/get/hub/details/", Authenticated: true}
	EndpointSongList     = Endpoint{Name: "song_list", Method: "POST", Path: "/dj_wallet/song_list/", Authenticated: true}
	EndpointNowPlaying   = Endpoint{Name: "now_playing", Method: "POST", Path: "/{ns}/get_now_playing/", Authenticated: true}
	EndpointListParties  = Endpoint{Name: "list_parties", Method: "POST", Path: "/{ns}/get_hubs/", Authenticated: true}
	EndpointCloseParty   = Endpoint{Name: "close_party", Method: "DELETE", Path: "/dj_wallet/delete_hub/", Authenticated: true}
	EndpointUpdateParty  = Endpoint{Name: "update_party", Method: "POST", Path: "/dj_wallet/update_hub/", Authenticated: true}
	EndpointRequestSong  = Endpoint{Name: "request_song", Method: "POST", Path: "/user_wallet/request_song/", Authenticated: true}
	EndpointUpdateSong   = Endpoint{Name: "update_song", Method: "POST", Path: "/dj_wallet/update_song/", Authenticated: true}

	EndpointBalance       = Endpoint{Name: "balance", Method: "POST", Path: "/{ns}/check/wal_bal/user/", Authenticated: true}
	EndpointHistory       = Endpoint{Name: "transaction_history", Method: "POST", Path: "/{ns}/transaction_history/", Authenticated: true}
	EndpointTransferOut   = Endpoint{Name: "transfer_out", Method: "POST", Path: "/transfer_out/", Authenticated: true}
	EndpointVerifyAccount = Endpoint{Name: "verify_account", Method: "POST", Path: "/user_wallet/verify_account/", Authenticated: true}
	EndpointListBanks     = Endpoint{Name: "list_banks", Method: "POST", Path: "/user_wallet/list_banks/", Authenticated: true}
)

// resolve builds the request path for a role, appending escaped segments.
func (e Endpoint) resolve(role models.Role, segments ...string) string {
	path := strings.ReplaceAll(e.Path, "{ns}", role.Namespace())
	for _, s := range segments {
		path = strings.TrimSuffix(path, "/") + "/" + url.PathEscape(s)
	}
	return path
}
