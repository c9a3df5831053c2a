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
	"context"
	"fmt"
	"time"

	"party-request-go/internal/models"

	"go.uber.org/zap"
)

const wireTimeLayout = time.RFC3339

func (c *Client) CreateParty(ctx context.Context, params models.CreatePartyParams) (*models.Party, error) {
	body := map[string]any{
		"name":              params.Name,
		"venue":             params.Venue,
		"min_request_price": params.MinRequestPrice.String(),
		"active_until":      params.ActiveUntil.UTC().Format(wireTimeLayout),
	}
	if !params.EndDate.IsZero() {
		body["end_date"] = params.EndDate.UTC().Format(wireTimeLayout)
	}

	env, err := c.call(ctx, EndpointCreateParty, models.RoleDJ, body)
	if err != nil {
		return nil, fmt.Errorf("unable to create party: %w", err)
	}
	party, err := normalizeParty(env)
	if err != nil {
		return nil, fmt.Errorf("unable to read created party: %w", err)
	}

	zap.L().Info("Party created",
		zap.String("party_id", party.Id),
		zap.String("passcode", party.Passcode))
	return party, nil
}

func (c *Client) JoinParty(ctx context.Context, passcode string) (*models.Party, error) {
	env, err := c.call(ctx, EndpointJoinParty, models.RoleAttendee, map[string]string{"passcode": passcode})
	if err != nil {
		return nil, fmt.Errorf("unable to join party %s: %w", passcode, err)
	}
	party, err := normalizeParty(env)
	if err != nil {
		return nil, fmt.Errorf("unable to read joined party: %w", err)
	}
	return party, nil
}

func (c *Client) PartyDetails(ctx context.Context, passcode string) (*models.Party, error) {
	env, err := c.call(ctx, EndpointPartyDetails, models.RoleAttendee, nil, passcode)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch party %s: %w", passcode, err)
	}
	party, err := normalizeParty(env)
	if err != nil {
		return nil, fmt.Errorf("unable to read party details: %w", err)
	}
	return party, nil
}

func (c *Client) SongList(ctx context.Context, partyId string) ([]models.Song, error) {
	env, err := c.call(ctx, EndpointSongList, models.RoleDJ, map[string]string{"hub_id": partyId})
	if err != nil {
		return nil, fmt.Errorf("unable to fetch songs for %s: %w", partyId, err)
	}
	songs, err := normalizeSongs(env)
	if err != nil {
		return nil, fmt.Errorf("unable to read song list: %w", err)
	}
	return songs, nil
}

// NowPlaying returns nil when nothing is playing.
func (c *Client) NowPlaying(ctx context.Context, role models.Role, partyId string) (*models.Song, error) {
	env, err := c.call(ctx, EndpointNowPlaying, role, map[string]string{"hub_id": partyId})
	if err != nil {
		return nil, fmt.Errorf("unable to fetch now playing for %s: %w", partyId, err)
	}
	song, err := normalizeNowPlaying(env)
	if err != nil {
		return nil, fmt.Errorf("unable to read now playing: %w", err)
	}
	return song, nil
}

// ListParties returns created parties for a DJ and joined parties for an attendee.
func (c *Client) ListParties(ctx context.Context, role models.Role) ([]models.Party, error) {
	env, err := c.call(ctx, EndpointListParties, role, map[string]string{})
	if err != nil {
		return nil, fmt.Errorf("unable to list parties: %w", err)
	}
	parties, err := normalizeParties(env)
	if err != nil {
		return nil, fmt.Errorf("unable to read party list: %w", err)
	}
	return parties, nil
}

func (c *Client) CloseParty(ctx context.Context, partyId string) error {
	if _, err := c.call(ctx, EndpointCloseParty, models.RoleDJ, nil, partyId); err != nil {
		return fmt.Errorf("unable to close party %s: %w", partyId, err)
	}
	return nil
}

func (c *Client) UpdateParty(ctx context.Context, partyId string, settings models.PartySettings) (*models.Party, error) {
	body := map[string]any{"hub_id": partyId}
	if settings.Name != nil {
		body["name"] = *settings.Name
	}
	if settings.Venue != nil {
		body["venue"] = *settings.Venue
	}
	if settings.MinRequestPrice != nil {
		body["min_request_price"] = settings.MinRequestPrice.String()
	}
	if settings.ActiveUntil != nil {
		body["active_until"] = settings.ActiveUntil.UTC().Format(wireTimeLayout)
	}

	env, err := c.call(ctx, EndpointUpdateParty, models.RoleDJ, body)
	if err != nil {
		return nil, fmt.Errorf("unable to update party %s: %w", partyId, err)
	}
	party, err := normalizeParty(env)
	if err != nil {
		return nil, fmt.Errorf("unable to read updated party: %w", err)
	}
	return party, nil
}

// RequestSong submits a paid request. The backend debits the requester.
func (c *Client) RequestSong(ctx context.Context, partyId string, params models.SongRequestParams) (*models.Song, error) {
	body := map[string]any{
		"hub_id":    partyId,
		"title":     params.Title,
		"artist":    params.Artist,
		"price":     params.Price.String(),
		"album_art": params.AlbumArt,
	}
	env, err := c.call(ctx, EndpointRequestSong, models.RoleAttendee, body)
	if err != nil {
		return nil, fmt.Errorf("unable to request song: %w", err)
	}
	song, err := normalizeSong(env)
	if err != nil {
		return nil, fmt.Errorf("unable to read song request: %w", err)
	}
	return song, nil
}

func (c *Client) UpdateSongStatus(ctx context.Context, partyId, songId string, status models.SongStatus) error {
	body := map[string]string{
		"hub_id":  partyId,
		"song_id": songId,
		"status":  string(status),
	}
	if _, err := c.call(ctx, EndpointUpdateSong, models.RoleDJ, body); err != nil {
		return fmt.Errorf("unable to mark song %s %s: %w", songId, status, err)
	}
	return nil
}
