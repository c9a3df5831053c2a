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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SongStatus is the lifecycle state of a song request
type SongStatus string

const (
	SongPending  SongStatus = "pending"
	SongPlaying  SongStatus = "playing"
	SongPlayed   SongStatus = "played"
	SongDeclined SongStatus = "declined"
)

// IsTerminal reports whether no further transition is allowed.
func (s SongStatus) IsTerminal() bool {
	return s == SongPlayed || s == SongDeclined
}

// IsOpen reports whether the song still blocks closing its party.
func (s SongStatus) IsOpen() bool {
	return s == SongPending || s == SongPlaying
}

// CanTransition reports whether from -> to is an edge of the song state machine.
func (s SongStatus) CanTransition(to SongStatus) bool {
	switch s {
	case SongPending:
		return to == SongPlaying || to == SongDeclined
	case SongPlaying:
		return to == SongPlayed
	default:
		return false
	}
}

// Song represents a paid song request in a party queue
type Song struct {
	Id            string          `json:"id"`
	Title         string          `json:"title"`
	Artist        string          `json:"artist"`
	Price         decimal.Decimal `json:"price"`
	RequestedBy   string          `json:"requested_by"`
	RequestedById string          `json:"requested_by_id,omitempty"`
	Status        SongStatus      `json:"status"`
	RequestedAt   time.Time       `json:"requested_at"`
	AlbumArt      string          `json:"album_art,omitempty"`
}

// Party represents a DJ-hosted session attendees join by passcode
type Party struct {
	Id              string          `json:"id"`
	Name            string          `json:"name"`
	Dj              string          `json:"dj"`
	DjId            string          `json:"dj_id"`
	Venue           string          `json:"venue"`
	Passcode        string          `json:"passcode"`
	MinRequestPrice decimal.Decimal `json:"min_request_price"`
	ActiveUntil     time.Time       `json:"active_until"`
	EndDate         time.Time       `json:"end_date,omitempty"`
	IsActive        bool            `json:"is_active"`
	Songs           []Song          `json:"songs"`
	Earnings        decimal.Decimal `json:"earnings"`
	CreatedAt       time.Time       `json:"created_at,omitempty"`
}

// EndsAt returns the instant the party expires. When an end date is set the
// calendar day comes from EndDate and the clock time from ActiveUntil.
func (p *Party) EndsAt() time.Time {
	if p.EndDate.IsZero() {
		return p.ActiveUntil
	}
	if p.ActiveUntil.IsZero() {
		y, m, d := p.EndDate.Date()
		return time.Date(y, m, d, 23, 59, 59, 0, p.EndDate.Location())
	}
	y, m, d := p.EndDate.Date()
	loc := p.ActiveUntil.Location()
	h, mi, s := p.ActiveUntil.Clock()
	return time.Date(y, m, d, h, mi, s, 0, loc)
}

// SongIndex returns the position of a song, or -1.
func (p *Party) SongIndex(songId string) int {
	for i := range p.Songs {
		if p.Songs[i].Id == songId {
			return i
		}
	}
	return -1
}

// PlayingIndex returns the position of the playing song, or -1.
func (p *Party) PlayingIndex() int {
	for i := range p.Songs {
		if p.Songs[i].Status == SongPlaying {
			return i
		}
	}
	return -1
}

// HasOpenSongs reports whether any song is pending or playing.
func (p *Party) HasOpenSongs() bool {
	for _, s := range p.Songs {
		if s.Status.IsOpen() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy suitable for rollback.
func (p *Party) Clone() *Party {
	if p == nil {
		return nil
	}
	c := *p
	c.Songs = append([]Song(nil), p.Songs...)
	return &c
}

// CreatePartyParams contains the DJ's input for a new party
type CreatePartyParams struct {
	Name            string          `validate:"required,max=120"`
	Venue           string          `validate:"required,max=120"`
	MinRequestPrice decimal.Decimal `validate:"-"`
	ActiveUntil     time.Time       `validate:"-"`
	EndDate         time.Time       `validate:"-"`
}

// PartySettings carries optional changes to an existing party
type PartySettings struct {
	Name            *string
	Venue           *string
	MinRequestPrice *decimal.Decimal
	ActiveUntil     *time.Time
}

// SongRequestParams contains an attendee's song request
type SongRequestParams struct {
	Title    string          `validate:"required,max=200"`
	Artist   string          `validate:"required,max=200"`
	Price    decimal.Decimal `validate:"-"`
	AlbumArt string          `validate:"omitempty,url"`
}
