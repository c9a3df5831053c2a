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

import "time"

// Role selects which side of the backend a session talks to
type Role string

const (
	RoleAttendee Role = "attendee"
	RoleDJ       Role = "dj"
)

// Namespace returns the backend path prefix for the role
func (r Role) Namespace() string {
	if r == RoleDJ {
		return "dj_wallet"
	}
	return "user_wallet"
}

func (r Role) IsValid() bool {
	return r == RoleAttendee || r == RoleDJ
}

// UserType distinguishes registered members from guests
type UserType string

const (
	UserTypeGuest  UserType = "guest"
	UserTypeMember UserType = "member"
)

// User is the profile snapshot returned at login
type User struct {
	Id       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Role     Role     `json:"role"`
	UserType UserType `json:"user_type"`
}

// Session is an authenticated user's identity, token and expiry
type Session struct {
	UserId      string    `json:"user_id"`
	Username    string    `json:"username"`
	Role        Role      `json:"role"`
	UserType    UserType  `json:"user_type"`
	AuthToken   string    `json:"auth_token"`
	TokenExpiry time.Time `json:"token_expiry"`
	IssuedAt    time.Time `json:"issued_at"`
}

// ExpiredAt reports whether the token is no longer usable at the given instant.
func (s *Session) ExpiredAt(now time.Time) bool {
	if s == nil || s.AuthToken == "" {
		return true
	}
	return now.After(s.TokenExpiry)
}

// LoginResult is the canonical shape of a login or registration response
type LoginResult struct {
	User    User
	Token   string
	Message string
}

// RegisterParams contains the fields needed to create an account
type RegisterParams struct {
	Role     Role   `validate:"required,oneof=attendee dj"`
	Username string `validate:"required,min=3,max=64"`
	Email    string `validate:"omitempty,email"`
	Phone    string `validate:"omitempty,min=7,max=20"`
	Password string `validate:"required,min=6"`
}
