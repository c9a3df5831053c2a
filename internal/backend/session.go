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

	"party-request-go/internal/models"

	"go.uber.org/zap"
)

func (c *Client) Login(ctx context.Context, role models.Role, identity, secret string) (*models.LoginResult, error) {
	body := map[string]string{
		"username": identity,
		"password": secret,
	}

	env, err := c.call(ctx, EndpointLogin, role, body)
	if err != nil {
		return nil, fmt.Errorf("unable to log in: %w", err)
	}

	result, err := normalizeLogin(env, role)
	if err != nil {
		return nil, fmt.Errorf("unable to read login response: %w", err)
	}

	zap.L().Info("Login accepted",
		zap.String("user_id", result.User.Id),
		zap.String("role", string(result.User.Role)))
	return result, nil
}

func (c *Client) Register(ctx context.Context, params models.RegisterParams) (*models.LoginResult, error) {
	body := map[string]string{
		"username":     params.Username,
		"email":        params.Email,
		"phone_number": params.Phone,
		"password":     params.Password,
	}

	env, err := c.call(ctx, EndpointRegister, params.Role, body)
	if err != nil {
		return nil, fmt.Errorf("unable to register: %w", err)
	}

	result, err := normalizeLogin(env, params.Role)
	if err != nil {
		return nil, fmt.Errorf("unable to read registration response: %w", err)
	}
	return result, nil
}

// Me fetches the profile behind the current token.
func (c *Client) Me(ctx context.Context, role models.Role) (*models.User, error) {
	env, err := c.call(ctx, EndpointMe, role, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch profile: %w", err)
	}
	user, err := normalizeUser(env, role)
	if err != nil {
		return nil, fmt.Errorf("unable to read profile: %w", err)
	}
	return user, nil
}
