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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"party-request-go/internal/common"
	"party-request-go/internal/config"
	"party-request-go/internal/models"

	"go.uber.org/zap"
)

type loginRequest struct {
	username string
	password string
	email    string
	phone    string
	role     models.Role
	register bool
	logout   bool
	whoami   bool
}

func parseAndValidateFlags() (*loginRequest, error) {
	usernameFlag := flag.String("username", "", "Username, email or phone to sign in with")
	passwordFlag := flag.String("password", "", "Password (defaults to $PARTYQ_PASSWORD)")
	emailFlag := flag.String("email", "", "Email for a new account (optional)")
	phoneFlag := flag.String("phone", "", "Phone number for a new account (optional)")
	roleFlag := flag.String("role", "attendee", "Account role: attendee or dj")
	registerFlag := flag.Bool("register", false, "Create the account before signing in")
	logoutFlag := flag.Bool("logout", false, "Sign out and clear this device's cache")
	whoamiFlag := flag.Bool("whoami", false, "Show the signed-in account")
	flag.Parse()

	req := &loginRequest{
		username: *usernameFlag,
		password: *passwordFlag,
		email:    *emailFlag,
		phone:    *phoneFlag,
		role:     models.Role(*roleFlag),
		register: *registerFlag,
		logout:   *logoutFlag,
		whoami:   *whoamiFlag,
	}
	if req.logout || req.whoami {
		return req, nil
	}
	if req.password == "" {
		req.password = os.Getenv("PARTYQ_PASSWORD")
	}
	if req.username == "" || req.password == "" {
		return nil, fmt.Errorf("--username and --password are required to sign in")
	}
	if !req.role.IsValid() {
		return nil, fmt.Errorf("invalid role %q, expected attendee or dj", *roleFlag)
	}
	return req, nil
}

func printSession(session *models.Session) {
	fmt.Printf("\n┌─ %s (%s)\n", session.Username, session.Role)
	fmt.Printf("│  ID: %s\n", session.UserId)
	if session.UserType != "" {
		fmt.Printf("│  Type: %s\n", session.UserType)
	}
	fmt.Printf("└  Expires: %s\n", common.FormatTime(session.TokenExpiry))
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		logger.Fatal("Invalid arguments", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	switch {
	case req.logout:
		if err := services.Auth.Logout(ctx); err != nil {
			logger.Fatal("Failed to sign out", zap.Error(err))
		}
		fmt.Println("Signed out, local cache cleared")

	case req.whoami:
		session, err := services.RequireSession(ctx)
		if err != nil {
			logger.Fatal("No active session", zap.Error(err))
		}
		if _, err := services.Auth.Verify(ctx); err != nil {
			logger.Warn("Could not confirm session with the backend", zap.Error(err))
		}
		printSession(session)

	case req.register:
		session, err := services.Auth.Register(ctx, models.RegisterParams{
			Role:     req.role,
			Username: req.username,
			Email:    req.email,
			Phone:    req.phone,
			Password: req.password,
		})
		if err != nil {
			logger.Fatal("Registration failed", zap.Error(err))
		}
		fmt.Println("Account created")
		printSession(session)

	default:
		session, err := services.Auth.Login(ctx, req.username, req.password, req.role)
		if err != nil {
			logger.Fatal("Sign in failed", zap.Error(err))
		}
		fmt.Println("Signed in")
		printSession(session)
	}
}
