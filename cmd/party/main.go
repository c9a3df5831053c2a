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
	"time"

	"party-request-go/internal/common"
	"party-request-go/internal/config"
	"party-request-go/internal/models"
	"party-request-go/internal/party"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type partyRequest struct {
	action   string
	partyId  string
	songId   string
	name     string
	venue    string
	minPrice decimal.Decimal
	duration time.Duration
	passcode string
	title    string
	artist   string
	price    decimal.Decimal
}

func parseAndValidateFlags() (*partyRequest, error) {
	createFlag := flag.String("create", "", "Open a party with this name (DJ)")
	venueFlag := flag.String("venue", "", "Venue of the new party")
	minFlag := flag.Int64("min", 100, "Minimum request price of the new party")
	forFlag := flag.Duration("for", 4*time.Hour, "How long the new party stays open")
	joinFlag := flag.String("join", "", "Join the party with this passcode")
	requestFlag := flag.String("request", "", "Request a song with this title")
	artistFlag := flag.String("artist", "", "Artist of the requested song")
	priceFlag := flag.Int64("price", 0, "Amount to pay for the request")
	playFlag := flag.String("play", "", "Play the song with this id (DJ)")
	declineFlag := flag.String("decline", "", "Decline the song with this id and refund it (DJ)")
	playedFlag := flag.String("played", "", "Mark the song with this id as played (DJ)")
	closeFlag := flag.Bool("close", false, "Close the party (DJ)")
	qrFlag := flag.Bool("qr", false, "Print the party's join link")
	queueFlag := flag.Bool("queue", false, "Show the party's pending requests")
	partyFlag := flag.String("party", "", "Party id (defaults to the current party)")
	flag.Parse()

	req := &partyRequest{partyId: *partyFlag, action: "list"}
	switch {
	case *createFlag != "":
		if *venueFlag == "" {
			return nil, fmt.Errorf("--venue is required with --create")
		}
		req.action, req.name, req.venue = "create", *createFlag, *venueFlag
		req.minPrice = decimal.NewFromInt(*minFlag)
		req.duration = *forFlag
	case *joinFlag != "":
		req.action, req.passcode = "join", *joinFlag
	case *requestFlag != "":
		if *artistFlag == "" || *priceFlag <= 0 {
			return nil, fmt.Errorf("--artist and a positive --price are required with --request")
		}
		req.action, req.title, req.artist = "request", *requestFlag, *artistFlag
		req.price = decimal.NewFromInt(*priceFlag)
	case *playFlag != "":
		req.action, req.songId = "play", *playFlag
	case *declineFlag != "":
		req.action, req.songId = "decline", *declineFlag
	case *playedFlag != "":
		req.action, req.songId = "played", *playedFlag
	case *closeFlag:
		req.action = "close"
	case *qrFlag:
		req.action = "qr"
	case *queueFlag:
		req.action = "queue"
	}
	return req, nil
}

func printParty(p models.Party, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	detail := common.BoxDetailPrefix(isLast)
	state := "open"
	if !p.IsActive {
		state = "closed"
	}
	fmt.Printf("%s %s @ %s (%s)\n", symbol, p.Name, p.Venue, state)
	fmt.Printf("%s   id: %s  passcode: %s  dj: %s\n", detail, p.Id, p.Passcode, p.Dj)
	fmt.Printf("%s   min: %s  earnings: %s  until: %s\n", detail,
		common.FormatNaira(p.MinRequestPrice), common.FormatNaira(p.Earnings), common.FormatTime(p.EndsAt()))
}

func printParties(title string, parties []models.Party) {
	if len(parties) == 0 {
		return
	}
	fmt.Printf("\n┌─ %s (%d)\n", title, len(parties))
	common.PrintBoxSeparator(78)
	for i, p := range parties {
		printParty(p, i == len(parties)-1)
	}
}

func printSongs(songs []models.Song) {
	if len(songs) == 0 {
		fmt.Println("No songs")
		return
	}
	for i, s := range songs {
		fmt.Printf("%s %-10s %-8s %s - %s (%s, %s)\n",
			common.BoxPrefix(i == len(songs)-1),
			common.ShortId(s.Id),
			s.Status,
			s.Title,
			s.Artist,
			common.FormatNaira(s.Price),
			s.RequestedBy)
	}
}

// resolveParty picks the party an action applies to
func resolveParty(ctx context.Context, engine *party.Engine, partyId string) (string, error) {
	if partyId != "" {
		return partyId, nil
	}
	current, err := engine.CurrentParty(ctx)
	if err != nil {
		return "", err
	}
	if current == nil {
		return "", fmt.Errorf("no current party, pass --party")
	}
	return current.Id, nil
}

func run(ctx context.Context, services *common.Services, req *partyRequest) error {
	engine := services.Parties

	if _, err := engine.Refresh(ctx); err != nil {
		zap.L().Warn("Party refresh failed", zap.Error(err))
	}

	switch req.action {
	case "create":
		p, err := engine.CreateParty(ctx, models.CreatePartyParams{
			Name:            req.name,
			Venue:           req.venue,
			MinRequestPrice: req.minPrice,
			ActiveUntil:     time.Now().Add(req.duration),
		})
		if err != nil {
			return fmt.Errorf("failed to create party: %w", err)
		}
		printParties("Opened", []models.Party{*p})
		return nil

	case "join":
		p, err := engine.JoinParty(ctx, req.passcode)
		if err != nil {
			return fmt.Errorf("failed to join party: %w", err)
		}
		printParties("Joined", []models.Party{*p})
		return nil

	case "request":
		song, err := engine.RequestSong(ctx, models.SongRequestParams{Title: req.title, Artist: req.artist, Price: req.price})
		if err != nil {
			return fmt.Errorf("failed to request song: %w", err)
		}
		fmt.Printf("Requested %s - %s for %s (%s)\n", song.Title, song.Artist, common.FormatNaira(song.Price), song.Id)
		return nil

	case "list":
		view, err := engine.Snapshot(ctx)
		if err != nil {
			return err
		}
		common.PrintHeader(fmt.Sprintf("PARTIES (%s)", view.Source), common.DefaultWidth)
		if view.Current != nil {
			printParties("Current", []models.Party{*view.Current})
		}
		printParties("Hosting", view.Created)
		printParties("Joined", view.Joined)
		printParties("Closed", view.Closed)
		return nil
	}

	partyId, err := resolveParty(ctx, engine, req.partyId)
	if err != nil {
		return err
	}

	var song *models.Song
	switch req.action {
	case "play":
		song, err = engine.PlaySong(ctx, partyId, req.songId)
	case "decline":
		song, err = engine.DeclineSong(ctx, partyId, req.songId)
	case "played":
		song, err = engine.MarkSongAsPlayed(ctx, partyId, req.songId)
	case "close":
		if err := engine.CloseParty(ctx, partyId); err != nil {
			return fmt.Errorf("failed to close party: %w", err)
		}
		fmt.Printf("Closed %s\n", partyId)
		return nil
	case "qr":
		payload, err := engine.GetQrPayload(ctx, partyId)
		if err != nil {
			return err
		}
		fmt.Println(payload)
		return nil
	case "queue":
		queue, err := engine.Queue(ctx, partyId)
		if err != nil {
			return err
		}
		common.PrintHeader("QUEUE", common.DefaultWidth)
		printSongs(queue)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to update song: %w", err)
	}
	fmt.Printf("%s - %s is now %s\n", song.Title, song.Artist, song.Status)
	return nil
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

	if _, err := services.RequireSession(ctx); err != nil {
		logger.Fatal("No active session", zap.Error(err))
	}

	if err := run(ctx, services, req); err != nil {
		logger.Fatal("Party command failed", zap.String("action", req.action), zap.Error(err))
	}
}
