package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"crashpoll/internal/game"
)

// Health handler
func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"database": s.db.Health(),
		"cache":    s.cache.Health(),
		"round": fiber.Map{
			"status":            "running",
			"connected_clients": s.hub.GetClientCount(),
		},
	}
	return c.JSON(health)
}

// betErrorStatus maps service errors to HTTP status codes.
func betErrorStatus(err error) int {
	switch {
	case errors.Is(err, game.ErrInvalidAmount),
		errors.Is(err, game.ErrBetAlreadyPlaced),
		errors.Is(err, game.ErrCannotCancelActiveBet),
		errors.Is(err, game.ErrNoActiveBet):
		return fiber.StatusBadRequest
	case errors.Is(err, game.ErrInsufficientFunds):
		return fiber.StatusPaymentRequired
	case errors.Is(err, game.ErrLedgerUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// Round handlers

func (s *FiberServer) getRoundHandler(c *fiber.Ctx) error {
	record := s.poller.CurrentRound()
	view := s.poller.CurrentView()

	resp := fiber.Map{
		"round_id":       record.RoundID,
		"phase":          view.Phase,
		"multiplier":     view.Multiplier,
		"time_remaining": view.TimeRemaining,
		"history":        record.History,
	}

	// Crash points are only disclosed once the round is over.
	if record.Phase == game.PhaseCrashed {
		resp["crash_point"] = record.CrashPoint
	}

	if userID := c.Query("user_id"); userID != "" {
		resp["bet"] = s.bets.CurrentView(userID)
	}

	return c.JSON(resp)
}

func (s *FiberServer) getRoundPlayersHandler(c *fiber.Ctx) error {
	record := s.poller.CurrentRound()
	return c.JSON(fiber.Map{
		"round_id": record.RoundID,
		"players":  s.poller.Opponents(),
	})
}

// Bet handlers

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	var req struct {
		UserID        string  `json:"user_id"`
		Amount        float64 `json:"amount"`
		TargetCashout float64 `json:"target_cashout"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	bet, err := s.bets.PlaceBet(c.Context(), req.UserID, req.Amount, req.TargetCashout)
	if err != nil {
		return c.Status(betErrorStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"user_id": req.UserID,
		"bet":     bet,
	})
}

func (s *FiberServer) cancelBetHandler(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	bet, err := s.bets.CancelBet(c.Context(), req.UserID)
	if err != nil {
		return c.Status(betErrorStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"user_id": req.UserID,
		"bet":     bet,
	})
}

func (s *FiberServer) cashoutHandler(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	bet, err := s.bets.ManualCashout(c.Context(), req.UserID)
	if err != nil {
		return c.Status(betErrorStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"user_id": req.UserID,
		"bet":     bet,
	})
}

// User balance handlers

func (s *FiberServer) getUserBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	balance, err := s.ledger.GetBalance(c.Context(), userID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to read balance",
		})
	}

	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": balance,
	})
}

// setUserBalanceHandler credits a deposit onto a wallet (for testing/admin).
func (s *FiberServer) setUserBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	var body struct {
		Amount         float64 `json:"amount"`
		IdempotencyKey string  `json:"idempotency_key"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if body.Amount <= 0 {
		return c.Status(400).JSON(fiber.Map{
			"error": "Amount must be positive",
		})
	}
	// the key comes from the client so a retried deposit is a no-op
	if body.IdempotencyKey == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Idempotency key is required",
		})
	}

	key := fmt.Sprintf("%s:deposit:%s", userID, body.IdempotencyKey)
	balance, err := s.ledger.AdjustBalance(c.Context(), userID, body.Amount, key)
	if err != nil {
		return c.Status(betErrorStatus(err)).JSON(fiber.Map{
			"error": "Failed to credit balance",
		})
	}

	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": balance,
		"message": "Balance updated successfully",
	})
}

// WebSocket handler

func (s *FiberServer) roundWebSocketHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id", "anonymous")

	log.Printf("[WS] New connection from user: %s", userID)

	client := s.hub.RegisterClient(conn, userID)

	record := s.poller.CurrentRound()
	client.SendInitialState(record.RoundID, s.poller.CurrentView())

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] Read error for user %s: %v", userID, err)
			s.hub.UnregisterClient(conn)
			break
		}

		if messageType == websocket.TextMessage {
			var clientMsg map[string]interface{}
			if err := json.Unmarshal(message, &clientMsg); err != nil {
				continue
			}

			msgType, ok := clientMsg["type"].(string)
			if !ok {
				continue
			}

			switch msgType {
			case "place_bet":
				amount, _ := strconv.ParseFloat(fmt.Sprintf("%v", clientMsg["amount"]), 64)
				target, _ := strconv.ParseFloat(fmt.Sprintf("%v", clientMsg["target_cashout"]), 64)

				bet, err := s.bets.PlaceBet(context.Background(), userID, amount, target)
				writeBetResult(conn, "bet_result", bet, err)

			case "cancel_bet":
				bet, err := s.bets.CancelBet(context.Background(), userID)
				writeBetResult(conn, "cancel_result", bet, err)

			case "cashout":
				bet, err := s.bets.ManualCashout(context.Background(), userID)
				writeBetResult(conn, "cashout_result", bet, err)

			case "ping":
				pongJSON, _ := json.Marshal(map[string]string{"type": "pong"})
				conn.WriteMessage(websocket.TextMessage, pongJSON)
			}
		}
	}
}

func writeBetResult(conn *websocket.Conn, msgType string, bet game.Bet, err error) {
	payload := map[string]interface{}{
		"type": msgType,
	}
	if err != nil {
		payload["error"] = err.Error()
	} else {
		payload["bet"] = bet
	}

	respJSON, _ := json.Marshal(payload)
	conn.WriteMessage(websocket.TextMessage, respJSON)
}
