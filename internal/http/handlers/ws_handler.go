package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arunavo4/sol-sell-escrow/internal/auth"
	"github.com/arunavo4/sol-sell-escrow/internal/config"
	"github.com/arunavo4/sol-sell-escrow/internal/events"
	"github.com/arunavo4/sol-sell-escrow/internal/web3"
)

// ErrNoWalletSession means the wallet has no live websocket connection, so
// there is nobody to forward a signature request to.
var ErrNoWalletSession = errors.New("wallet has no active session")

const (
	wsTypeSignRequest  = "sign_request"
	wsTypeSignResponse = "sign_response"
	wsTypeSignReject   = "sign_reject"
)

type wsMessage struct {
	Type        string `json:"type"`
	ID          string `json:"id,omitempty"`
	Transaction string `json:"transaction,omitempty"` // base64 wire format
	Error       string `json:"error,omitempty"`
}

type signResult struct {
	tx       *solana.Transaction
	rejected bool
}

// WSHub tracks each wallet's websocket sessions. It pushes offer lifecycle
// events to the two wallets involved, and carries the signature round-trip:
// the API pushes a sign_request with the serialized transaction, the wallet
// answers sign_response (countersigned transaction) or sign_reject.
type WSHub struct {
	cfg        *config.Config
	subscriber events.Subscriber
	log        *zap.Logger

	mu          sync.RWMutex
	connections map[string][]*websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]chan signResult
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[string][]*websocket.Conn),
		pending:     make(map[string]chan signResult),
	}
}

func (h *WSHub) Start(ctx context.Context) {
	_ = h.subscriber.Subscribe(ctx, events.StreamOffers, func(event events.Event) {
		h.routeEvent(event)
	})
}

// routeEvent delivers an offer event to the offer's two parties; events
// without addresses go to everyone.
func (h *WSHub) routeEvent(event events.Event) {
	buyer, _ := event.Payload["buyer_address"].(string)
	seller, _ := event.Payload["seller_address"].(string)
	if buyer == "" && seller == "" {
		h.broadcast(event)
		return
	}
	h.SendToWallet(buyer, event)
	if seller != buyer {
		h.SendToWallet(seller, event)
	}
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conns := range h.connections {
		for _, conn := range conns {
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
	}
}

func (h *WSHub) SendToWallet(walletAddress string, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections[walletAddress] {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
}

func (h *WSHub) sendToWallet(walletAddress string, msg wsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := h.connections[walletAddress]
	if len(conns) == 0 {
		return ErrNoWalletSession
	}
	for _, conn := range conns {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
	return nil
}

func (h *WSHub) register(id string, ch chan signResult) {
	h.pendingMu.Lock()
	h.pending[id] = ch
	h.pendingMu.Unlock()
}

func (h *WSHub) unregister(id string) {
	h.pendingMu.Lock()
	delete(h.pending, id)
	h.pendingMu.Unlock()
}

// deliver hands a wallet's answer to the waiting request, if it still waits.
// Late or duplicate answers are dropped.
func (h *WSHub) deliver(id string, res signResult) {
	h.pendingMu.Lock()
	ch, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	h.pendingMu.Unlock()
	if ok {
		ch <- res
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	walletAddress := claims.WalletAddress

	h.mu.Lock()
	h.connections[walletAddress] = append(h.connections[walletAddress], conn)
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		conns := h.connections[walletAddress]
		for i, c := range conns {
			if c == conn {
				h.connections[walletAddress] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		if len(h.connections[walletAddress]) == 0 {
			delete(h.connections, walletAddress)
		}
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case wsTypeSignResponse:
			tx, err := decodeTransaction(msg.Transaction)
			if err != nil {
				h.log.Warn("undecodable signed transaction from wallet",
					zap.String("wallet", walletAddress), zap.Error(err))
				continue
			}
			h.deliver(msg.ID, signResult{tx: tx})
		case wsTypeSignReject:
			h.deliver(msg.ID, signResult{rejected: true})
		}
	}
}

func decodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode transaction base64: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("parse transaction: %w", err)
	}
	return tx, nil
}

// RemoteSigner is the wallet signer backed by the wallet's websocket session.
// SignTransaction suspends until the human answers, the timeout passes, or
// ctx is canceled.
type RemoteSigner struct {
	hub     *WSHub
	address solana.PublicKey
	timeout time.Duration
}

// Signer returns a signer for the wallet's live session, or ErrNoWalletSession.
func (h *WSHub) Signer(walletAddress string, timeout time.Duration) (*RemoteSigner, error) {
	address, err := solana.PublicKeyFromBase58(walletAddress)
	if err != nil {
		return nil, fmt.Errorf("parse wallet address: %w", err)
	}

	h.mu.RLock()
	connected := len(h.connections[walletAddress]) > 0
	h.mu.RUnlock()
	if !connected {
		return nil, ErrNoWalletSession
	}

	return &RemoteSigner{hub: h, address: address, timeout: timeout}, nil
}

func (s *RemoteSigner) PublicKey() solana.PublicKey { return s.address }

func (s *RemoteSigner) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serialize transaction: %w", err)
	}
	wantMessage, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serialize transaction message: %w", err)
	}

	id := uuid.NewString()
	ch := make(chan signResult, 1)
	s.hub.register(id, ch)
	defer s.hub.unregister(id)

	err = s.hub.sendToWallet(s.address.String(), wsMessage{
		Type:        wsTypeSignRequest,
		ID:          id,
		Transaction: base64.StdEncoding.EncodeToString(raw),
	})
	if err != nil {
		return err
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("wallet did not answer the signature request within %s", s.timeout)
	case res := <-ch:
		if res.rejected {
			return web3.ErrSignerRejected
		}
		// The wallet may only add signatures; a different message means a
		// different transaction came back.
		gotMessage, err := res.tx.Message.MarshalBinary()
		if err != nil {
			return fmt.Errorf("serialize returned message: %w", err)
		}
		if !bytes.Equal(gotMessage, wantMessage) {
			return fmt.Errorf("wallet returned a different transaction than requested")
		}
		*tx = *res.tx
		return nil
	}
}
