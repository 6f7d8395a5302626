package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spantoken/bridge-hub/pkg/adapter"
	apperrors "github.com/spantoken/bridge-hub/pkg/app/errors"
	apphttp "github.com/spantoken/bridge-hub/pkg/app/http"
	"github.com/spantoken/bridge-hub/pkg/auth"
	"github.com/spantoken/bridge-hub/pkg/bridge"
	"github.com/spantoken/bridge-hub/pkg/router"
)

type createTransferRequest struct {
	Sender      string `json:"sender" validate:"omitempty,max=255"`
	Recipient   string `json:"recipient" validate:"required,max=255"`
	Amount      string `json:"amount" validate:"required"`
	SourceChain uint64 `json:"source_chain" validate:"required"`
	DestChain   uint64 `json:"dest_chain" validate:"required"`
	Protocol    string `json:"protocol" validate:"omitempty,oneof=guardian messagebus lightclient courier"`
	Preference  string `json:"preference" validate:"omitempty,oneof=cheapest fastest mostSecure"`
}

type inboundRequest struct {
	OriginChain uint64 `json:"origin_chain" validate:"required"`
	Sender      string `json:"sender" validate:"required,max=255"`
	Payload     string `json:"payload" validate:"required,base64"`
}

type statusUpdateRequest struct {
	Status string `json:"status" validate:"required,oneof=completed failed refunded"`
}

type proposalRequest struct {
	ChainID      uint64 `json:"chain_id" validate:"required"`
	TotalSupply  string `json:"total_supply" validate:"required"`
	LockedSupply string `json:"locked_supply" validate:"required"`
	Nonce        uint64 `json:"nonce" validate:"required"`
	Signer       string `json:"signer" validate:"required"`
	Signature    string `json:"signature" validate:"required,base64"`
}

// decode parses and validates a JSON request body.
func (s *Server) decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Validation(err, "malformed request body")
	}
	if err := s.validate.Struct(v); err != nil {
		return apperrors.Validation(err, "invalid request")
	}
	return nil
}

func queryChainAmount(r *http.Request) (bridge.ChainID, decimal.Decimal, error) {
	chain, err := strconv.ParseUint(r.URL.Query().Get("chain"), 10, 64)
	if err != nil {
		return 0, decimal.Zero, apperrors.Validation(err, "chain must be a decimal chain id")
	}
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		return 0, decimal.Zero, apperrors.Validation(err, "amount must be a decimal number")
	}
	if !amount.IsPositive() {
		return 0, decimal.Zero, apperrors.Validation(nil, "amount must be positive")
	}
	return bridge.ChainID(chain), amount, nil
}

func (s *Server) getRoutes(w http.ResponseWriter, r *http.Request) error {
	chain, amount, err := queryChainAmount(r)
	if err != nil {
		return err
	}

	options := s.router.GetBridgeOptions(r.Context(), chain, amount)
	return apphttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"chain":   chain,
		"amount":  amount,
		"options": options,
	})
}

func (s *Server) getOptimalRoute(w http.ResponseWriter, r *http.Request) error {
	chain, amount, err := queryChainAmount(r)
	if err != nil {
		return err
	}

	preference := router.RoutePreference(r.URL.Query().Get("preference"))
	switch preference {
	case "", router.PreferCheapest, router.PreferFastest, router.PreferMostSecure:
	default:
		return apperrors.Validation(nil, fmt.Sprintf("unknown preference %q", preference))
	}

	protocol, err := s.router.GetOptimalRoute(r.Context(), chain, amount, preference)
	if err != nil {
		return apperrors.Configuration(err, fmt.Sprintf("no route to chain %d", chain))
	}
	return apphttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"protocol":   protocol,
		"preference": preference,
	})
}

func (s *Server) createTransfer(w http.ResponseWriter, r *http.Request) error {
	var req createTransferRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}

	// The authenticated subject is the sender of record; the body field
	// only applies when authentication is disabled.
	sender := req.Sender
	if subject, ok := auth.SubjectFromContext(r.Context()); ok {
		sender = subject
	}
	if sender == "" {
		return apperrors.Validation(nil, "sender is required")
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return apperrors.Validation(err, "amount must be a decimal number")
	}

	protocol := bridge.Protocol(req.Protocol)
	if protocol == "" {
		protocol, err = s.router.GetOptimalRoute(r.Context(),
			bridge.ChainID(req.DestChain), amount, router.RoutePreference(req.Preference))
		if err != nil {
			return apperrors.Configuration(err, fmt.Sprintf("no route to chain %d", req.DestChain))
		}
	}

	id, err := s.router.BridgeToken(r.Context(), router.BridgeRequest{
		SourceChain: bridge.ChainID(req.SourceChain),
		DestChain:   bridge.ChainID(req.DestChain),
		Sender:      sender,
		Recipient:   req.Recipient,
		Amount:      amount,
		Protocol:    protocol,
	})
	if err != nil {
		return err
	}

	return apphttp.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       id,
		"protocol": protocol,
	})
}

func (s *Server) getTransfer(w http.ResponseWriter, r *http.Request) error {
	transfer, err := s.router.GetTransfer(chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, transfer)
}

func (s *Server) listTransfers(w http.ResponseWriter, _ *http.Request) error {
	return apphttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transfers": s.router.Transfers(),
	})
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) error {
	protocol := bridge.Protocol(chi.URLParam(r, "protocol"))
	if !s.verifier.Allowed(r.Context(), "relayer:"+string(protocol)) {
		return apperrors.Authorization(nil, fmt.Sprintf("missing capability relayer:%s", protocol))
	}

	a, ok := s.adapters[protocol]
	if !ok {
		return apperrors.Configuration(nil, fmt.Sprintf("unknown protocol %s", protocol))
	}

	var req inboundRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}

	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		return apperrors.Validation(err, "payload must be base64")
	}

	if err := a.HandleInbound(r.Context(), bridge.ChainID(req.OriginChain), req.Sender, payload); err != nil {
		return err
	}

	s.logger.Debug("Inbound delivery accepted",
		zap.String("protocol", string(protocol)),
		zap.Uint64("origin_chain", req.OriginChain))
	return apphttp.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// updateTransferStatus lets a relayer report delivery confirmation for a
// dispatched transfer. The caller needs the relayer capability for the
// protocol the transfer was dispatched on.
func (s *Server) updateTransferStatus(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	transfer, err := s.router.GetTransfer(id)
	if err != nil {
		return err
	}
	if !s.verifier.Allowed(r.Context(), "relayer:"+string(transfer.Protocol)) {
		return apperrors.Authorization(nil, fmt.Sprintf("missing capability relayer:%s", transfer.Protocol))
	}

	var req statusUpdateRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}

	status := bridge.TransferStatus(req.Status)
	if err := s.router.UpdateTransferStatus(r.Context(), transfer.Protocol, id, status); err != nil {
		return err
	}

	s.logger.Debug("Transfer status reported",
		zap.String("transfer_id", id),
		zap.String("status", req.Status),
		zap.String("protocol", string(transfer.Protocol)))
	return apphttp.WriteJSON(w, http.StatusOK, map[string]string{
		"id":     id,
		"status": req.Status,
	})
}

func (s *Server) proposeUpdate(w http.ResponseWriter, r *http.Request) error {
	var req proposalRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}

	if !common.IsHexAddress(req.Signer) {
		return apperrors.Validation(nil, "signer must be a hex address")
	}
	total, err := decimal.NewFromString(req.TotalSupply)
	if err != nil {
		return apperrors.Validation(err, "total_supply must be a decimal number")
	}
	locked, err := decimal.NewFromString(req.LockedSupply)
	if err != nil {
		return apperrors.Validation(err, "locked_supply must be a decimal number")
	}
	signature, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		return apperrors.Validation(err, "signature must be base64")
	}

	err = s.oracle.ProposeUpdate(r.Context(), bridge.ChainID(req.ChainID),
		total, locked, req.Nonce, common.HexToAddress(req.Signer), signature)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) getSupplies(w http.ResponseWriter, _ *http.Request) error {
	return apphttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"supplies":  s.oracle.Supplies(),
		"emergency": s.oracle.EmergencyMode(),
	})
}

func (s *Server) adapterFromPath(r *http.Request) (*adapter.Adapter, error) {
	protocol := bridge.Protocol(chi.URLParam(r, "protocol"))
	a, ok := s.adapters[protocol]
	if !ok {
		return nil, apperrors.Configuration(nil, fmt.Sprintf("unknown protocol %s", protocol))
	}
	return a, nil
}
