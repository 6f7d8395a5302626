package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spantoken/bridge-hub/pkg/accounts"
	apperrors "github.com/spantoken/bridge-hub/pkg/app/errors"
	apphttp "github.com/spantoken/bridge-hub/pkg/app/http"
	"github.com/spantoken/bridge-hub/pkg/bridge"
	"github.com/spantoken/bridge-hub/pkg/ratelimit"
)

type setRemoteRequest struct {
	OriginChain uint64 `json:"origin_chain" validate:"required"`
	Sender      string `json:"sender" validate:"required,max=255"`
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type emergencyRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type rateLimitRequest struct {
	WindowDuration  string           `json:"window_duration" validate:"required"`
	BaseMaxTokens   string           `json:"base_max_tokens" validate:"required"`
	MaxTxPerWindow  int              `json:"max_tx_per_window" validate:"required,min=1"`
	TierMultipliers map[string]int64 `json:"tier_multipliers"`
	GlobalMaxTokens string           `json:"global_max_tokens"`
	GlobalMaxTx     int              `json:"global_max_tx" validate:"min=0"`
}

type setTierRequest struct {
	Tier string `json:"tier" validate:"required,oneof=standard silver gold institutional internal premium"`
}

type setExemptRequest struct {
	Exempt *bool `json:"exempt" validate:"required"`
}

func (s *Server) pauseRouter(w http.ResponseWriter, _ *http.Request) error {
	if err := s.router.Pause(); err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) unpauseRouter(w http.ResponseWriter, _ *http.Request) error {
	s.router.Unpause()
	return apphttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) pauseAdapter(w http.ResponseWriter, r *http.Request) error {
	a, err := s.adapterFromPath(r)
	if err != nil {
		return err
	}
	if err := a.Pause(); err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) unpauseAdapter(w http.ResponseWriter, r *http.Request) error {
	a, err := s.adapterFromPath(r)
	if err != nil {
		return err
	}
	a.Unpause()
	return apphttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) setTrustedRemote(w http.ResponseWriter, r *http.Request) error {
	a, err := s.adapterFromPath(r)
	if err != nil {
		return err
	}

	var req setRemoteRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}

	a.SetTrustedRemote(bridge.ChainID(req.OriginChain), req.Sender)
	return apphttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) setProtocolEnabled(w http.ResponseWriter, r *http.Request) error {
	protocol := bridge.Protocol(chi.URLParam(r, "protocol"))
	if _, ok := s.adapters[protocol]; !ok {
		return apperrors.Configuration(nil, fmt.Sprintf("unknown protocol %s", protocol))
	}

	var req setEnabledRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}

	s.router.SetEnabled(protocol, *req.Enabled)
	s.logger.Info("Protocol toggled",
		zap.String("protocol", string(protocol)),
		zap.Bool("enabled", *req.Enabled))
	return apphttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"protocol": protocol,
		"enabled":  *req.Enabled,
	})
}

func (s *Server) setEmergencyMode(w http.ResponseWriter, r *http.Request) error {
	var req emergencyRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}

	if *req.Active {
		s.oracle.ActivateEmergencyMode()
	} else {
		s.oracle.DeactivateEmergencyMode()
	}
	return apphttp.WriteJSON(w, http.StatusOK, map[string]bool{"emergency": *req.Active})
}

func (s *Server) updateRateLimit(w http.ResponseWriter, r *http.Request) error {
	var req rateLimitRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}

	window, err := time.ParseDuration(req.WindowDuration)
	if err != nil || window <= 0 {
		return apperrors.Validation(err, "window_duration must be a positive duration")
	}
	baseMax, err := decimal.NewFromString(req.BaseMaxTokens)
	if err != nil || !baseMax.IsPositive() {
		return apperrors.Validation(err, "base_max_tokens must be a positive decimal")
	}
	globalMax := decimal.Zero
	if req.GlobalMaxTokens != "" {
		globalMax, err = decimal.NewFromString(req.GlobalMaxTokens)
		if err != nil || globalMax.IsNegative() {
			return apperrors.Validation(err, "global_max_tokens must be a non-negative decimal")
		}
	}

	s.limiter.UpdateConfig(ratelimit.Config{
		WindowDuration:  window,
		BaseMaxTokens:   baseMax,
		MaxTxPerWindow:  req.MaxTxPerWindow,
		TierMultipliers: req.TierMultipliers,
		GlobalMaxTokens: globalMax,
		GlobalMaxTx:     req.GlobalMaxTx,
	})
	return apphttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) setAccountTier(w http.ResponseWriter, r *http.Request) error {
	if s.accounts == nil {
		return apperrors.Configuration(nil, "account store is not configured")
	}

	var req setTierRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}

	// SetTier preserves the exemption flag; unknown addresses get a fresh
	// account record.
	address := chi.URLParam(r, "address")
	err := s.accounts.SetTier(r.Context(), address, req.Tier)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		err = s.accounts.Upsert(r.Context(), &accounts.Account{Address: address, Tier: req.Tier})
	}
	if err != nil {
		return apperrors.Internal(err)
	}
	if s.directory != nil {
		s.directory.Invalidate(address)
	}

	s.logger.Info("Account tier updated",
		zap.String("address", address),
		zap.String("tier", req.Tier))
	return apphttp.WriteJSON(w, http.StatusOK, map[string]string{
		"address": address,
		"tier":    req.Tier,
	})
}

func (s *Server) setAccountExempt(w http.ResponseWriter, r *http.Request) error {
	if s.accounts == nil {
		return apperrors.Configuration(nil, "account store is not configured")
	}

	var req setExemptRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}

	address := chi.URLParam(r, "address")
	if err := s.accounts.SetExempt(r.Context(), address, *req.Exempt); err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return apperrors.Validation(err, fmt.Sprintf("unknown account %s", address))
		}
		return apperrors.Internal(err)
	}
	if s.directory != nil {
		s.directory.Invalidate(address)
	}

	s.logger.Info("Account exemption updated",
		zap.String("address", address),
		zap.Bool("exempt", *req.Exempt))
	return apphttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"address": address,
		"exempt":  *req.Exempt,
	})
}
