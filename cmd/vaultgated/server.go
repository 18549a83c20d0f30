package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/custodia-labs/vaultgate/pkg/api"
	"github.com/custodia-labs/vaultgate/pkg/auth"
	"github.com/custodia-labs/vaultgate/pkg/contracts"
	"github.com/custodia-labs/vaultgate/pkg/gate"
	"github.com/custodia-labs/vaultgate/pkg/redemption"
)

type server struct {
	core *gate.Core
}

func newServer(core *gate.Core) *server {
	return &server{core: core}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/check", s.handleCheck)
	mux.HandleFunc("POST /v1/schedule", s.handleSchedule)
	mux.HandleFunc("POST /v1/cancel", s.handleCancel)
	mux.HandleFunc("POST /v1/targets/closed", s.handleTargetClosed)
	mux.HandleFunc("POST /v1/vaults/public", s.handleConvertPublic)
	mux.HandleFunc("POST /v1/vaults/transferable", s.handleEnableTransfers)
	mux.HandleFunc("POST /v1/roles/delays", s.handleSetDelays)
	mux.HandleFunc("POST /v1/roles/grant", s.handleGrant)
	mux.HandleFunc("GET /v1/roles/{role}/delay", s.handleGetDelay)
	mux.HandleFunc("GET /v1/accounts/{account}/lock", s.handleGetLock)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, map[string]string{"status": "ok"})
}

type checkRequest struct {
	Caller string `json:"caller"`
	Target string `json:"target"`
	Op     string `json:"op"`
}

type checkResponse struct {
	Immediate    bool  `json:"immediate"`
	DelaySeconds int64 `json:"delay_seconds"`
}

func (s *server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "invalid request body")
		return
	}
	immediate, delay, err := s.core.CanCallAndUpdate(r.Context(),
		contracts.Address(req.Caller), contracts.Address(req.Target), contracts.OpID(req.Op))
	if err != nil {
		var locked *redemption.LockedError
		if errors.As(err, &locked) {
			api.WriteLocked(w, locked.UnlockTime-time.Now().Unix(), locked.Error())
			return
		}
		api.WriteInternal(w, err)
		return
	}
	api.WriteJSON(w, checkResponse{Immediate: immediate, DelaySeconds: int64(delay / time.Second)})
}

type scheduleRequest struct {
	Caller  string `json:"caller"`
	Target  string `json:"target"`
	Op      string `json:"op"`
	ReadyAt int64  `json:"ready_at"`
}

func (s *server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFrom(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, "")
		return
	}
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "invalid request body")
		return
	}
	// Scheduling is principal-bound: a pending schedule for a triple can
	// only be created or replaced by the triple's own caller. Anyone else
	// replacing it would amount to cancellation without authority.
	if req.Caller != actor {
		api.WriteForbidden(w, "operations can only be scheduled by their caller")
		return
	}
	err = s.core.Schedule(r.Context(),
		contracts.Address(req.Caller), contracts.Address(req.Target),
		contracts.OpID(req.Op), time.Unix(req.ReadyAt, 0))
	if err != nil {
		api.WriteConflict(w, err.Error())
		return
	}
	api.WriteJSON(w, map[string]string{"status": "scheduled"})
}

type cancelRequest struct {
	Caller string `json:"caller"`
	Target string `json:"target"`
	Op     string `json:"op"`
}

func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFrom(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, "")
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "invalid request body")
		return
	}
	err = s.core.CancelScheduledOperation(r.Context(), contracts.Address(actor),
		contracts.Address(req.Caller), contracts.Address(req.Target), contracts.OpID(req.Op))
	if err != nil {
		api.WriteConflict(w, err.Error())
		return
	}
	api.WriteJSON(w, map[string]string{"status": "cancelled"})
}

type targetClosedRequest struct {
	Target string `json:"target"`
	Closed bool   `json:"closed"`
}

func (s *server) handleTargetClosed(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFrom(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, "")
		return
	}
	var req targetClosedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := s.core.UpdateTargetClosed(r.Context(), contracts.Address(actor), contracts.Address(req.Target), req.Closed); err != nil {
		s.writeCoreError(w, err)
		return
	}
	api.WriteJSON(w, map[string]string{"status": "ok"})
}

type vaultRequest struct {
	Vault string `json:"vault"`
}

func (s *server) handleConvertPublic(w http.ResponseWriter, r *http.Request) {
	s.vaultMutator(w, r, s.core.ConvertToPublicVault)
}

func (s *server) handleEnableTransfers(w http.ResponseWriter, r *http.Request) {
	s.vaultMutator(w, r, s.core.EnableTransferShares)
}

func (s *server) vaultMutator(w http.ResponseWriter, r *http.Request, mutate func(ctx context.Context, by, vault contracts.Address) error) {
	actor, err := auth.ActorFrom(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, "")
		return
	}
	var req vaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := mutate(r.Context(), contracts.Address(actor), contracts.Address(req.Vault)); err != nil {
		s.writeCoreError(w, err)
		return
	}
	api.WriteJSON(w, map[string]string{"status": "ok"})
}

type setDelaysRequest struct {
	Roles  []uint64 `json:"roles"`
	Delays []int64  `json:"delays_seconds"`
}

func (s *server) handleSetDelays(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFrom(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, "")
		return
	}
	var req setDelaysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "invalid request body")
		return
	}
	roles := make([]contracts.RoleID, len(req.Roles))
	for i, role := range req.Roles {
		roles[i] = contracts.RoleID(role)
	}
	delays := make([]time.Duration, len(req.Delays))
	for i, d := range req.Delays {
		delays[i] = time.Duration(d) * time.Second
	}
	if err := s.core.SetMinimalExecutionDelaysForRoles(r.Context(), contracts.Address(actor), roles, delays); err != nil {
		s.writeCoreError(w, err)
		return
	}
	api.WriteJSON(w, map[string]string{"status": "ok"})
}

type grantRequest struct {
	Role         uint64 `json:"role"`
	Account      string `json:"account"`
	DelaySeconds int64  `json:"delay_seconds"`
}

func (s *server) handleGrant(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFrom(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, "")
		return
	}
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "invalid request body")
		return
	}
	err = s.core.GrantRole(r.Context(), contracts.Address(actor),
		contracts.RoleID(req.Role), contracts.Address(req.Account),
		time.Duration(req.DelaySeconds)*time.Second)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	api.WriteJSON(w, map[string]string{"status": "granted"})
}

func (s *server) handleGetDelay(w http.ResponseWriter, r *http.Request) {
	role, err := strconv.ParseUint(r.PathValue("role"), 10, 64)
	if err != nil {
		api.WriteBadRequest(w, "invalid role id")
		return
	}
	delay, err := s.core.GetMinimalExecutionDelayForRole(r.Context(), contracts.RoleID(role))
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	api.WriteJSON(w, map[string]int64{"delay_seconds": int64(delay / time.Second)})
}

func (s *server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	unlock, err := s.core.GetAccountLockTime(r.Context(), contracts.Address(r.PathValue("account")))
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	api.WriteJSON(w, map[string]int64{"unlock_time": unlock})
}

func (s *server) writeCoreError(w http.ResponseWriter, err error) {
	var unauthorized *gate.UnauthorizedError
	var tooShort *gate.TooShortExecutionDelayError
	switch {
	case errors.As(err, &unauthorized):
		api.WriteForbidden(w, err.Error())
	case errors.As(err, &tooShort):
		api.WriteBadRequest(w, err.Error())
	case errors.Is(err, gate.ErrLengthMismatch):
		api.WriteBadRequest(w, err.Error())
	case errors.Is(err, gate.ErrAlreadyInitialized):
		api.WriteConflict(w, err.Error())
	default:
		api.WriteInternal(w, err)
	}
}
