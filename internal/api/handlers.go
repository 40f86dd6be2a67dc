package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chainproof-ledger/internal/auth"
	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/ledger"
)

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func signer(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	addr, ok := auth.SignerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing signer")
	}
	return addr, ok
}

func pathAddress(w http.ResponseWriter, r *http.Request, name string) (domain.Address, bool) {
	addr, err := domain.ParseAddress(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidAddress", fmt.Sprintf("%s: %v", name, err))
		return addr, false
	}
	return addr, true
}

// decodeSigned resolves the signer and decodes the body into v.
func decodeSigned(w http.ResponseWriter, r *http.Request, v any) (domain.Address, bool) {
	who, ok := signer(w, r)
	if !ok {
		return who, false
	}
	if v != nil {
		if err := decode(r, v); err != nil {
			writeError(w, http.StatusBadRequest, "InvalidPayload", err.Error())
			return who, false
		}
	}
	return who, true
}

type tokenRequest struct {
	Mint     domain.Address `json:"mint"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	IpfsHash string         `json:"ipfsHash"`
}

func (t tokenRequest) fields() ledger.TokenFields {
	return ledger.TokenFields{Name: t.Name, Symbol: t.Symbol, IpfsHash: t.IpfsHash}
}

func (s *Server) registerToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	who, ok := decodeSigned(w, r, &req)
	if !ok {
		return
	}
	entry, err := s.engine.RegisterToken(r.Context(), who, req.Mint, req.fields())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) updateTokenEntry(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathAddress(w, r, "mint")
	if !ok {
		return
	}
	var req tokenRequest
	who, ok := decodeSigned(w, r, &req)
	if !ok {
		return
	}
	entry, err := s.engine.UpdateTokenEntry(r.Context(), who, mint, req.fields())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) getTokenEntry(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathAddress(w, r, "mint")
	if !ok {
		return
	}
	entry, err := s.engine.GetTokenEntry(r.Context(), mint)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type profileRequest struct {
	Username     string  `json:"username"`
	ReferralCode *string `json:"referralCode,omitempty"`
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	who, ok := decodeSigned(w, r, &req)
	if !ok {
		return
	}
	profile, err := s.engine.CreateProfile(r.Context(), who, req.Username, req.ReferralCode)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	who, ok := decodeSigned(w, r, &req)
	if !ok {
		return
	}
	profile, err := s.engine.UpdateProfile(r.Context(), who, req.Username)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	wallet, ok := pathAddress(w, r, "wallet")
	if !ok {
		return
	}
	profile, err := s.engine.GetProfile(r.Context(), wallet)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) initializeDeveloperRegistry(w http.ResponseWriter, r *http.Request) {
	who, ok := decodeSigned(w, r, nil)
	if !ok {
		return
	}
	reg, err := s.engine.InitializeDeveloperRegistry(r.Context(), who)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (s *Server) registerDeveloper(w http.ResponseWriter, r *http.Request) {
	who, ok := decodeSigned(w, r, nil)
	if !ok {
		return
	}
	reg, err := s.engine.RegisterDeveloper(r.Context(), who)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (s *Server) getDeveloperRegistry(w http.ResponseWriter, r *http.Request) {
	reg, err := s.engine.GetDeveloperRegistry(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

type projectRequest struct {
	ProjectMint domain.Address `json:"projectMint"`
}

func (s *Server) initializeProjectStakes(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	who, ok := decodeSigned(w, r, &req)
	if !ok {
		return
	}
	ps, err := s.engine.InitializeProjectStakes(r.Context(), who, req.ProjectMint)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ps)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.engine.ListProjects(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

type projectView struct {
	*domain.ProjectStakes
	VaultBalance uint64 `json:"vaultBalance"`
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathAddress(w, r, "mint")
	if !ok {
		return
	}
	ps, err := s.engine.GetProjectStakes(r.Context(), mint)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	vault, err := s.engine.VaultBalance(r.Context(), mint)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectView{ProjectStakes: ps, VaultBalance: vault})
}

type stakeRequest struct {
	ProjectMint domain.Address `json:"projectMint"`
	Amount      uint64         `json:"amount"`
}

func (s *Server) stake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	who, ok := decodeSigned(w, r, &req)
	if !ok {
		return
	}
	receipt, err := s.engine.Stake(r.Context(), who, req.ProjectMint, req.Amount)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) requestUnstake(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	who, ok := decodeSigned(w, r, &req)
	if !ok {
		return
	}
	stake, err := s.engine.RequestUnstake(r.Context(), who, req.ProjectMint)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stake)
}

func (s *Server) completeUnstake(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	who, ok := decodeSigned(w, r, &req)
	if !ok {
		return
	}
	receipt, err := s.engine.CompleteUnstake(r.Context(), who, req.ProjectMint)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) getUserStake(w http.ResponseWriter, r *http.Request) {
	wallet, ok := pathAddress(w, r, "wallet")
	if !ok {
		return
	}
	mint, ok := pathAddress(w, r, "mint")
	if !ok {
		return
	}
	view, err := s.engine.GetUserStake(r.Context(), wallet, mint)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) initializeRewardPool(w http.ResponseWriter, r *http.Request) {
	who, ok := decodeSigned(w, r, nil)
	if !ok {
		return
	}
	pool, err := s.engine.InitializeRewardPool(r.Context(), who)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pool)
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	who, ok := decodeSigned(w, r, &req)
	if !ok {
		return
	}
	pool, err := s.engine.Deposit(r.Context(), who, req.Amount)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) distribute(w http.ResponseWriter, r *http.Request) {
	who, ok := decodeSigned(w, r, nil)
	if !ok {
		return
	}
	dist, err := s.engine.Distribute(r.Context(), who)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dist)
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.GetRewardPool(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type balanceView struct {
	Owner        domain.Address `json:"owner"`
	TokenAccount domain.Address `json:"tokenAccount"`
	Balance      uint64         `json:"balance"`
}

func (s *Server) openTokenAccount(w http.ResponseWriter, r *http.Request) {
	who, ok := decodeSigned(w, r, nil)
	if !ok {
		return
	}
	addr, err := s.engine.OpenTokenAccount(r.Context(), who)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, balanceView{Owner: who, TokenAccount: addr})
}

func (s *Server) faucetMint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner  *domain.Address `json:"owner,omitempty"`
		Amount uint64          `json:"amount"`
	}
	who, ok := decodeSigned(w, r, &req)
	if !ok {
		return
	}
	if s.minter != nil && who != *s.minter {
		s.writeFailure(w, r, ledger.ErrUnauthorized)
		return
	}
	owner := who
	if req.Owner != nil {
		owner = *req.Owner
	}
	balance, err := s.engine.Faucet(r.Context(), owner, req.Amount)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceView{Owner: owner, TokenAccount: s.engine.TokenAccount(owner), Balance: balance})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	owner, ok := pathAddress(w, r, "owner")
	if !ok {
		return
	}
	balance, err := s.engine.Balance(r.Context(), owner)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceView{Owner: owner, TokenAccount: s.engine.TokenAccount(owner), Balance: balance})
}

// listEvents serves ?subject=<address> or ?from=<unix>&to=<unix>.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if subject := q.Get("subject"); subject != "" {
		if _, err := domain.ParseAddress(subject); err != nil {
			writeError(w, http.StatusBadRequest, "InvalidAddress", err.Error())
			return
		}
		events, err := s.events.GetBySubject(r.Context(), subject)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
		return
	}

	from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
	to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
	if err1 != nil || err2 != nil || from > to {
		writeError(w, http.StatusBadRequest, "InvalidQuery", "need subject, or from and to as unix seconds with from <= to")
		return
	}
	events, err := s.events.GetByTimeRange(r.Context(), from, to)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	evt, err := s.events.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}
