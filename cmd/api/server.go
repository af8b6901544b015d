package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"claimledger/account"
	"claimledger/admin"
	"claimledger/dispute"
	"claimledger/escrow"
	"claimledger/fingerprint"
	"claimledger/identity"
	"claimledger/oracle"
	"claimledger/verification"
	"claimledger/work"
)

type accountService interface {
	Register(ctx context.Context, req account.RegisterRequest) (*account.Account, error)
	Login(ctx context.Context, req account.LoginRequest) (account.LoginResult, error)
	GetByID(ctx context.Context, accountID string) (*account.Account, error)
	VerifyToken(token string) (string, account.Role, error)
}

type identityService interface {
	Register(ctx context.Context, accountID string, handle fingerprint.Handle) (identity.Record, error)
	Get(ctx context.Context, accountID string) (identity.Record, error)
}

type workService interface {
	Register(ctx context.Context, params work.CreateParams) (work.Work, error)
	GetByID(ctx context.Context, id int64) (work.Work, error)
	ListByOwner(ctx context.Context, ownerAccount string) ([]work.Work, error)
}

type verificationService interface {
	Submit(ctx context.Context, requester string, workID int64, candidate uint64, deposit int64) (uuid.UUID, error)
	ClaimTimeout(ctx context.Context, caller string, requestID uuid.UUID) (int64, error)
}

type disputeService interface {
	File(ctx context.Context, challenger string, workID int64, challengerFP uint64, deposit int64) (int, error)
	RequestResolution(ctx context.Context, caller string, workID int64, idx int) (uuid.UUID, error)
	ClaimTimeout(ctx context.Context, caller string, workID int64, idx int) (int64, error)
}

type escrowService interface {
	Withdraw(ctx context.Context, accountID string) (int64, error)
}

type balanceReader interface {
	Balance(ctx context.Context, accountID string) (int64, error)
}

type adminService interface {
	Platform(ctx context.Context) (admin.Platform, error)
	SetPaused(ctx context.Context, paused bool) error
	SetRegistrationFee(ctx context.Context, fee int64) error
	WithdrawFees(ctx context.Context, toAccount string) (int64, error)
}

type callbackDispatcher interface {
	Dispatch(ctx context.Context, requestID uuid.UUID, cleartexts, proof []byte) error
}

// Server carries the HTTP surface over the ledger services. Fingerprint
// values arrive as plaintext integers and are sealed here, at the edge;
// everything past the handlers works on opaque handles.
type Server struct {
	accountService      accountService
	identityService     identityService
	workService         workService
	verificationService verificationService
	disputeService      disputeService
	escrowService       escrowService
	balances            balanceReader
	adminService        adminService
	dispatcher          callbackDispatcher
	encryptor           fingerprint.Encryptor
	fingerprintBits     int
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/register", s.handleRegister)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/me", s.handleMe)
	mux.HandleFunc("/api/identities", s.handleRegisterIdentity)
	mux.HandleFunc("/api/identities/", s.handleIdentity)
	mux.HandleFunc("/api/works", s.handleWorks)
	mux.HandleFunc("/api/works/", s.handleWork)
	mux.HandleFunc("/api/verifications", s.handleSubmitVerification)
	mux.HandleFunc("/api/verifications/", s.handleVerificationTimeout)
	mux.HandleFunc("/api/disputes", s.handleFileDispute)
	mux.HandleFunc("/api/disputes/resolve", s.handleRequestResolution)
	mux.HandleFunc("/api/disputes/timeout", s.handleDisputeTimeout)
	mux.HandleFunc("/api/escrow/balance", s.handleBalance)
	mux.HandleFunc("/api/escrow/withdraw", s.handleWithdraw)
	mux.HandleFunc("/api/oracle/callback", s.handleOracleCallback)
	mux.HandleFunc("/api/admin/pause", s.handleSetPaused)
	mux.HandleFunc("/api/admin/fee", s.handleSetFee)
	mux.HandleFunc("/api/admin/fees/withdraw", s.handleWithdrawFees)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps service sentinels to HTTP statuses. Unknown errors are
// internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, admin.ErrPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, work.ErrNotFound),
		errors.Is(err, account.ErrNotFound),
		errors.Is(err, verification.ErrWorkNotFound),
		errors.Is(err, verification.ErrRequestNotFound),
		errors.Is(err, dispute.ErrWorkNotFound),
		errors.Is(err, dispute.ErrInvalidDispute),
		errors.Is(err, oracle.ErrUnknownRequest),
		errors.Is(err, identity.ErrNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, verification.ErrNotRequester),
		errors.Is(err, dispute.ErrNotAuthorized),
		errors.Is(err, dispute.ErrNotChallenger):
		return http.StatusForbidden
	case errors.Is(err, verification.ErrAlreadyFinalized),
		errors.Is(err, verification.ErrTimeoutNotReached),
		errors.Is(err, dispute.ErrAlreadyResolved),
		errors.Is(err, dispute.ErrAlreadyFinalized),
		errors.Is(err, dispute.ErrResolutionNotRequested),
		errors.Is(err, dispute.ErrTimeoutNotReached),
		errors.Is(err, identity.ErrAlreadyRegistered),
		errors.Is(err, escrow.ErrNoBalance),
		errors.Is(err, escrow.ErrReentrantCall),
		errors.Is(err, oracle.ErrAlreadyFinalized),
		errors.Is(err, dispute.ErrTooManyDisputes):
		return http.StatusConflict
	case errors.Is(err, oracle.ErrUntrustedCallback):
		return http.StatusUnauthorized
	case errors.Is(err, verification.ErrInsufficientDeposit),
		errors.Is(err, verification.ErrInvalidFingerprint),
		errors.Is(err, dispute.ErrInsufficientDeposit),
		errors.Is(err, dispute.ErrInvalidFingerprint),
		errors.Is(err, dispute.ErrSelfDispute),
		errors.Is(err, dispute.ErrNotRegistered),
		errors.Is(err, work.ErrBadTitle),
		errors.Is(err, work.ErrBadCategory),
		errors.Is(err, work.ErrTrivialFingerprint),
		errors.Is(err, work.ErrInsufficientFee),
		errors.Is(err, fingerprint.ErrTrivialHandle):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func serviceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// authenticate extracts the bearer token and returns the caller's account
// id and role.
func (s *Server) authenticate(r *http.Request) (string, account.Role, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", "", errors.New("missing bearer token")
	}
	return s.accountService.VerifyToken(token)
}

func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (string, account.Role, bool) {
	accountID, role, err := s.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return "", "", false
	}
	return accountID, role, true
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID, role, ok := s.requireAuth(w, r)
	if !ok {
		return "", false
	}
	if role != account.RoleAdmin {
		writeError(w, http.StatusForbidden, "admin role required")
		return "", false
	}
	return accountID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

// fingerprintValue resolves the fingerprint for a request. Callers either
// send the raw content (base64), which is digested down to the configured
// width here, or a precomputed fingerprint value.
func (s *Server) fingerprintValue(w http.ResponseWriter, content string, explicit uint64) (uint64, bool) {
	if content == "" {
		return explicit, true
	}
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid content encoding")
		return 0, false
	}
	return fingerprint.Digest(raw, s.fingerprintBits), true
}

type accountResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	CreatedAt   string `json:"created_at"`
}

func accountToResponse(a *account.Account) accountResponse {
	return accountResponse{
		ID:          a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Role:        string(a.Role),
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req account.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := s.accountService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, account.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			serviceError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, accountToResponse(created))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req account.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.accountService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":   result.Token,
		"account": accountToResponse(&result.Account),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	accountID, _, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	acct, err := s.accountService.GetByID(r.Context(), accountID)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountToResponse(acct))
}

type identityResponse struct {
	AccountID     string `json:"account_id"`
	WorkCount     int    `json:"work_count"`
	TotalDisputes int    `json:"total_disputes"`
	WonDisputes   int    `json:"won_disputes"`
	RegisteredAt  string `json:"registered_at"`
}

func identityToResponse(rec identity.Record) identityResponse {
	return identityResponse{
		AccountID:     rec.AccountID,
		WorkCount:     rec.WorkCount,
		TotalDisputes: rec.TotalDisputes,
		WonDisputes:   rec.WonDisputes,
		RegisteredAt:  rec.RegisteredAt.Format(time.RFC3339),
	}
}

func (s *Server) handleRegisterIdentity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	accountID, _, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req struct {
		Identity uint64 `json:"identity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Identity == 0 {
		writeError(w, http.StatusBadRequest, "identity value must be non-zero")
		return
	}
	handle, err := s.encryptor.Seal(req.Identity)
	if err != nil {
		serviceError(w, err)
		return
	}
	rec, err := s.identityService.Register(r.Context(), accountID, handle)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, identityToResponse(rec))
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	accountID := strings.TrimPrefix(r.URL.Path, "/api/identities/")
	if accountID == "" || strings.Contains(accountID, "/") {
		writeError(w, http.StatusBadRequest, "invalid identity path")
		return
	}
	rec, err := s.identityService.Get(r.Context(), accountID)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, identityToResponse(rec))
}

type workResponse struct {
	ID           int64  `json:"id"`
	OwnerAccount string `json:"owner_account"`
	Title        string `json:"title"`
	Category     string `json:"category"`
	FeePaid      int64  `json:"fee_paid"`
	Verified     bool   `json:"verified"`
	Disputed     bool   `json:"disputed"`
	DisputeCount int    `json:"dispute_count"`
	CreatedAt    string `json:"created_at"`
}

func workToResponse(wk work.Work) workResponse {
	return workResponse{
		ID:           wk.ID,
		OwnerAccount: wk.OwnerAccount,
		Title:        wk.Title,
		Category:     wk.Category,
		FeePaid:      wk.FeePaid,
		Verified:     wk.Verified,
		Disputed:     wk.Disputed,
		DisputeCount: wk.DisputeCount,
		CreatedAt:    wk.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleWorks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleRegisterWork(w, r)
	case http.MethodGet:
		s.handleListWorks(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleRegisterWork(w http.ResponseWriter, r *http.Request) {
	accountID, _, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req struct {
		Fingerprint uint64 `json:"fingerprint"`
		Content     string `json:"content"`
		Title       string `json:"title"`
		Category    string `json:"category"`
		Fee         int64  `json:"fee"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	value, ok := s.fingerprintValue(w, req.Content, req.Fingerprint)
	if !ok {
		return
	}
	if value == 0 {
		writeError(w, http.StatusBadRequest, "fingerprint must be non-zero")
		return
	}
	handle, err := s.encryptor.Seal(value)
	if err != nil {
		serviceError(w, err)
		return
	}
	created, err := s.workService.Register(r.Context(), work.CreateParams{
		OwnerAccount: accountID,
		Fingerprint:  handle,
		Title:        req.Title,
		Category:     req.Category,
		Fee:          req.Fee,
	})
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, workToResponse(created))
}

func (s *Server) handleListWorks(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}
	works, err := s.workService.ListByOwner(r.Context(), owner)
	if err != nil {
		serviceError(w, err)
		return
	}
	items := make([]workResponse, 0, len(works))
	for _, wk := range works {
		items = append(items, workToResponse(wk))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleWork(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/api/works/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid work id")
		return
	}
	wk, err := s.workService.GetByID(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workToResponse(wk))
}

func (s *Server) handleSubmitVerification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	accountID, _, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req struct {
		WorkID      int64  `json:"work_id"`
		Fingerprint uint64 `json:"fingerprint"`
		Content     string `json:"content"`
		Deposit     int64  `json:"deposit"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	value, ok := s.fingerprintValue(w, req.Content, req.Fingerprint)
	if !ok {
		return
	}
	requestID, err := s.verificationService.Submit(r.Context(), accountID, req.WorkID, value, req.Deposit)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"request_id": requestID.String()})
}

func (s *Server) handleVerificationTimeout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	accountID, _, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/api/verifications/")
	raw, found := strings.CutSuffix(raw, "/timeout")
	if !found {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	requestID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	amount, err := s.verificationService.ClaimTimeout(r.Context(), accountID, requestID)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"refunded": amount})
}

func (s *Server) handleFileDispute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	accountID, _, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req struct {
		WorkID      int64  `json:"work_id"`
		Fingerprint uint64 `json:"fingerprint"`
		Content     string `json:"content"`
		Deposit     int64  `json:"deposit"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	value, ok := s.fingerprintValue(w, req.Content, req.Fingerprint)
	if !ok {
		return
	}
	idx, err := s.disputeService.File(r.Context(), accountID, req.WorkID, value, req.Deposit)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"work_id":    req.WorkID,
		"dispute_id": idx,
	})
}

func (s *Server) handleRequestResolution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	accountID, _, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req struct {
		WorkID    int64 `json:"work_id"`
		DisputeID int   `json:"dispute_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	requestID, err := s.disputeService.RequestResolution(r.Context(), accountID, req.WorkID, req.DisputeID)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"request_id": requestID.String()})
}

func (s *Server) handleDisputeTimeout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	accountID, _, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req struct {
		WorkID    int64 `json:"work_id"`
		DisputeID int   `json:"dispute_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := s.disputeService.ClaimTimeout(r.Context(), accountID, req.WorkID, req.DisputeID)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"refunded": amount})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	accountID, _, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	amount, err := s.balances.Balance(r.Context(), accountID)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": amount})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	accountID, _, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	amount, err := s.escrowService.Withdraw(r.Context(), accountID)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"withdrawn": amount})
}

// handleOracleCallback receives the oracle's answer. Authenticity is the
// dispatcher's first check; an unauthenticated payload never reaches a
// state machine.
func (s *Server) handleOracleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		RequestID  string `json:"request_id"`
		Cleartexts string `json:"cleartexts"`
		Proof      string `json:"proof"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	requestID, err := uuid.Parse(req.RequestID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	cleartexts, err := base64.StdEncoding.DecodeString(req.Cleartexts)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cleartexts encoding")
		return
	}
	proof, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proof encoding")
		return
	}
	if err := s.dispatcher.Dispatch(r.Context(), requestID, cleartexts, proof); err != nil {
		serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	var req struct {
		Paused bool `json:"paused"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.adminService.SetPaused(r.Context(), req.Paused); err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		platform, err := s.adminService.Platform(r.Context())
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"registration_fee": platform.RegistrationFee})
	case http.MethodPost:
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		var req struct {
			Fee int64 `json:"fee"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if err := s.adminService.SetRegistrationFee(r.Context(), req.Fee); err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"registration_fee": req.Fee})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	accountID, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	amount, err := s.adminService.WithdrawFees(r.Context(), accountID)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"withdrawn": amount})
}
