package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fandreams/fancoin/internal/app/payments"
	"github.com/fandreams/fancoin/internal/app/vesting"
	"github.com/fandreams/fancoin/internal/domain"
)

// ─── Wallet ─────────────────────────────────────────────────────────────────

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.ledger.Wallet(chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":            wallet.UserID,
		"balance":            wallet.Balance,
		"withdrawable":       wallet.Withdrawable(),
		"locked_bonus":       wallet.LockedBonus,
		"withdrawable_bonus": wallet.WithdrawableBonus,
		"total_earned":       wallet.TotalEarned,
		"total_spent":        wallet.TotalSpent,
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.ledger.History(chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": entries,
		"count":        len(entries),
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID       string `json:"user_id"`
		WithdrawalID string `json:"withdrawal_id"`
		Amount       int64  `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	applied, err := s.ledger.Withdraw(req.UserID, req.WithdrawalID, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if applied.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, applied)
}

// ─── Payments ───────────────────────────────────────────────────────────────

func (s *Server) handlePaymentCompleted(w http.ResponseWriter, r *http.Request) {
	var p payments.Payment
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := s.payments.OnPaymentCompleted(p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (s *Server) handleTip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromUserID  string `json:"from_user_id"`
		ToCreatorID string `json:"to_creator_id"`
		Amount      int64  `json:"amount"`
		ReferenceID string `json:"reference_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := s.payments.OnCoinTip(req.FromUserID, req.ToCreatorID, req.Amount, req.ReferenceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// ─── Bonuses ────────────────────────────────────────────────────────────────

func (s *Server) handleGrantBonus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID           string  `json:"user_id"`
		Type             string  `json:"type"`
		Amount           int64   `json:"amount"`
		VestingRule      string  `json:"vesting_rule"`
		VestingRate      float64 `json:"vesting_rate,omitempty"`
		VestingUnlockAt  string  `json:"vesting_unlock_at,omitempty"`
		VestingCondition string  `json:"vesting_condition,omitempty"`
		ReferenceID      string  `json:"reference_id,omitempty"`
		Description      string  `json:"description,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	grantReq := vesting.GrantRequest{
		UserID:           req.UserID,
		Type:             domain.GrantType(req.Type),
		Amount:           req.Amount,
		VestingRule:      domain.VestingRule(req.VestingRule),
		VestingRate:      req.VestingRate,
		VestingCondition: req.VestingCondition,
		ReferenceID:      req.ReferenceID,
		Description:      req.Description,
	}
	if req.VestingUnlockAt != "" {
		t, err := time.Parse(time.RFC3339, req.VestingUnlockAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid vesting_unlock_at: "+err.Error())
			return
		}
		grantReq.VestingUnlockAt = &t
	}
	grant, err := s.vesting.Grant(grantReq)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

func (s *Server) handleListBonuses(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter required")
		return
	}
	grants, err := s.vesting.Grants(userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"grants": grants,
		"count":  len(grants),
	})
}

func (s *Server) handleCompleteCondition(w http.ResponseWriter, r *http.Request) {
	grant, err := s.vesting.CompleteCondition(chi.URLParam(r, "grantID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

// ─── Commitments ────────────────────────────────────────────────────────────

func (s *Server) handleCreateCommitment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FanID        string `json:"fan_id"`
		CreatorID    string `json:"creator_id"`
		Amount       int64  `json:"amount"`
		DurationDays int    `json:"duration_days"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	c, err := s.commitments.Create(req.FanID, req.CreatorID, req.Amount, req.DurationDays)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListCommitments(w http.ResponseWriter, r *http.Request) {
	fanID := r.URL.Query().Get("fan_id")
	if fanID == "" {
		writeError(w, http.StatusBadRequest, "fan_id query parameter required")
		return
	}
	list, err := s.commitments.List(fanID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"commitments": list,
		"count":       len(list),
	})
}

func (s *Server) handleWithdrawCommitment(w http.ResponseWriter, r *http.Request) {
	c, err := s.commitments.WithdrawEarly(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ─── Affiliate ──────────────────────────────────────────────────────────────

func (s *Server) handleConfigureProgram(w http.ResponseWriter, r *http.Request) {
	creatorID := chi.URLParam(r, "creatorID")
	var req struct {
		IsActive bool `json:"is_active"`
		Levels   []struct {
			Level             int     `json:"level"`
			CommissionPercent float64 `json:"commission_percent"`
		} `json:"levels"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	levels := make([]domain.AffiliateLevel, 0, len(req.Levels))
	for _, l := range req.Levels {
		levels = append(levels, domain.AffiliateLevel{
			CreatorID:         creatorID,
			Level:             l.Level,
			CommissionPercent: l.CommissionPercent,
		})
	}
	program := domain.AffiliateProgram{
		CreatorID: creatorID,
		IsActive:  req.IsActive,
		MaxLevels: len(levels),
	}
	if err := s.affiliate.ConfigureProgram(program, levels); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, program)
}

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AffiliateUserID string `json:"affiliate_user_id"`
		CreatorID       string `json:"creator_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	link, err := s.affiliate.CreateLink(req.AffiliateUserID, req.CreatorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (s *Server) handleTrackClick(w http.ResponseWriter, r *http.Request) {
	if err := s.affiliate.TrackClick(chi.URLParam(r, "code")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegisterReferral(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReferredUserID string `json:"referred_user_id"`
		Code           string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	ref, err := s.affiliate.RegisterReferral(req.ReferredUserID, req.Code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

func (s *Server) handleListCommissions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.affiliate.Commissions(chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"commissions": list,
		"count":       len(list),
	})
}

// ─── Guilds ─────────────────────────────────────────────────────────────────

func (s *Server) handleCreateGuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name                string  `json:"name"`
		Slug                string  `json:"slug"`
		LeaderID            string  `json:"leader_id"`
		ContributionPercent float64 `json:"contribution_percent"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	g, err := s.guild.Create(req.Name, req.Slug, req.LeaderID, req.ContributionPercent)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleJoinGuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.guild.Join(chi.URLParam(r, "guildID"), req.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"guild_id": chi.URLParam(r, "guildID"),
		"user_id":  req.UserID,
		"status":   "joined",
	})
}

func (s *Server) handleTreasuryHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := s.guild.TreasuryHistory(chi.URLParam(r, "guildID"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": history,
		"count":        len(history),
	})
}
