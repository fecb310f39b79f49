package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus tracks a bet from acceptance to settlement.
type BetStatus string

const (
	BetPending BetStatus = "PENDING"
	BetWin     BetStatus = "WIN"
	BetLoss    BetStatus = "LOSS"
)

// Bet is an accepted wager. Odds, Line, ScoreAtPlacement and CardsAtPlacement
// are frozen at acceptance and never re-read from the market.
type Bet struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	MatchID          int64           `json:"match_id"`
	MarketID         string          `json:"market_id"`
	Kind             MarketKind      `json:"kind"`
	Selection        Selection       `json:"selection"`
	Stake            decimal.Decimal `json:"stake"`
	Odds             decimal.Decimal `json:"odds"`
	Line             decimal.Decimal `json:"line,omitzero"`
	ScoreAtPlacement string          `json:"score_at_placement"`
	CardsAtPlacement int             `json:"cards_at_placement"`
	WindowEnd        *int            `json:"window_end"`
	Period           Period          `json:"period"`
	Status           BetStatus       `json:"status"`
	Payout           decimal.Decimal `json:"payout"`
	PlacedAt         time.Time       `json:"placed_at"`
	SettledAt        *time.Time      `json:"settled_at,omitempty"`
}

// PlaceBetRequest is raised by the transport layer on user action.
type PlaceBetRequest struct {
	UserID    string          `json:"user_id"`
	MatchID   int64           `json:"match_id"`
	MarketID  string          `json:"market_id"`
	Selection Selection       `json:"selection"`
	Stake     decimal.Decimal `json:"stake"`
}

// NormalizeSelection accepts the mixed-case spellings clients send ("Home",
// "yes") and returns the canonical selection.
func NormalizeSelection(s string) Selection {
	return Selection(strings.ToUpper(strings.TrimSpace(s)))
}

// BetAccepted is the synchronous success result of a placement.
type BetAccepted struct {
	BetID      string          `json:"bet_id"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Bet        Bet             `json:"bet"`
}

// RejectReason is the typed cause of a refused placement.
type RejectReason string

const (
	RejectMarketNotFound      RejectReason = "MARKET_NOT_FOUND"
	RejectMarketClosed        RejectReason = "MARKET_CLOSED"
	RejectMatchNotLive        RejectReason = "MATCH_NOT_LIVE"
	RejectWindowClosed        RejectReason = "WINDOW_CLOSED"
	RejectInvalidSelection    RejectReason = "INVALID_SELECTION"
	RejectInvalidStake        RejectReason = "INVALID_STAKE"
	RejectInsufficientBalance RejectReason = "INSUFFICIENT_BALANCE"
	RejectRateLimited         RejectReason = "RATE_LIMITED"
)

// BetRejected is the synchronous failure result of a placement.
type BetRejected struct {
	Reason RejectReason `json:"reason"`
	Detail string       `json:"detail,omitempty"`
}

// RejectionError carries a BetRejected through error returns. It matches
// ErrBetRejected under errors.Is.
type RejectionError struct {
	BetRejected
}

// Reject builds a RejectionError.
func Reject(reason RejectReason, format string, args ...any) *RejectionError {
	return &RejectionError{BetRejected{Reason: reason, Detail: fmt.Sprintf(format, args...)}}
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return "bet rejected: " + string(e.Reason)
	}
	return "bet rejected: " + string(e.Reason) + ": " + e.Detail
}

// Is lets errors.Is(err, ErrBetRejected) match every rejection.
func (e *RejectionError) Is(target error) bool { return target == ErrBetRejected }

// BetSettled is raised once per bet upon settlement.
type BetSettled struct {
	Bet        Bet             `json:"bet"`
	Payout     decimal.Decimal `json:"payout"`
	NewBalance decimal.Decimal `json:"new_balance"`
	FinalScore string          `json:"final_score"`
}

// Account is a user's balance.
type Account struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

// Quote is everything the ledger needs to validate and price a placement,
// captured under the match's lock.
type Quote struct {
	Market Market
	Clock  MatchClock
	Score  Score
	Cards  int
}

// SettlementSnapshot is the authoritative per-match state handed to settlement.
type SettlementSnapshot struct {
	Clock MatchClock
	Score Score
	Cards int
}
