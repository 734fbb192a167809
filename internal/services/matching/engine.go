// Package matching pairs imported bank transactions with remote ledger
// transactions.
//
// Matching runs in passes over the day offset between the two dates: every
// imported transaction gets its chance at a same-day candidate before any
// transaction is allowed to take a candidate one day away, and so on up to
// the window size. Within a pass, candidates must agree on the absolute
// amount (to the cent, with a 0.02 tolerance) and on the expected remote
// type. Description similarity and a bank reference hit only rank candidates
// that already passed those filters.
package matching

import (
	"math"
	"sort"
	"strings"
	"time"

	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

const (
	baseScore           = 100.0
	similarityThreshold = 50.0
	referenceBonus      = 50.0
)

// AmountTolerance is the largest absolute difference at which two amounts
// still count as equal.
var AmountTolerance = decimal.New(2, -2)

// Pair is one imported transaction claimed against one remote transaction.
type Pair struct {
	TransactionID uuid.UUID
	Remote        models.RemoteTransaction
	DayOffset     int
	Score         float64
	Confidence    models.Confidence
	// DisplayAmount is the remote amount in bank-style sign: expenses
	// negative, income positive, whatever the account class.
	DisplayAmount decimal.Decimal
}

// Result is the outcome of one matcher run.
type Result struct {
	Matches []Pair
	// Unclaimed keeps the remote transactions nobody took, in fetch order.
	Unclaimed []models.RemoteTransaction
}

// MatchedRemoteIDs returns the set of remote ids claimed in r.
func (r Result) MatchedRemoteIDs() map[string]bool {
	ids := make(map[string]bool, len(r.Matches))
	for _, m := range r.Matches {
		ids[m.Remote.RemoteID] = true
	}
	return ids
}

type prepared struct {
	tx       models.ImportedTransaction
	expected models.RemoteType
	absolute decimal.Decimal
}

// Match runs the multi-pass matcher. Imported transactions are visited in
// ascending (date, id) order within each pass and remote candidates in the
// order given; on equal scores the first candidate found is kept.
func Match(imported []models.ImportedTransaction, remote []models.RemoteTransaction, class models.AccountClass, windowDays int) Result {
	txs := make([]prepared, 0, len(imported))
	for _, tx := range imported {
		expected, absolute := ExpectedRemote(tx.Amount, class)
		txs = append(txs, prepared{tx: tx, expected: expected, absolute: absolute})
	}
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i].tx, txs[j].tx
		if !a.TransactionDate.Equal(b.TransactionDate) {
			return a.TransactionDate.Before(b.TransactionDate)
		}
		return a.ID.String() < b.ID.String()
	})

	claimed := make([]bool, len(remote))
	done := make(map[uuid.UUID]bool, len(txs))
	var result Result

	for offset := 0; offset <= windowDays; offset++ {
		for _, p := range txs {
			if done[p.tx.ID] {
				continue
			}

			best := -1
			bestScore := 0.0
			bestRef := false
			for i, rt := range remote {
				if claimed[i] {
					continue
				}
				if DayOffset(p.tx.TransactionDate, rt.Date) != offset {
					continue
				}
				if rt.Type != p.expected {
					continue
				}
				if rt.Amount.Abs().Sub(p.absolute).Abs().GreaterThan(AmountTolerance) {
					continue
				}
				score, refHit := scoreCandidate(p.tx, rt)
				if best < 0 || score > bestScore {
					best, bestScore, bestRef = i, score, refHit
				}
			}
			if best < 0 {
				continue
			}

			claimed[best] = true
			done[p.tx.ID] = true

			confidence := ConfidenceForOffset(offset)
			if bestRef {
				confidence = models.ConfidenceHigh
			}
			result.Matches = append(result.Matches, Pair{
				TransactionID: p.tx.ID,
				Remote:        remote[best],
				DayOffset:     offset,
				Score:         bestScore,
				Confidence:    confidence,
				DisplayAmount: DisplayAmount(remote[best]),
			})
		}
	}

	for i, rt := range remote {
		if !claimed[i] {
			result.Unclaimed = append(result.Unclaimed, rt)
		}
	}
	return result
}

// ExpectedRemote applies the account's sign convention. Bank accounts book
// expenses as negative amounts; credit cards book charges as positive ones.
func ExpectedRemote(amount decimal.Decimal, class models.AccountClass) (models.RemoteType, decimal.Decimal) {
	expense := amount.IsNegative()
	if class == models.AccountClassCreditCard {
		expense = amount.IsPositive()
	}
	if expense {
		return models.RemoteTypeExpense, amount.Abs()
	}
	return models.RemoteTypeIncome, amount.Abs()
}

// DisplayAmount redisplays a remote amount with bank-style sign.
func DisplayAmount(rt models.RemoteTransaction) decimal.Decimal {
	if rt.Type == models.RemoteTypeExpense {
		return rt.Amount.Abs().Neg()
	}
	return rt.Amount.Abs()
}

// ConfidenceForOffset maps a day offset to its confidence tier.
func ConfidenceForOffset(offset int) models.Confidence {
	switch {
	case offset == 0:
		return models.ConfidenceHigh
	case offset <= 2:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// DayOffset is the absolute number of calendar days between a and b.
func DayOffset(a, b time.Time) int {
	days := Day(a).Sub(Day(b)).Hours() / 24
	return int(math.Round(math.Abs(days)))
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func scoreCandidate(tx models.ImportedTransaction, rt models.RemoteTransaction) (float64, bool) {
	score := baseScore

	if sim := DescriptionSimilarity(tx.Description, rt.Description); sim > similarityThreshold {
		score += sim
	}

	refHit := false
	ref := normalizeText(tx.ReferenceNumber)
	if ref != "" && strings.Contains(normalizeText(rt.Reference), ref) {
		score += referenceBonus
		refHit = true
	}
	return score, refHit
}

// DescriptionSimilarity returns a 0-100 similarity percentage, or 0 when
// either side is empty.
func DescriptionSimilarity(a, b string) float64 {
	a, b = normalizeText(a), normalizeText(b)
	if a == "" || b == "" {
		return 0
	}
	return levenshtein.RatioForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions) * 100
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// DateRange returns the earliest and latest transaction dates of txs.
func DateRange(txs []models.ImportedTransaction) (from, to time.Time, ok bool) {
	for i, tx := range txs {
		d := Day(tx.TransactionDate)
		if i == 0 || d.Before(from) {
			from = d
		}
		if i == 0 || d.After(to) {
			to = d
		}
	}
	return from, to, len(txs) > 0
}

// Window pads a date range by windowDays on both sides.
func Window(from, to time.Time, windowDays int) (time.Time, time.Time) {
	return Day(from).AddDate(0, 0, -windowDays), Day(to).AddDate(0, 0, windowDays)
}

// WithinRange keeps the remote transactions dated inside [from, to]. Rows
// outside were only fetched as padding for offset matching.
func WithinRange(remote []models.RemoteTransaction, from, to time.Time) []models.RemoteTransaction {
	from, to = Day(from), Day(to)
	var out []models.RemoteTransaction
	for _, rt := range remote {
		d := Day(rt.Date)
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, rt)
	}
	return out
}
