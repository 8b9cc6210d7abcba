package progress

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cppla/challengehub/models"
	"github.com/cppla/challengehub/services/cadence"
)

// Progress is the completion and eligibility verdict of one enrollment.
type Progress struct {
	EnrollmentID   uint   `json:"enrollment_id"`
	RequiredCount  int    `json:"required_count"`
	CompletedCount int    `json:"completed_count"`
	CompletionRate int    `json:"completion_rate"`
	CheckinCount   int    `json:"checkin_count"`
	FormatMatches  bool   `json:"format_matches"`
	IsEligible     bool   `json:"is_eligible"`
	Reason         string `json:"reason,omitempty"`
}

// Calculate derives progress from an enrollment's proofs and checkins. Inactive proofs are ignored.
func Calculate(ch *models.Challenge, proofs []models.Proof, checkins []models.Checkin) (Progress, error) {
	required, err := cadence.RequiredPeriods(ch)
	if err != nil {
		return Progress{}, err
	}

	periods := make(map[string]struct{}, len(proofs))
	formatMatches := true
	for _, p := range proofs {
		if !p.IsActive {
			continue
		}
		periods[p.PeriodKey] = struct{}{}
		if p.Type != ch.ProofType {
			formatMatches = false
		}
	}
	completed := len(periods)

	checkinPeriods := make(map[string]struct{}, len(checkins))
	for _, c := range checkins {
		checkinPeriods[c.PeriodKey] = struct{}{}
	}

	pr := Progress{
		RequiredCount:  required,
		CompletedCount: completed,
		CompletionRate: completionRate(completed, required),
		CheckinCount:   len(checkinPeriods),
		FormatMatches:  formatMatches,
	}

	var reasons []string
	if completed < required {
		reasons = append(reasons, fmt.Sprintf("completed %d/%d required submissions", completed, required))
	}
	if !formatMatches {
		reasons = append(reasons, "contains non-"+strings.ToLower(string(ch.ProofType))+" proofs")
	}
	pr.IsEligible = len(reasons) == 0
	pr.Reason = strings.Join(reasons, "; ")
	return pr, nil
}

func completionRate(completed, required int) int {
	if required <= 0 {
		return 0
	}
	rate := int(math.Round(float64(completed) / float64(required) * 100))
	if rate < 0 {
		return 0
	}
	if rate > 100 {
		return 100
	}
	return rate
}

// Entry is one leaderboard row.
type Entry struct {
	EnrollmentID   uint      `json:"enrollment_id"`
	UserID         uint      `json:"user_id"`
	JoinedAt       time.Time `json:"joined_at"`
	CompletionRate int       `json:"completion_rate"`
	CompletedCount int       `json:"completed_count"`
	IsEligible     bool      `json:"is_eligible"`
	Reason         string    `json:"reason,omitempty"`
	Rank           int       `json:"rank"`
}

// Rank orders entries by completion rate, then completed count, then join time, then enrollment id,
// and assigns ranks 1..N. The slice is sorted in place and returned.
func Rank(entries []Entry) []Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.CompletionRate != b.CompletionRate {
			return a.CompletionRate > b.CompletionRate
		}
		if a.CompletedCount != b.CompletedCount {
			return a.CompletedCount > b.CompletedCount
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.EnrollmentID < b.EnrollmentID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
