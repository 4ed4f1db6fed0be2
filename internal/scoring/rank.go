package scoring

import (
	"errors"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/truptisatsangi/robo-defi-advisor/internal/model"
)

// ErrEmptyCandidateSet is returned when there is nothing left to rank
var ErrEmptyCandidateSet = errors.New("empty candidate set: no pools available for selection")

// Rank orders the scored pools by total score, highest first, and assigns a
// 1-based ranking. Equal scores keep their input order. The input slice is not
// modified. The first element of the ordered result is returned as the optimal pool.
func Rank(pools []model.ScoredPool) (model.ScoredPool, []model.ScoredPool, error) {
	if len(pools) == 0 {
		return model.ScoredPool{}, nil, ErrEmptyCandidateSet
	}

	ordered := make([]model.ScoredPool, len(pools))
	copy(ordered, pools)

	sort.SliceStable(ordered, func(i, j int) bool {
		return greater(ordered[i].TotalScore, ordered[j].TotalScore)
	})

	for i := range ordered {
		ordered[i].Ranking = i + 1
		logrus.WithFields(logrus.Fields{
			"rank":  i + 1,
			"pool":  ordered[i].ID,
			"score": ordered[i].TotalScore,
		}).Debug("Ranked pool")
	}

	return ordered[0], ordered, nil
}

// greater orders NaN scores after every real score
func greater(a, b float64) bool {
	if math.IsNaN(b) {
		return !math.IsNaN(a)
	}
	return a > b
}

// Alternatives returns the ranked pools after the optimal one, capped so that
// the optimal pool plus alternatives never exceeds topN
func Alternatives(ordered []model.ScoredPool, topN int) []model.ScoredPool {
	if len(ordered) <= 1 || topN <= 1 {
		return []model.ScoredPool{}
	}
	end := topN
	if end > len(ordered) {
		end = len(ordered)
	}
	alts := make([]model.ScoredPool, end-1)
	copy(alts, ordered[1:end])
	return alts
}

// TopByAPY returns the n highest-APY pools, highest first. Equal APYs keep
// their input order and n <= 0 keeps every pool. The input slice is not modified.
func TopByAPY(pools []model.Pool, n int) []model.Pool {
	ordered := make([]model.Pool, len(pools))
	copy(ordered, pools)

	sort.SliceStable(ordered, func(i, j int) bool {
		return greater(ordered[i].APYValue(), ordered[j].APYValue())
	})

	if n > 0 && n < len(ordered) {
		ordered = ordered[:n]
	}
	return ordered
}
