package domain

import "sort"

const maxWinners = 3

// rankPlayers orders players by score descending. The sort is stable over
// the given registration order, so equal scores keep the order players
// were promoted from the lobby.
func rankPlayers(players []*Player) []RankingEntry {
	ranked := make([]*Player, len(players))
	copy(ranked, players)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	rankings := make([]RankingEntry, 0, len(ranked))
	for i, p := range ranked {
		rankings = append(rankings, RankingEntry{
			Place:    i + 1,
			PlayerID: p.ID,
			Wallet:   p.Wallet,
			Score:    p.Score,
		})
	}
	return rankings
}

// pickWinners takes the top min(3, N) rankings and computes each winner's
// reward share: proportional to score when the top group collected
// anything, an equal split otherwise. Returns the winners and the top
// group's combined score.
func pickWinners(rankings []RankingEntry) ([]WinnerEntry, int) {
	n := len(rankings)
	if n > maxWinners {
		n = maxWinners
	}
	if n == 0 {
		return nil, 0
	}

	total := 0
	for _, r := range rankings[:n] {
		total += r.Score
	}

	winners := make([]WinnerEntry, 0, n)
	for _, r := range rankings[:n] {
		share := 100.0 / float64(n)
		if total > 0 {
			share = float64(r.Score) / float64(total) * 100.0
		}
		winners = append(winners, WinnerEntry{
			Place:        r.Place,
			PlayerID:     r.PlayerID,
			Wallet:       r.Wallet,
			Score:        r.Score,
			SharePercent: share,
		})
	}
	return winners, total
}
