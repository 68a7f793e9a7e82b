package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"telegram-rp-bot/internal/model"
	"telegram-rp-bot/internal/quest"
)

// simulateDistribution mirrors CompleteQuest's payout: filter the
// roster by the level frozen at join, split the encounter pool evenly,
// and hand the remainder to the earliest joiners.
func simulateDistribution(q *model.Quest, roster []*model.QuestParticipant, monsters []*model.QuestMonster) []*model.QuestAward {
	total := quest.EncounterXP(monsters)

	var eligible []*model.QuestParticipant
	for _, p := range roster {
		if quest.LevelInBracket(p.StartingLevel, q.LevelBracket) {
			eligible = append(eligible, p)
		}
	}
	if total <= 0 || len(eligible) == 0 {
		return nil
	}

	shares := quest.SplitEvenly(total, len(eligible))
	awards := make([]*model.QuestAward, len(eligible))
	for i, p := range eligible {
		awards[i] = &model.QuestAward{
			CharacterID:   p.CharacterID,
			CharacterName: p.CharacterName,
			OwnerID:       p.OwnerID,
			Amount:        shares[i],
		}
	}
	return awards
}

func participant(id int64, level int, joined time.Time) *model.QuestParticipant {
	return &model.QuestParticipant{
		CharacterID:   id,
		StartingLevel: level,
		JoinedAt:      joined,
	}
}

func TestSimulateDistribution(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	q := &model.Quest{Name: "Goblin Warrens", LevelBracket: "1-4"}

	t.Run("even split with remainder to earliest joiners", func(t *testing.T) {
		roster := []*model.QuestParticipant{
			participant(1, 2, base),
			participant(2, 3, base.Add(time.Minute)),
			participant(3, 4, base.Add(2*time.Minute)),
		}
		// Five CR 1/2 monsters: 5 * 100 = 500 XP.
		monsters := []*model.QuestMonster{{CR: "1/2", Count: 5}}

		awards := simulateDistribution(q, roster, monsters)
		require.Len(t, awards, 3)
		assert.Equal(t, int64(167), awards[0].Amount)
		assert.Equal(t, int64(167), awards[1].Amount)
		assert.Equal(t, int64(166), awards[2].Amount)
	})

	t.Run("out-of-bracket joiner excluded", func(t *testing.T) {
		roster := []*model.QuestParticipant{
			participant(1, 2, base),
			participant(2, 9, base.Add(time.Minute)),
		}
		monsters := []*model.QuestMonster{{CR: "1", Count: 2}}

		awards := simulateDistribution(q, roster, monsters)
		require.Len(t, awards, 1)
		assert.Equal(t, int64(1), awards[0].CharacterID)
		assert.Equal(t, int64(400), awards[0].Amount)
	})

	t.Run("no monsters means no awards", func(t *testing.T) {
		roster := []*model.QuestParticipant{participant(1, 2, base)}
		assert.Nil(t, simulateDistribution(q, roster, nil))
	})

	t.Run("empty eligible roster means no awards", func(t *testing.T) {
		roster := []*model.QuestParticipant{participant(1, 20, base)}
		monsters := []*model.QuestMonster{{CR: "5", Count: 1}}
		assert.Nil(t, simulateDistribution(q, roster, monsters))
	})
}

// TestDistributionExactnessProperty checks that award totals always
// equal the encounter pool exactly when anyone is eligible, that no
// two shares differ by more than one point, and that larger shares go
// to earlier roster positions.
func TestDistributionExactnessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := &model.Quest{LevelBracket: "1-20"}
		n := rapid.IntRange(1, 12).Draw(t, "n")
		base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

		roster := make([]*model.QuestParticipant, n)
		for i := range roster {
			roster[i] = participant(int64(i+1), rapid.IntRange(1, 20).Draw(t, "level"), base.Add(time.Duration(i)*time.Minute))
		}

		crs := []string{"1/8", "1/4", "1/2", "1", "2", "5", "10"}
		m := rapid.IntRange(1, 6).Draw(t, "m")
		monsters := make([]*model.QuestMonster, m)
		for i := range monsters {
			monsters[i] = &model.QuestMonster{
				CR:    rapid.SampledFrom(crs).Draw(t, "cr"),
				Count: rapid.IntRange(1, 5).Draw(t, "count"),
			}
		}

		awards := simulateDistribution(q, roster, monsters)
		require.Len(t, awards, n)

		var sum int64
		for _, a := range awards {
			sum += a.Amount
		}
		assert.Equal(t, quest.EncounterXP(monsters), sum)

		for i := 1; i < len(awards); i++ {
			assert.LessOrEqual(t, awards[i].Amount, awards[i-1].Amount)
			assert.LessOrEqual(t, awards[i-1].Amount-awards[i].Amount, int64(1))
		}
	})
}

// TestEligibilityUsesFrozenLevelProperty checks that a participant's
// current XP never affects their share: only the snapshot taken at
// join time gates eligibility.
func TestEligibilityUsesFrozenLevelProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bracketMin := rapid.IntRange(1, 10).Draw(t, "bracketMin")
		bracketMax := rapid.IntRange(bracketMin, 20).Draw(t, "bracketMax")
		q := &model.Quest{LevelBracket: quest.Bracket{Min: bracketMin, Max: bracketMax}.String()}

		frozen := rapid.IntRange(1, 20).Draw(t, "frozen")
		p := participant(1, frozen, time.Now())
		// Simulate mid-quest leveling: starting XP is all that is
		// recorded, current state is irrelevant here.
		p.StartingXP = rapid.Int64Range(0, 500_000).Draw(t, "startingXP")

		monsters := []*model.QuestMonster{{CR: "1", Count: 1}}
		awards := simulateDistribution(q, []*model.QuestParticipant{p}, monsters)

		if frozen >= bracketMin && frozen <= bracketMax {
			require.Len(t, awards, 1)
			assert.Equal(t, int64(200), awards[0].Amount)
		} else {
			assert.Empty(t, awards)
		}
	})
}
