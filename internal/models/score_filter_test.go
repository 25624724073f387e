package models

import (
	"testing"
	"time"
)

func rankedBeatmap() *Beatmap {
	return &Beatmap{
		ID:              "b1",
		Status:          StatusRanked,
		MaxCombo:        1000,
		DifficultyTotal: 5.5,
		ApprovedAt:      time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func filterScore() *Score {
	return &Score{
		ID:        1,
		BeatmapID: "b1",
		Mods:      ModHidden | ModHardRock,
		Count300:  900,
		Count100:  50,
		Count50:   0,
		CountMiss: 0,
		Combo:     980,
		CreatedAt: time.Date(2023, 3, 10, 0, 0, 0, 0, time.UTC),
		Beatmap:   rankedBeatmap(),
	}
}

func TestScoreFilter_EmptyMatchesEverything(t *testing.T) {
	f := &ScoreFilter{}
	if !f.Match(filterScore()) {
		t.Error("empty filter should match any score")
	}
}

func TestScoreFilter_MissingBeatmapNeverMatches(t *testing.T) {
	f := &ScoreFilter{}
	s := filterScore()
	s.Beatmap = nil
	if f.Match(s) {
		t.Error("score with missing beatmap must not match")
	}
}

func TestScoreFilter_BeatmapStatus(t *testing.T) {
	f := &ScoreFilter{AllowedBeatmapStatus: []BeatmapStatus{StatusRanked, StatusApproved}}
	s := filterScore()
	if !f.Match(s) {
		t.Error("ranked beatmap should pass status whitelist")
	}

	s.Beatmap.Status = StatusLoved
	if f.Match(s) {
		t.Error("loved beatmap should fail status whitelist")
	}
}

func TestScoreFilter_Mods(t *testing.T) {
	s := filterScore() // HDHR

	required := &ScoreFilter{RequiredMods: ModHidden}
	if !required.Match(s) {
		t.Error("HDHR score should satisfy required HD")
	}

	required.RequiredMods = ModFlashlight
	if required.Match(s) {
		t.Error("HDHR score should fail required FL")
	}

	disqualified := &ScoreFilter{DisqualifiedMods: ModHardRock}
	if disqualified.Match(s) {
		t.Error("HDHR score should be disqualified by HR exclusion")
	}
}

func TestScoreFilter_AccuracyRange(t *testing.T) {
	s := filterScore()
	acc := s.Accuracy()

	low := acc - 1
	high := acc + 1
	f := &ScoreFilter{LowestAccuracy: &low, HighestAccuracy: &high}
	if !f.Match(s) {
		t.Errorf("score accuracy %.2f should be within [%.2f, %.2f]", acc, low, high)
	}

	tight := acc + 0.01
	f = &ScoreFilter{LowestAccuracy: &tight}
	if f.Match(s) {
		t.Error("score below lowest accuracy should fail")
	}
}

func TestScoreFilter_DifficultyAndDates(t *testing.T) {
	s := filterScore()

	lo, hi := 5.0, 6.0
	f := &ScoreFilter{LowestDifficulty: &lo, HighestDifficulty: &hi}
	if !f.Match(s) {
		t.Error("5.5 star map should pass [5.0, 6.0] range")
	}

	hi = 5.4
	if f.Match(s) {
		t.Error("5.5 star map should fail upper bound 5.4")
	}

	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f = &ScoreFilter{OldestScoreDate: &cutoff}
	if f.Match(s) {
		t.Error("2023 score should fail oldest-score-date 2024")
	}
}

func TestScoreAccuracy(t *testing.T) {
	s := &Score{Count300: 100}
	if got := s.Accuracy(); got != 100 {
		t.Errorf("all-300 accuracy = %f, want 100", got)
	}

	empty := &Score{}
	if got := empty.Accuracy(); got != 0 {
		t.Errorf("empty score accuracy = %f, want 0", got)
	}
}

func TestModsString(t *testing.T) {
	if got := (ModHidden | ModDoubleTime).String(); got != "HDDT" {
		t.Errorf("Mods.String() = %q, want HDDT", got)
	}
	if got := ModNone.String(); got != "NM" {
		t.Errorf("ModNone.String() = %q, want NM", got)
	}
}
