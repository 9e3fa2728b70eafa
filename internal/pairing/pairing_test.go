package pairing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/me/evalzoo/pkg/model"
)

func TestForVersion_NonPositive(t *testing.T) {
	for _, v := range []model.VersionID{0, -1, -70} {
		if got := ForVersion(v); len(got) != 0 {
			t.Errorf("ForVersion(%d) = %v, want empty", v, got)
		}
	}
}

func TestForVersion_Five(t *testing.T) {
	want := []model.Pair{{5, 4}, {5, 3}, {5, 2}, {5, 1}}
	if diff := cmp.Diff(want, ForVersion(5)); diff != "" {
		t.Errorf("ForVersion(5) mismatch (-want +got):\n%s", diff)
	}
}

func TestForVersion_Seventy(t *testing.T) {
	want := []model.Pair{
		{70, 69}, {70, 68}, {70, 67}, {70, 66},
		{70, 65}, {70, 55}, {70, 45}, {70, 35}, {70, 25}, {70, 15}, {70, 5},
	}
	got := ForVersion(70)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ForVersion(70) mismatch (-want +got):\n%s", diff)
	}
	for _, p := range got {
		if p[1] <= 0 {
			t.Errorf("non-positive opponent in %v", p)
		}
	}
}

func TestForVersion_FarBandBoundary(t *testing.T) {
	tests := []struct {
		v    model.VersionID
		want int
	}{
		{1, 0},
		{2, 1},
		{6, 5},   // 4 near + offset 5
		{16, 6},  // + offset 15
		{66, 11}, // every far offset fits
		{500, 11},
	}
	for _, tt := range tests {
		if got := len(ForVersion(tt.v)); got != tt.want {
			t.Errorf("len(ForVersion(%d)) = %d, want %d", tt.v, got, tt.want)
		}
	}
}

func TestTopPairs_Fifteen(t *testing.T) {
	ranked := make([]model.VersionID, 15)
	for i := range ranked {
		ranked[i] = model.VersionID(100 - i)
	}
	got := TopPairs(ranked)
	if len(got) != 40 {
		t.Fatalf("len(TopPairs) = %d, want 40", len(got))
	}
	k := 0
	for i := 0; i < 10; i++ {
		for j := i + 1; j <= i+4; j++ {
			want := model.Pair{ranked[i], ranked[j]}
			if got[k] != want {
				t.Errorf("pair %d = %v, want %v", k, got[k], want)
			}
			k++
		}
	}
}

func TestTopPairs_ShortTable(t *testing.T) {
	got := TopPairs([]model.VersionID{9, 7, 8})
	want := []model.Pair{{9, 7}, {9, 8}, {7, 8}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TopPairs mismatch (-want +got):\n%s", diff)
	}
	if got := TopPairs(nil); len(got) != 0 {
		t.Errorf("TopPairs(nil) = %v, want empty", got)
	}
}

type stubSuggester struct {
	pairs []model.Pair
	err   error
	got   model.VersionID
}

func (s *stubSuggester) Suggest(_ context.Context, ignoreBefore model.VersionID) ([]model.Pair, error) {
	s.got = ignoreBefore
	return s.pairs, s.err
}

func TestUncertain_FiltersOldAndSelfPairs(t *testing.T) {
	s := &stubSuggester{pairs: []model.Pair{{60, 55}, {49, 70}, {80, 80}, {51, 50}}}
	got, err := Uncertain(context.Background(), s, DefaultIgnoreBefore)
	if err != nil {
		t.Fatalf("Uncertain: %v", err)
	}
	if s.got != DefaultIgnoreBefore {
		t.Errorf("ignoreBefore passed = %d, want %d", s.got, DefaultIgnoreBefore)
	}
	want := []model.Pair{{60, 55}, {51, 50}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Uncertain mismatch (-want +got):\n%s", diff)
	}
}

func TestUncertain_PropagatesError(t *testing.T) {
	boom := errors.New("ratings db locked")
	_, err := Uncertain(context.Background(), &stubSuggester{err: boom}, 0)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}
