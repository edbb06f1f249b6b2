package ports

import (
	"math/rand/v2"
	"reflect"
	"testing"
)

func checkInvariants(t *testing.T, s *Set) {
	t.Helper()
	sum := 0
	for i, iv := range s.ivs {
		if iv.Start >= iv.End {
			t.Fatalf("interval %d is empty or inverted: %+v", i, iv)
		}
		if iv.Start == 0 {
			t.Fatalf("port 0 stored as member: %+v", iv)
		}
		if i > 0 && s.ivs[i-1].End >= iv.Start {
			t.Fatalf("intervals %d and %d overlap or touch: %+v %+v", i-1, i, s.ivs[i-1], iv)
		}
		sum += iv.Len()
	}
	if sum != s.Count() {
		t.Fatalf("Count() = %d, sum of intervals = %d", s.Count(), sum)
	}
}

func TestSetExample(t *testing.T) {
	var s Set
	s.Insert(2000, 2999)
	s.Insert(4000, 4999)
	checkInvariants(t, &s)
	if s.Count() != 2000 {
		t.Errorf("Count() = %d, want 2000", s.Count())
	}
	if s.Contains(3500) {
		t.Error("Contains(3500) = true, want false")
	}
	if !s.Contains(2000) || !s.Contains(4999) {
		t.Error("expected 2000 and 4999 to be members")
	}
	if got := s.Next(2999); got != 4000 {
		t.Errorf("Next(2999) = %d, want 4000", got)
	}

	s.Insert(3000, 3999)
	checkInvariants(t, &s)
	want := []Interval{{Start: 2000, End: 5000}}
	if got := s.Intervals(); !reflect.DeepEqual(got, want) {
		t.Errorf("Intervals() = %v, want %v", got, want)
	}
	if s.Count() != 3000 {
		t.Errorf("Count() = %d, want 3000", s.Count())
	}
	if got := s.Next(2999); got != 3000 {
		t.Errorf("Next(2999) = %d, want 3000", got)
	}
}

func TestSetInsert(t *testing.T) {
	type rng struct{ first, last uint16 }
	tests := []struct {
		name   string
		insert []rng
		want   []Interval
	}{
		{"single port", []rng{{80, 80}}, []Interval{{80, 81}}},
		{"disjoint sorted", []rng{{1, 2}, {10, 20}}, []Interval{{1, 3}, {10, 21}}},
		{"disjoint reversed", []rng{{10, 20}, {1, 2}}, []Interval{{1, 3}, {10, 21}}},
		{"touch left", []rng{{10, 20}, {5, 9}}, []Interval{{5, 21}}},
		{"touch right", []rng{{10, 20}, {21, 30}}, []Interval{{10, 31}}},
		{"enclosed", []rng{{10, 20}, {12, 15}}, []Interval{{10, 21}}},
		{"enclosing many", []rng{{10, 12}, {20, 22}, {30, 32}, {5, 40}}, []Interval{{5, 41}}},
		{"bridge three", []rng{{1, 10}, {20, 30}, {40, 50}, {11, 39}}, []Interval{{1, 51}}},
		{"partial overlap of two", []rng{{1, 10}, {20, 30}, {40, 50}, {8, 25}}, []Interval{{1, 31}, {40, 51}}},
		{"swapped bounds", []rng{{30, 20}}, []Interval{{20, 31}}},
		{"zero clamped", []rng{{0, 3}}, []Interval{{1, 4}}},
		{"zero only", []rng{{0, 0}}, []Interval{}},
		{"full range", []rng{{1, 65535}, {100, 200}}, []Interval{{1, 65536}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Set
			for _, r := range tt.insert {
				s.Insert(r.first, r.last)
			}
			checkInvariants(t, &s)
			if got := s.Intervals(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Intervals() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestSetRandomInserts compares the set against a bitmap model after many
// random inserts and removals.
func TestSetRandomInserts(t *testing.T) {
	for round := 0; round < 50; round++ {
		var s Set
		var model [1 << 16]bool
		for i := 0; i < 40; i++ {
			first := uint16(rand.IntN(2000))
			last := first + uint16(rand.IntN(50))
			s.Insert(first, last)
			for p := int(first); p <= int(last); p++ {
				if p != 0 {
					model[p] = true
				}
			}
			if rand.IntN(4) == 0 {
				p := uint16(rand.IntN(2000))
				s.Remove(p)
				model[p] = false
			}
		}
		checkInvariants(t, &s)
		n := 0
		for p := 0; p < len(model); p++ {
			if model[p] {
				n++
			}
			if s.Contains(uint16(p)) != model[p] {
				t.Fatalf("round %d: Contains(%d) = %v, want %v", round, p, !model[p], model[p])
			}
		}
		if n != s.Count() {
			t.Fatalf("round %d: Count() = %d, model has %d", round, s.Count(), n)
		}

		// Next from 0 enumerates exactly the members in order.
		seen := 0
		prev := 0
		for p := s.Next(0); p != 0; p = s.Next(p) {
			if int(p) <= prev {
				t.Fatalf("round %d: Next not ascending: %d after %d", round, p, prev)
			}
			if !model[p] {
				t.Fatalf("round %d: Next returned non-member %d", round, p)
			}
			prev = int(p)
			seen++
		}
		if seen != n {
			t.Fatalf("round %d: Next enumerated %d ports, want %d", round, seen, n)
		}
	}
}

func TestSetNext(t *testing.T) {
	var s Set
	if got := s.Next(0); got != 0 {
		t.Errorf("empty Next(0) = %d, want 0", got)
	}
	s.Insert(65535, 65535)
	s.Insert(5, 6)
	want := []uint16{5, 6, 65535}
	var got []uint16
	for p := s.Next(0); p != 0; p = s.Next(p) {
		got = append(got, p)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("iteration = %v, want %v", got, want)
	}
}

func TestSetRandomPick(t *testing.T) {
	var s Set
	if got := s.RandomPick(); got != 0 {
		t.Errorf("empty RandomPick() = %d, want 0", got)
	}
	s.Insert(10, 12)
	s.Insert(100, 100)
	hits := map[uint16]int{}
	for i := 0; i < 2000; i++ {
		p := s.RandomPick()
		if !s.Contains(p) {
			t.Fatalf("RandomPick returned non-member %d", p)
		}
		hits[p]++
	}
	for _, p := range []uint16{10, 11, 12, 100} {
		if hits[p] == 0 {
			t.Errorf("port %d never picked in 2000 draws", p)
		}
	}
	if s.Count() != 4 {
		t.Errorf("RandomPick must not remove members, Count() = %d", s.Count())
	}
}

func TestSetRemove(t *testing.T) {
	var s Set
	s.Insert(10, 20)
	s.Remove(15)
	s.Remove(10)
	s.Remove(20)
	s.Remove(99)
	checkInvariants(t, &s)
	want := []Interval{{11, 15}, {16, 20}}
	if got := s.Intervals(); !reflect.DeepEqual(got, want) {
		t.Errorf("Intervals() = %v, want %v", got, want)
	}
	if s.String() != "11-14,16-19" {
		t.Errorf("String() = %q", s.String())
	}
}
