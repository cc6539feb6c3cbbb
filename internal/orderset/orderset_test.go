package orderset

import "testing"

func TestOrderedSet_AddUpdateRemove(t *testing.T) {
	s := New()

	if err := s.Add("a", 100); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("a", 200); err == nil {
		t.Fatalf("expected error adding duplicate id")
	}

	if score, ok := s.Score("a"); !ok || score != 100 {
		t.Fatalf("expected score 100, got %d, ok=%v", score, ok)
	}

	if err := s.Update("a", 150); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if score, _ := s.Score("a"); score != 150 {
		t.Errorf("expected updated score 150, got %d", score)
	}

	if err := s.Update("missing", 1); err == nil {
		t.Errorf("expected error updating missing id")
	}

	s.Remove("a")
	if s.Contains("a") {
		t.Errorf("expected a to be removed")
	}
	if s.Len() != 0 {
		t.Errorf("expected empty set, got len %d", s.Len())
	}
}

func TestOrderedSet_RangeAboveBelow(t *testing.T) {
	s := New()
	s.Add("low", 90)
	s.Add("mid", 100)
	s.Add("high", 110)
	s.Add("higher", 120)

	above := s.RangeAbove(100)
	if len(above) != 3 {
		t.Fatalf("expected 3 members >= 100, got %d", len(above))
	}
	if above[0].ID != "mid" || above[0].Score != 100 {
		t.Errorf("expected ascending order starting with mid, got %+v", above[0])
	}
	if s.Contains("mid") || s.Contains("high") || s.Contains("higher") {
		t.Errorf("RangeAbove should remove matched members")
	}
	if !s.Contains("low") {
		t.Errorf("RangeAbove should not remove members below threshold")
	}
}

func TestOrderedSet_RangeBelow(t *testing.T) {
	s := New()
	s.Add("low", 90)
	s.Add("mid", 100)
	s.Add("high", 110)

	below := s.RangeBelow(100)
	if len(below) != 2 {
		t.Fatalf("expected 2 members <= 100, got %d", len(below))
	}
	if below[0].ID != "mid" {
		t.Errorf("expected descending order starting with mid, got %+v", below[0])
	}
	if !s.Contains("high") {
		t.Errorf("RangeBelow should not remove members above threshold")
	}
}

func TestOrderedSet_BucketSharesScore(t *testing.T) {
	s := New()
	s.Add("a", 100)
	s.Add("b", 100)

	out := s.RangeAbove(100)
	if len(out) != 2 {
		t.Fatalf("expected both members sharing a bucket to be returned, got %d", len(out))
	}
}

func TestOrderedSet_Snapshot(t *testing.T) {
	s := New()
	s.Add("a", 50)
	s.Add("b", 10)
	s.Add("c", 30)

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 members, got %d", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i].Score < snap[i-1].Score {
			t.Errorf("expected ascending scores, got %+v", snap)
		}
	}
}
