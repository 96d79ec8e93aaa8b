package sqn

import "testing"

func TestNextWraps(t *testing.T) {
	if got := SQN(65535).Next(); got != 1 {
		t.Errorf("Next() on 65535 = %d, want 1", got)
	}
	if got := SQN(1).Next(); got != 2 {
		t.Errorf("Next() on 1 = %d, want 2", got)
	}
}

func TestNextNeverZero(t *testing.T) {
	s := SQN(65530)
	for i := 0; i < 20; i++ {
		s = s.Next()
		if s == 0 {
			t.Fatalf("Next() produced 0 after %d increments", i+1)
		}
	}
}

func TestSubOrdering(t *testing.T) {
	cases := []struct {
		a, b SQN
		want int32
	}{
		{5, 3, 2},
		{3, 5, -2},
		{5, 5, 0},
		{65535, 1, -1},
		{1, 65535, 1},
	}
	for _, c := range cases {
		if got := c.a.Sub(c.b); got != c.want {
			t.Errorf("SQN(%d).Sub(%d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestBytesRoundTrip(t *testing.T) {
	s := SQN(4660)
	b := s.Bytes()
	if got := FromBytes(b[:]); got != s {
		t.Errorf("FromBytes(Bytes(%d)) = %d", s, got)
	}
}
