package draw

import "testing"

func TestAnnouncement(t *testing.T) {
	cases := []struct {
		number int
		want   string
	}{
		{5, "Single number five."},
		{9, "Single number nine."},
		{10, "One zero, ten. I repeat, one zero, ten."},
		{13, "One three, thirteen. I repeat, one three, thirteen."},
		{47, "Four seven, forty seven. I repeat, four seven, forty seven."},
		{80, "Eight zero, eighty. I repeat, eight zero, eighty."},
		{90, "Nine zero, ninety. I repeat, nine zero, ninety."},
		{0, ""},
		{-1, ""},
		{91, ""},
	}
	for _, tc := range cases {
		if got := Announcement(tc.number); got != tc.want {
			t.Errorf("Announcement(%d) = %q, want %q", tc.number, got, tc.want)
		}
	}
}

func TestAnnouncementDeterministic(t *testing.T) {
	// The audio cache is keyed on the number, so the text must never vary.
	for n := 1; n <= MaxNumber; n++ {
		first := Announcement(n)
		if first == "" {
			t.Fatalf("empty announcement for in-range number %d", n)
		}
		if second := Announcement(n); second != first {
			t.Fatalf("announcement for %d changed between calls", n)
		}
	}
}
