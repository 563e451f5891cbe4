package problem

import "testing"

func TestParseTime(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int64
	}{
		{"1.5s", 1_500_000_000},
		{"250ms", 250_000_000},
		{"2", 2_000_000_000},
		{"1S", 1_000_000_000},
		{"100 ms", 100_000_000},
		{int(5_000_000), 5_000_000},
	}
	for _, c := range cases {
		got, err := ParseTime(c.in)
		if err != nil {
			t.Fatalf("ParseTime(%v): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseTime(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	for _, in := range []interface{}{"abc", "1h", "", nil, []string{"1s"}} {
		if _, err := ParseTime(in); err == nil {
			t.Fatalf("ParseTime(%v) should fail", in)
		}
	}
}

func TestParseMemory(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int64
	}{
		{"256m", 256 << 20},
		{"1g", 1 << 30},
		{"500", 500},
		{"64K", 64 << 10},
		{"0.5g", 512 << 20},
		{int(1024), 1024},
	}
	for _, c := range cases {
		got, err := ParseMemory(c.in)
		if err != nil {
			t.Fatalf("ParseMemory(%v): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseMemory(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseMemoryRejectsGarbage(t *testing.T) {
	for _, in := range []interface{}{"12q", "m", "", nil} {
		if _, err := ParseMemory(in); err == nil {
			t.Fatalf("ParseMemory(%v) should fail", in)
		}
	}
}
