package trackcode

import (
	"errors"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 15, 4, 5, 0, time.UTC)
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name    string
		seq     int
		want    string
		wantErr error
	}{
		{"первый номер", 1, "TRK-20250105-0001", nil},
		{"двузначный", 42, "TRK-20250105-0042", nil},
		{"максимум", MaxSequence, "TRK-20250105-9999", nil},
		{"переполнение", MaxSequence + 1, "", ErrOverflow},
		{"ноль", 0, "", ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(day(2025, time.January, 5), tt.seq)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ожидалась ошибка %v, получена %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if got != tt.want {
				t.Errorf("Format() = %q, ожидается %q", got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	d, seq, err := Parse("TRK-20251231-0107")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if seq != 107 {
		t.Errorf("seq = %d, ожидается 107", seq)
	}
	if d.Format("2006-01-02") != "2025-12-31" {
		t.Errorf("day = %v, ожидается 2025-12-31", d)
	}

	malformed := []string{
		"",
		"TRK-20251231",
		"TRK-20251231-107",
		"TRK-20251231-01a7",
		"TRK-20251331-0001",
		"DOC-20251231-0001",
		"TRK-20251231-+001",
		"TRK-20251231-00001",
	}
	for _, code := range malformed {
		if _, _, err := Parse(code); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q): ожидалась ErrMalformed, получена %v", code, err)
		}
	}
}

func TestNext(t *testing.T) {
	d := day(2025, time.January, 5)

	got, err := Next(d, "")
	if err != nil || got != "TRK-20250105-0001" {
		t.Errorf("Next(пусто) = %q, %v; ожидается TRK-20250105-0001", got, err)
	}

	got, err = Next(d, "TRK-20250105-0009")
	if err != nil || got != "TRK-20250105-0010" {
		t.Errorf("Next(0009) = %q, %v; ожидается TRK-20250105-0010", got, err)
	}

	if _, err := Next(d, "TRK-20250105-9999"); !errors.Is(err, ErrOverflow) {
		t.Errorf("Next(9999): ожидалась ErrOverflow, получена %v", err)
	}

	if _, err := Next(d, "TRK-20250104-0003"); !errors.Is(err, ErrMalformed) {
		t.Errorf("Next(чужой день): ожидалась ErrMalformed, получена %v", err)
	}
}

func TestDayPrefix_UsesLocationOfDay(t *testing.T) {
	// 23:30 UTC 4 января — уже 5 января в UTC+3
	utc := time.Date(2025, time.January, 4, 23, 30, 0, 0, time.UTC)
	msk := time.FixedZone("MSK", 3*60*60)

	if got := DayPrefix(utc); got != "TRK-20250104" {
		t.Errorf("DayPrefix(UTC) = %q", got)
	}
	if got := DayPrefix(utc.In(msk)); got != "TRK-20250105" {
		t.Errorf("DayPrefix(MSK) = %q", got)
	}
}
