// Пакет trackcode — формат трекинг-кодов документов.
// Код имеет вид TRK-YYYYMMDD-NNNN: дата суток и порядковый номер
// в пределах этих суток, дополненный нулями до 4 цифр.
package trackcode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// Prefix — постоянная часть кода.
	Prefix = "TRK"
	// dayLayout — формат даты внутри кода.
	dayLayout = "20060102"
	// Width — ширина порядкового номера.
	Width = 4
	// MaxSequence — наибольший номер, представимый в Width цифрах.
	MaxSequence = 9999
)

var (
	// ErrMalformed — строка не является трекинг-кодом.
	ErrMalformed = errors.New("некорректный трекинг-код")
	// ErrOverflow — номер не помещается в Width цифр.
	ErrOverflow = errors.New("порядковый номер трекинг-кода исчерпан")
)

// DayPrefix возвращает префикс кодов для календарного дня day
// (в часовом поясе, в котором передан day).
func DayPrefix(day time.Time) string {
	return Prefix + "-" + day.Format(dayLayout)
}

// Format собирает код из дня и порядкового номера.
// Номер вне диапазона 1..MaxSequence — ErrOverflow; усечения не происходит.
func Format(day time.Time, seq int) (string, error) {
	if seq < 1 || seq > MaxSequence {
		return "", fmt.Errorf("%w: %d", ErrOverflow, seq)
	}
	return fmt.Sprintf("%s-%0*d", DayPrefix(day), Width, seq), nil
}

// Sequence извлекает порядковый номер из кода.
func Sequence(code string) (int, error) {
	_, seq, err := Parse(code)
	return seq, err
}

// Parse разбирает код на день (UTC-полночь этой даты) и порядковый номер.
func Parse(code string) (time.Time, int, error) {
	parts := strings.Split(code, "-")
	if len(parts) != 3 || parts[0] != Prefix || len(parts[2]) != Width {
		return time.Time{}, 0, fmt.Errorf("%w: %q", ErrMalformed, code)
	}

	day, err := time.Parse(dayLayout, parts[1])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: %q", ErrMalformed, code)
	}

	for _, r := range parts[2] {
		if r < '0' || r > '9' {
			return time.Time{}, 0, fmt.Errorf("%w: %q", ErrMalformed, code)
		}
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: %q", ErrMalformed, code)
	}
	return day, seq, nil
}

// Next возвращает код, следующий за last в пределах дня day.
// Пустой last означает, что кодов за этот день ещё нет.
func Next(day time.Time, last string) (string, error) {
	seq := 0
	if last != "" {
		lastDay, lastSeq, err := Parse(last)
		if err != nil {
			return "", err
		}
		if !strings.HasPrefix(last, DayPrefix(day)+"-") {
			return "", fmt.Errorf("%w: код %q относится к дню %s", ErrMalformed, last, lastDay.Format(dayLayout))
		}
		seq = lastSeq
	}
	return Format(day, seq+1)
}
