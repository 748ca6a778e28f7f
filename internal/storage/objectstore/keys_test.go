package objectstore

import (
	"strings"
	"testing"
	"time"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"Annual Report 2024.pdf", "Annual_Report_2024.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\ivan\scan.png`, "scan.png"},
		{"Отчёт.docx", "Отчёт.docx"},
		{"..hidden", "hidden"},
		{"$%^&", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, ожидали %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeName_LongNameKeepsExtension(t *testing.T) {
	got := SanitizeName(strings.Repeat("a", 300) + ".pdf")
	if len(got) != maxNameLength || !strings.HasSuffix(got, ".pdf") {
		t.Errorf("длина = %d, имя = ...%s", len(got), got[len(got)-8:])
	}
}

func TestCreateAndReplaceKey(t *testing.T) {
	key, err := CreateKey("PSTO-SDN-FMS/documents", "Invoice A.pdf")
	if err != nil || key != "PSTO-SDN-FMS/documents/Invoice_A.pdf" {
		t.Errorf("CreateKey() = %q, %v", key, err)
	}

	now := time.Unix(1736035200, 0)
	key, err = ReplaceKey("PSTO-SDN-FMS/files", "scan.png", now)
	if err != nil || key != "PSTO-SDN-FMS/files/1736035200_scan.png" {
		t.Errorf("ReplaceKey() = %q, %v", key, err)
	}

	if _, err := CreateKey("docs", "***"); err == nil {
		t.Error("CreateKey() с пустым именем после очистки: ожидали ошибку")
	}
}

func TestTempKey(t *testing.T) {
	tmp := tempKey("docs/report.pdf")
	if !strings.HasPrefix(tmp, "docs/.tmp-") || !strings.HasSuffix(tmp, "-report.pdf") {
		t.Errorf("tempKey() = %q", tmp)
	}
	if !isTempKey(tmp) || isTempKey("docs/report.pdf") {
		t.Error("isTempKey() распознаёт ключи неверно")
	}
}
