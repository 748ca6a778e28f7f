package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/bigkaa/docstore/internal/repository"
	"github.com/bigkaa/docstore/internal/storage/objectstore"
)

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name             string
		page, pageSize   int
		wantPage, wantPS int
		wantOffset       int
	}{
		{"по умолчанию", 0, 0, 1, DefaultPageSize, 0},
		{"обычная страница", 3, 10, 3, 10, 20},
		{"ограничение размера", 2, 500, 2, MaxPageSize, MaxPageSize},
		{"последняя допустимая", MaxPage, MaxPageSize, MaxPage, MaxPageSize, (MaxPage - 1) * MaxPageSize},
		{"номер за пределом", math.MaxInt, MaxPageSize, MaxPage, MaxPageSize, (MaxPage - 1) * MaxPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, pageSize, offset := normalizePage(tt.page, tt.pageSize)
			if page != tt.wantPage || pageSize != tt.wantPS || offset != tt.wantOffset {
				t.Errorf("normalizePage(%d, %d) = %d, %d, %d; ожидали %d, %d, %d",
					tt.page, tt.pageSize, page, pageSize, offset, tt.wantPage, tt.wantPS, tt.wantOffset)
			}
			if offset < 0 || offset > math.MaxInt32 {
				t.Errorf("смещение %d вне диапазона int32", offset)
			}
		})
	}
}

func TestFileSearch_HugePage(t *testing.T) {
	svc, _, _ := newFileService(t)
	if _, err := svc.Upload(context.Background(), scanInput(), pdf("scan.png", "x")); err != nil {
		t.Fatal(err)
	}

	page, err := svc.Search(context.Background(), "", math.MaxInt, MaxPageSize)
	if err != nil {
		t.Fatalf("Search() вернул ошибку: %v", err)
	}
	if len(page.Items) != 0 || page.Total != 1 || page.Page != MaxPage {
		t.Errorf("Search() = %d элементов, total = %d, page = %d", len(page.Items), page.Total, page.Page)
	}
}

func TestFailureMapping(t *testing.T) {
	tests := []struct {
		name string
		got  error
		want error
	}{
		{"ключ занят", putFailure(fmt.Errorf("%w: files/a.png", objectstore.ErrExist)), ErrDuplicateObject},
		{"сбой записи", putFailure(errInjected), ErrStorageWriteFailed},
		{"объект у другой записи", insertFailure(repository.ErrObjectConflict), ErrDuplicateObject},
		{"запись исчезла", insertFailure(repository.ErrNotFound), ErrNotFound},
		{"сбой БД", insertFailure(errInjected), ErrMetadataWriteFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.got, tt.want) {
				t.Errorf("получили %v, ожидали %v", tt.got, tt.want)
			}
		})
	}
}
