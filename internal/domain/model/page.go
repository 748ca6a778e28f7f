package model

// Page — страница результатов поиска или листинга.
type Page[T any] struct {
	// Items — записи страницы в порядке id
	Items []T
	// Total — общее количество записей, удовлетворяющих запросу
	Total int
	// Page — номер страницы, начиная с 1
	Page int
	// PageSize — размер страницы
	PageSize int
}
