package domain

const (
	SessionsPageSize = 5
	JoinedPageSize   = 10
)

// Page: окно списка из total элементов
type Page struct {
	Index int
	Pages int
	Start int
	End   int
}

// Paginate считает границы страницы; индекс вне диапазона прижимается к краю
func Paginate(total, index, size int) Page {
	if size <= 0 {
		size = 1
	}
	pages := (total + size - 1) / size
	if index >= pages {
		index = pages - 1
	}
	if index < 0 {
		index = 0
	}
	start := index * size
	end := start + size
	if end > total {
		end = total
	}
	if start > end {
		start = end
	}
	return Page{Index: index, Pages: pages, Start: start, End: end}
}

func (p Page) HasPrev() bool { return p.Index > 0 }

func (p Page) HasNext() bool { return p.Index < p.Pages-1 }
