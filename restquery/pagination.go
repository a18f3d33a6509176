package restquery

import (
	"math"
	"net/url"
	"strconv"

	"github.com/mickamy/contentorm/internal/apperr"
)

// Page defaults.
const (
	DefaultPage     = 1
	DefaultPageSize = 100
)

// PageQuery is a page-based listing request. Params carries _sort, _q and
// field filters; _start and _limit are derived from the page.
type PageQuery struct {
	Page     int
	PageSize int
	Params   Params
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	PageCount int   `json:"pageCount"`
	Total     int64 `json:"total"`
}

// Page is a page of results with its pagination.
type Page[T any] struct {
	Results    []T        `json:"results"`
	Pagination Pagination `json:"pagination"`
}

// PageFromValues reads page, pageSize and the remaining parameters from
// URL query values.
func PageFromValues(values url.Values) (PageQuery, error) {
	params := FromValues(values)
	pq := PageQuery{Page: DefaultPage, PageSize: DefaultPageSize, Params: params}

	if v, ok := params["page"]; ok {
		n, err := strconv.Atoi(stringOf(v))
		if err != nil {
			return PageQuery{}, apperr.BadRequest("page must be an integer")
		}
		pq.Page = n
		delete(params, "page")
	}
	if v, ok := params["pageSize"]; ok {
		n, err := strconv.Atoi(stringOf(v))
		if err != nil {
			return PageQuery{}, apperr.BadRequest("pageSize must be an integer")
		}
		pq.PageSize = n
		delete(params, "pageSize")
	}
	return pq, nil
}

// Filters converts the page query. Page and page size below 1 fall back
// to their defaults.
func (pq PageQuery) Filters() (Filters, error) {
	params := make(Params, len(pq.Params))
	for k, v := range pq.Params {
		if k == ParamStart || k == ParamLimit {
			continue
		}
		params[k] = v
	}
	f, err := Convert(params)
	if err != nil {
		return Filters{}, err
	}
	page, size := pq.normalized()
	if page-1 > math.MaxInt/size {
		return Filters{}, apperr.BadRequest("page is out of range")
	}
	f.Start = (page - 1) * size
	f.Limit = size
	return f, nil
}

// Pagination returns the pagination of pq for total matching entries.
func (pq PageQuery) Pagination(total int64) Pagination {
	page, size := pq.normalized()
	count := total / int64(size)
	if total%int64(size) != 0 {
		count++
	}
	return Pagination{
		Page:      page,
		PageSize:  size,
		PageCount: int(count),
		Total:     total,
	}
}

func (pq PageQuery) normalized() (page, size int) {
	page, size = pq.Page, pq.PageSize
	if page < 1 {
		page = DefaultPage
	}
	if size < 1 {
		size = DefaultPageSize
	}
	return page, size
}

func stringOf(v any) string {
	if s, ok := first(v).(string); ok {
		return s
	}
	return ""
}
