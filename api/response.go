package api

import (
	"net/http"
	"net/url"
	"strconv"
)

const MessageSuccess = "Success"

type Response struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(data interface{}) Response {
	return Response{Message: MessageSuccess, Data: data}
}

// Paginated is a page of results. Metadata is null when the page is empty.
type Paginated struct {
	Message  string      `json:"message"`
	Data     interface{} `json:"data"`
	Metadata *Meta       `json:"metadata"`
}

type Meta struct {
	Pagination Pagination `json:"pagination"`
	Links      Links      `json:"links"`
}

type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

type Links struct {
	Self string  `json:"self"`
	Next *string `json:"next"`
	Prev *string `json:"prev"`
}

func TotalPages(total int64, size int) int {
	if size < 1 || total < 1 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

// NewPaginated wraps one page of data. self is the absolute URL of the
// request; the links repeat it with the page and size query parameters set.
func NewPaginated(data interface{}, page, size int, total int64, self *url.URL) Paginated {
	out := Paginated{Message: MessageSuccess, Data: data}
	if total == 0 {
		return out
	}
	pagination := Pagination{Page: page, PageSize: size, Total: total, TotalPages: TotalPages(total, size)}
	out.Metadata = &Meta{Pagination: pagination, Links: NewLinks(self, page, size, pagination.TotalPages)}
	return out
}

func NewLinks(self *url.URL, page, size, totalPages int) Links {
	links := Links{Self: pageURL(self, page, size)}
	if page < totalPages {
		next := pageURL(self, page+1, size)
		links.Next = &next
	}
	if page > 1 {
		prev := pageURL(self, page-1, size)
		links.Prev = &prev
	}
	return links
}

func pageURL(base *url.URL, page, size int) string {
	u := *base
	query := u.Query()
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))
	u.RawQuery = query.Encode()
	return u.String()
}

// RequestURL rebuilds the absolute URL a client used to reach the server.
func RequestURL(r *http.Request) *url.URL {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return &url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}
}
