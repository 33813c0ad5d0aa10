package paging

import (
	"fmt"

	"github.com/kbukum/liveview/validation"
)

// Request asks for one page. Page is 1-based.
type Request struct {
	Page int `json:"page" mapstructure:"page" validate:"min=1"`
	Size int `json:"size" mapstructure:"size" validate:"min=1,max=1000"`
}

// DefaultRequest is the first page of 25 items.
var DefaultRequest = Request{Page: 1, Size: 25}

// Validate checks the request bounds.
func (r Request) Validate() error {
	return validation.Validate(r)
}

func (r Request) String() string { return fmt.Sprintf("page %d/size %d", r.Page, r.Size) }

// Response describes the window actually delivered. RequestedPage is the
// page asked for, which differs from Page only when Clamped.
type Response struct {
	Page          int  `json:"page"`
	RequestedPage int  `json:"requested_page"`
	PageSize      int  `json:"page_size"`
	TotalSize     int  `json:"total_size"`
	Pages         int  `json:"pages"`
	Clamped       bool `json:"clamped"`
}

// Serves reports whether r is the window produced for req.
func (r Response) Serves(req Request) bool {
	return r.RequestedPage == req.Page && r.PageSize == req.Size
}

// Pages returns the page count for total items; an empty or single-page set
// still has one page.
func Pages(total, size int) int {
	if size <= 0 || total <= size {
		return 1
	}
	pages := total / size
	if total%size != 0 {
		pages++
	}
	return pages
}

// resolve turns a request into the effective response for total items.
func resolve(req Request, total int) Response {
	pages := Pages(total, req.Size)
	resp := Response{Page: req.Page, RequestedPage: req.Page, PageSize: req.Size, TotalSize: total, Pages: pages}
	if req.Page > pages {
		resp.Page = pages
		resp.Clamped = true
	}
	return resp
}

// bounds returns the [start, end) slice bounds of resp within total items.
func (resp Response) bounds() (int, int) {
	start := (resp.Page - 1) * resp.PageSize
	if start > resp.TotalSize {
		start = resp.TotalSize
	}
	return start, min(start+resp.PageSize, resp.TotalSize)
}
