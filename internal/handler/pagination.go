package handler

import (
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// pageParams reads ?page=&pageSize= (1-based).  Absent values use defaults;
// malformed or out of range values are a 400.
func pageParams(c echo.Context) (page, size int, err error) {
	page, size = 1, defaultPageSize
	if s := c.QueryParam("page"); s != "" {
		if page, err = strconv.Atoi(s); err != nil || page < 1 {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "page must be a positive integer")
		}
	}
	if s := c.QueryParam("pageSize"); s != "" {
		if size, err = strconv.Atoi(s); err != nil || size < 1 || size > maxPageSize {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "pageSize must be between 1 and 100")
		}
	}
	// the offset (page-1)*size must fit in an int
	if page-1 > math.MaxInt/size {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "page is out of range")
	}
	return page, size, nil
}

// idParam parses the :id path parameter.
func idParam(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}
