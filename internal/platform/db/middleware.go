package db

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// TxMiddleware wraps every mutating request in a Store transaction.
// Repositories pick the transaction up from the request context, so all
// writes of one request commit atomically and the commit hooks fire once per
// request. Read-only methods pass through untouched.
func TxMiddleware(store *Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}
			req := c.Request()
			return store.WithTx(req.Context(), func(ctx context.Context) error {
				c.SetRequest(req.WithContext(ctx))
				return next(c)
			})
		}
	}
}
