package apiclient

import (
	"context"
	"net/http"

	"github.com/deliverly/admin-console/internal/shared"
)

// CurrentAdmin resolves the admin owning the client's bearer token.
func (c *Client) CurrentAdmin(ctx context.Context) (shared.AdminUser, error) {
	var out shared.AdminUser
	err := c.do(ctx, request{resource: "auth", method: http.MethodGet, path: "/admin/auth/me"}, &out)
	if err != nil {
		return shared.AdminUser{}, err
	}
	if out.ID == "" {
		return shared.AdminUser{}, NewServerError(http.StatusOK, "admin profile without id")
	}
	return out, nil
}
