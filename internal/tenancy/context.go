package tenancy

import (
	"context"
	"errors"
)

type ctxKey string

const tenantKey ctxKey = "realty.tenant_id"

// ErrMissingTenant is returned when a request reaches a tenant-scoped path without one.
var ErrMissingTenant = errors.New("tenancy: tenant id missing from context")

// WithTenantID stores the tenant id in context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantIDFromContext extracts the tenant id if present.
func TenantIDFromContext(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(tenantKey).(string)
	return tenantID, ok && tenantID != ""
}

// RequireTenantID is TenantIDFromContext for callers that cannot proceed without one.
func RequireTenantID(ctx context.Context) (string, error) {
	tenantID, ok := TenantIDFromContext(ctx)
	if !ok {
		return "", ErrMissingTenant
	}
	return tenantID, nil
}
