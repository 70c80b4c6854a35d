package rpc

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/remap-keys/remap-backend/internal/authz"
	"github.com/remap-keys/remap-backend/internal/identity"
)

// RequireAuthentication fails with ErrUnauthenticated unless the request
// carries a verified caller identity. This is the only guard that signals via
// an error instead of a failure result.
func RequireAuthentication() Stage {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (*Result, error) {
			if req.Caller == nil {
				return nil, ErrUnauthenticated
			}
			return next(ctx, req)
		}
	}
}

// RequireAdministrator fails with NotAdministrator unless the caller's email
// is on the administrators list. Must run after RequireAuthentication: it
// reads the caller identity unconditionally.
func RequireAdministrator(admins authz.AdministratorStore, idp identity.Provider) Stage {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (*Result, error) {
			uid := req.Caller.UID
			ok, err := authz.IsAdministrator(ctx, admins, idp, uid)
			if err != nil {
				return nil, err
			}
			if !ok {
				return Fail(CodeNotAdministrator, fmt.Sprintf("User[%s] is not an administrator.", uid)), nil
			}
			return next(ctx, req)
		}
	}
}

// RequireOrganizationMember extracts organizationId from the payload and
// fails with OrganizationNotFound when it is absent, or NotOrganizationMember
// when the caller is not in the organization's member set. Must run after
// RequireAuthentication.
func RequireOrganizationMember(members authz.MembershipStore) Stage {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (*Result, error) {
			orgID, ok := req.Data.String("organizationId")
			if !ok || orgID == "" {
				return Fail(CodeOrganizationNotFound, "The organization is not specified."), nil
			}
			uid := req.Caller.UID
			member, err := authz.IsOrganizationMember(ctx, members, uid, orgID)
			if err != nil {
				return nil, err
			}
			if !member {
				return Fail(CodeNotOrganizationMember, fmt.Sprintf("User[%s] is not an organization[%s] member.", uid, orgID)), nil
			}
			return next(ctx, req)
		}
	}
}

// RequireFields fails with ValidationError when any named field is absent
// from the payload. Absence is strict key absence: null and empty values are
// considered present.
func RequireFields(names ...string) Stage {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (*Result, error) {
			for _, name := range names {
				if !req.Data.Has(name) {
					return Fail(CodeValidation, fmt.Sprintf("The %q is required.", name)), nil
				}
			}
			return next(ctx, req)
		}
	}
}

// RequireOneOf fails with ValidationError when a listed field is present but
// its value is outside the allowed set. Absent fields pass; combine with
// RequireFields to also demand presence.
func RequireOneOf(rules map[string][]string) Stage {
	// Sort once so validation failures are reported deterministically.
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (*Result, error) {
			for _, name := range names {
				value, ok := req.Data.String(name)
				if !ok || value == "" {
					continue
				}
				allowed := rules[name]
				found := false
				for _, a := range allowed {
					if value == a {
						found = true
						break
					}
				}
				if !found {
					return Fail(CodeValidation, fmt.Sprintf("The %q must be included in [%s].", name, strings.Join(allowed, ", "))), nil
				}
			}
			return next(ctx, req)
		}
	}
}
