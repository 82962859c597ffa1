package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const endpointColumns = `id, path, method, description, module, is_public,
	rate_limit_requests, rate_limit_window, resource_name, action,
	gateway_route_id, gateway_route_name,
	created_at, updated_at, deleted_at, created_by, updated_by, version, is_active`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row rowScanner) (*Endpoint, error) {
	var (
		e                  Endpoint
		rlRequests         sql.NullInt64
		rlWindow           sql.NullString
		routeID, routeName sql.NullString
		deletedAt          sql.NullTime
	)

	err := row.Scan(&e.ID, &e.Path, &e.Method, &e.Description, &e.Module, &e.IsPublic,
		&rlRequests, &rlWindow, &e.ResourceName, &e.Action,
		&routeID, &routeName,
		&e.CreatedAt, &e.UpdatedAt, &deletedAt, &e.CreatedBy, &e.UpdatedBy, &e.Version, &e.IsActive)
	if err != nil {
		return nil, err
	}

	if rlRequests.Valid && rlWindow.Valid {
		e.RateLimit = &RateLimit{Requests: int(rlRequests.Int64), Window: rlWindow.String}
	}
	e.GatewayRouteID = routeID.String
	e.GatewayRouteName = routeName.String
	if deletedAt.Valid {
		t := deletedAt.Time
		e.DeletedAt = &t
	}
	e.RoleCodes = []string{}

	return &e, nil
}

// getEndpointWhere loads a single endpoint (with roles) matching the given condition.
// Returns ErrNotFound if no row matches.
func getEndpointWhere(ctx context.Context, q queryer, where string, args ...any) (*Endpoint, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+endpointColumns+" FROM endpoints WHERE "+where+" ORDER BY id ASC LIMIT 1",
		args...)

	e, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get endpoint: %w", err)
	}

	roles, err := loadRoles(ctx, q, "SELECT role_code FROM endpoint_roles WHERE endpoint_id = ? ORDER BY role_code ASC", e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load endpoint roles: %w", err)
	}
	e.RoleCodes = roles

	return e, nil
}

// loadRoles runs a single-column role query and returns the codes, never nil.
func loadRoles(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	roles := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		roles = append(roles, code)
	}
	return roles, rows.Err()
}

// replaceRoles deletes every join row of the owner and inserts the new set.
// table is one of endpoint_roles / feature_roles and ownerColumn its owner key.
func replaceRoles(ctx context.Context, tx *sql.Tx, table, ownerColumn string, ownerID int64, roles []string, actor string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+ownerColumn+" = ?", ownerID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}

	for _, code := range roles {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" ("+ownerColumn+", role_code, created_at, created_by) VALUES (?, ?, ?, ?)",
			ownerID, code, now, actor)
		if err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}

func rateLimitArgs(rl *RateLimit) (any, any) {
	if rl == nil {
		return nil, nil
	}
	return rl.Requests, rl.Window
}

// endpointUnchanged reports whether applying fields to e would change nothing.
func endpointUnchanged(e *Endpoint, fields EndpointFields, roles []string) bool {
	if e.Description != fields.Description ||
		e.Module != fields.Module ||
		e.IsPublic != fields.IsPublic ||
		e.ResourceName != fields.ResourceName ||
		e.Action != fields.Action {
		return false
	}
	switch {
	case e.RateLimit == nil && fields.RateLimit != nil,
		e.RateLimit != nil && fields.RateLimit == nil:
		return false
	case e.RateLimit != nil && *e.RateLimit != *fields.RateLimit:
		return false
	}
	return slices.Equal(e.RoleCodes, roles)
}

// UpsertEndpoint creates or overwrites the active endpoint identified by (path, method).
// The record row and its role joins are written in one transaction. Calling it again
// with identical fields is a no-op: the stored record, including version, is returned unchanged.
func (s *SQLiteStorage) UpsertEndpoint(ctx context.Context, path, method string, fields EndpointFields) (*Endpoint, error) {
	roles := normalizeRoles(fields.RoleCodes)
	rlRequests, rlWindow := rateLimitArgs(fields.RateLimit)

	var result *Endpoint
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()

		existing, err := getEndpointWhere(ctx, tx, "path = ? AND method = ? AND is_active = TRUE", path, method)
		if errors.Is(err, ErrNotFound) {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO endpoints (path, method, description, module, is_public,
					rate_limit_requests, rate_limit_window, resource_name, action,
					created_at, updated_at, created_by, updated_by, version, is_active)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, TRUE)`,
				path, method, fields.Description, fields.Module, fields.IsPublic,
				rlRequests, rlWindow, fields.ResourceName, fields.Action,
				now, now, fields.Actor, fields.Actor)
			if err != nil {
				if isUniqueViolation(err) {
					return ErrAlreadyExists
				}
				return fmt.Errorf("failed to insert endpoint: %w", err)
			}

			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get insert ID: %w", err)
			}

			if err := replaceRoles(ctx, tx, "endpoint_roles", "endpoint_id", id, roles, fields.Actor, now); err != nil {
				return err
			}

			result, err = getEndpointWhere(ctx, tx, "id = ?", id)
			return err
		}
		if err != nil {
			return err
		}

		if endpointUnchanged(existing, fields, roles) {
			result = existing
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE endpoints SET description = ?, module = ?, is_public = ?,
				rate_limit_requests = ?, rate_limit_window = ?, resource_name = ?, action = ?,
				updated_at = ?, updated_by = ?, version = version + 1
			WHERE id = ?`,
			fields.Description, fields.Module, fields.IsPublic,
			rlRequests, rlWindow, fields.ResourceName, fields.Action,
			now, fields.Actor, existing.ID)
		if err != nil {
			return fmt.Errorf("failed to update endpoint: %w", err)
		}

		if err := replaceRoles(ctx, tx, "endpoint_roles", "endpoint_id", existing.ID, roles, fields.Actor, now); err != nil {
			return err
		}

		result, err = getEndpointWhere(ctx, tx, "id = ?", existing.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// UpdateEndpoint applies a partial update to an active endpoint.
// A supplied role set fully replaces the stored one inside the same transaction.
// Returns ErrNotFound, ErrConflict (stale ExpectedVersion) or ErrAlreadyExists
// (the new path/method collides with another active endpoint).
func (s *SQLiteStorage) UpdateEndpoint(ctx context.Context, id int64, patch EndpointPatch) (*Endpoint, error) {
	var result *Endpoint
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()

		e, err := getEndpointWhere(ctx, tx, "id = ? AND is_active = TRUE", id)
		if err != nil {
			return err
		}

		if patch.ExpectedVersion != nil && *patch.ExpectedVersion != e.Version {
			return ErrConflict
		}

		if patch.Path != nil {
			e.Path = *patch.Path
		}
		if patch.Method != nil {
			e.Method = *patch.Method
		}
		if patch.Description != nil {
			e.Description = *patch.Description
		}
		if patch.Module != nil {
			e.Module = *patch.Module
		}
		if patch.IsPublic != nil {
			e.IsPublic = *patch.IsPublic
		}
		if patch.ClearRate {
			e.RateLimit = nil
		} else if patch.RateLimit != nil {
			rl := *patch.RateLimit
			e.RateLimit = &rl
		}
		if patch.ResourceName != nil {
			e.ResourceName = *patch.ResourceName
		}
		if patch.Action != nil {
			e.Action = *patch.Action
		}

		rlRequests, rlWindow := rateLimitArgs(e.RateLimit)
		_, err = tx.ExecContext(ctx,
			`UPDATE endpoints SET path = ?, method = ?, description = ?, module = ?, is_public = ?,
				rate_limit_requests = ?, rate_limit_window = ?, resource_name = ?, action = ?,
				updated_at = ?, updated_by = ?, version = version + 1
			WHERE id = ?`,
			e.Path, e.Method, e.Description, e.Module, e.IsPublic,
			rlRequests, rlWindow, e.ResourceName, e.Action,
			now, patch.Actor, id)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("failed to update endpoint: %w", err)
		}

		if patch.RoleCodes != nil {
			roles := normalizeRoles(*patch.RoleCodes)
			if err := replaceRoles(ctx, tx, "endpoint_roles", "endpoint_id", id, roles, patch.Actor, now); err != nil {
				return err
			}
		}

		result, err = getEndpointWhere(ctx, tx, "id = ?", id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteEndpoint soft-deletes an endpoint. The row keeps its gateway route mapping
// for audit. Returns ErrNotFound if the endpoint is absent or already deleted.
func (s *SQLiteStorage) DeleteEndpoint(ctx context.Context, id int64, actor string) error {
	now := s.now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET is_active = FALSE, deleted_at = ?, updated_at = ?, updated_by = ?,
			version = version + 1
		WHERE id = ? AND is_active = TRUE`,
		now, now, actor, id)
	if err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetEndpoint retrieves an active endpoint by ID.
// Returns ErrNotFound if the endpoint doesn't exist.
func (s *SQLiteStorage) GetEndpoint(ctx context.Context, id int64) (*Endpoint, error) {
	return getEndpointWhere(ctx, s.db, "id = ? AND is_active = TRUE", id)
}

// GetEndpointByPath retrieves the active endpoint registered for path and method.
// This is the lookup used by the edge authorization guard.
func (s *SQLiteStorage) GetEndpointByPath(ctx context.Context, path, method string) (*Endpoint, error) {
	return getEndpointWhere(ctx, s.db, "path = ? AND method = ? AND is_active = TRUE", path, method)
}

// GetEndpointByResource retrieves the active endpoint tagged with resourceName/action for method.
func (s *SQLiteStorage) GetEndpointByResource(ctx context.Context, resourceName, action, method string) (*Endpoint, error) {
	return getEndpointWhere(ctx, s.db,
		"resource_name = ? AND action = ? AND method = ? AND is_active = TRUE",
		resourceName, action, method)
}

// ListEndpoints returns all active endpoints with their role sets, ordered by ID.
// A non-empty module restricts the result to that module.
// Returns empty slice if no endpoints exist.
func (s *SQLiteStorage) ListEndpoints(ctx context.Context, module string) ([]*Endpoint, error) {
	where := []string{"is_active = TRUE"}
	var args []any
	if module != "" {
		where = append(where, "module = ?")
		args = append(args, module)
	}

	endpoints, err := s.queryEndpoints(ctx, strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, err
	}

	roles, err := s.roleIndex(ctx,
		`SELECT er.endpoint_id, er.role_code FROM endpoint_roles er
			JOIN endpoints e ON e.id = er.endpoint_id
		WHERE e.is_active = TRUE ORDER BY er.role_code ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load endpoint roles: %w", err)
	}

	for _, e := range endpoints {
		if codes, ok := roles[e.ID]; ok {
			e.RoleCodes = codes
		}
	}

	return endpoints, nil
}

func (s *SQLiteStorage) queryEndpoints(ctx context.Context, where string, args ...any) ([]*Endpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+endpointColumns+" FROM endpoints WHERE "+where+" ORDER BY id ASC", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query endpoints: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	endpoints := make([]*Endpoint, 0)
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan endpoint row: %w", err)
		}
		endpoints = append(endpoints, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating endpoints: %w", err)
	}

	return endpoints, nil
}

// roleIndex runs an (owner_id, role_code) query and groups the codes by owner.
func (s *SQLiteStorage) roleIndex(ctx context.Context, query string, args ...any) (map[int64][]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	index := make(map[int64][]string)
	for rows.Next() {
		var (
			owner int64
			code  string
		)
		if err := rows.Scan(&owner, &code); err != nil {
			return nil, err
		}
		index[owner] = append(index[owner], code)
	}
	return index, rows.Err()
}

// SetGatewayRoute records the gateway-assigned route identity on an endpoint.
// It is the only write issued by reconciliation and does not bump the version.
func (s *SQLiteStorage) SetGatewayRoute(ctx context.Context, id int64, routeID, routeName string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE endpoints SET gateway_route_id = ?, gateway_route_name = ?, updated_at = ? WHERE id = ? AND is_active = TRUE",
		routeID, routeName, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to set gateway route: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
