package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
)

const featureColumns = `f.id, f.code, f.name, f.icon, f.route, f.parent_id, f.order_index,
	f.created_at, f.updated_at, f.deleted_at, f.created_by, f.updated_by, f.version, f.is_active`

// scanFeature scans featureColumns followed by any extra destinations.
func scanFeature(row rowScanner, extra ...any) (*Feature, error) {
	var (
		f         Feature
		parentID  sql.NullInt64
		deletedAt sql.NullTime
	)

	dest := []any{&f.ID, &f.Code, &f.Name, &f.Icon, &f.Route, &parentID, &f.OrderIndex,
		&f.CreatedAt, &f.UpdatedAt, &deletedAt, &f.CreatedBy, &f.UpdatedBy, &f.Version, &f.IsActive}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if parentID.Valid {
		p := parentID.Int64
		f.ParentID = &p
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		f.DeletedAt = &t
	}
	f.RoleCodes = []string{}

	return &f, nil
}

func getFeatureWhere(ctx context.Context, q queryer, where string, args ...any) (*Feature, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+featureColumns+" FROM features f WHERE "+where+" ORDER BY f.id ASC LIMIT 1",
		args...)

	f, err := scanFeature(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get feature: %w", err)
	}

	roles, err := loadRoles(ctx, q, "SELECT role_code FROM feature_roles WHERE feature_id = ? ORDER BY role_code ASC", f.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load feature roles: %w", err)
	}
	f.RoleCodes = roles

	return f, nil
}

// checkParent verifies that parentID names a live feature and that making it the
// parent of selfID (0 for a feature not yet inserted) keeps the graph acyclic.
func checkParent(ctx context.Context, q queryer, selfID, parentID int64) error {
	if selfID != 0 && parentID == selfID {
		return ErrInvalidParent
	}

	visited := map[int64]bool{}
	cur := parentID
	for {
		if selfID != 0 && cur == selfID {
			return ErrInvalidParent
		}
		if visited[cur] {
			// Pre-existing cycle above us that does not involve selfID.
			return nil
		}
		visited[cur] = true

		var next sql.NullInt64
		err := q.QueryRowContext(ctx,
			"SELECT parent_id FROM features WHERE id = ? AND deleted_at IS NULL", cur).Scan(&next)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				if cur == parentID {
					return ErrInvalidParent
				}
				return nil
			}
			return fmt.Errorf("failed to check parent: %w", err)
		}
		if !next.Valid {
			return nil
		}
		cur = next.Int64
	}
}

func parentArg(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// UpsertFeature creates or overwrites the live feature identified by code.
// The feature row and its role joins are written in one transaction; identical
// repeated calls leave the record and its version untouched.
func (s *SQLiteStorage) UpsertFeature(ctx context.Context, code string, fields FeatureFields) (*Feature, error) {
	roles := normalizeRoles(fields.RoleCodes)

	var result *Feature
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()

		existing, err := getFeatureWhere(ctx, tx, "f.code = ? AND f.deleted_at IS NULL", code)
		if errors.Is(err, ErrNotFound) {
			if fields.ParentID != nil {
				if err := checkParent(ctx, tx, 0, *fields.ParentID); err != nil {
					return err
				}
			}

			res, err := tx.ExecContext(ctx,
				`INSERT INTO features (code, name, icon, route, parent_id, order_index,
					created_at, updated_at, created_by, updated_by, version, is_active)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, TRUE)`,
				code, fields.Name, fields.Icon, fields.Route, parentArg(fields.ParentID), fields.OrderIndex,
				now, now, fields.Actor, fields.Actor)
			if err != nil {
				if isUniqueViolation(err) {
					return ErrAlreadyExists
				}
				return fmt.Errorf("failed to insert feature: %w", err)
			}

			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get insert ID: %w", err)
			}

			if err := replaceRoles(ctx, tx, "feature_roles", "feature_id", id, roles, fields.Actor, now); err != nil {
				return err
			}

			result, err = getFeatureWhere(ctx, tx, "f.id = ?", id)
			return err
		}
		if err != nil {
			return err
		}

		if existing.Name == fields.Name &&
			existing.Icon == fields.Icon &&
			existing.Route == fields.Route &&
			existing.OrderIndex == fields.OrderIndex &&
			sameParent(existing.ParentID, fields.ParentID) &&
			slices.Equal(existing.RoleCodes, roles) {
			result = existing
			return nil
		}

		if fields.ParentID != nil {
			if err := checkParent(ctx, tx, existing.ID, *fields.ParentID); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE features SET name = ?, icon = ?, route = ?, parent_id = ?, order_index = ?,
				updated_at = ?, updated_by = ?, version = version + 1
			WHERE id = ?`,
			fields.Name, fields.Icon, fields.Route, parentArg(fields.ParentID), fields.OrderIndex,
			now, fields.Actor, existing.ID)
		if err != nil {
			return fmt.Errorf("failed to update feature: %w", err)
		}

		if err := replaceRoles(ctx, tx, "feature_roles", "feature_id", existing.ID, roles, fields.Actor, now); err != nil {
			return err
		}

		result, err = getFeatureWhere(ctx, tx, "f.id = ?", existing.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// UpdateFeature applies a partial update to a live feature. The code is immutable.
// Returns ErrNotFound, ErrConflict or ErrInvalidParent.
func (s *SQLiteStorage) UpdateFeature(ctx context.Context, id int64, patch FeaturePatch) (*Feature, error) {
	var result *Feature
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()

		f, err := getFeatureWhere(ctx, tx, "f.id = ? AND f.deleted_at IS NULL", id)
		if err != nil {
			return err
		}

		if patch.ExpectedVersion != nil && *patch.ExpectedVersion != f.Version {
			return ErrConflict
		}

		if patch.Name != nil {
			f.Name = *patch.Name
		}
		if patch.Icon != nil {
			f.Icon = *patch.Icon
		}
		if patch.Route != nil {
			f.Route = *patch.Route
		}
		if patch.OrderIndex != nil {
			f.OrderIndex = *patch.OrderIndex
		}
		if patch.IsActive != nil {
			f.IsActive = *patch.IsActive
		}
		if patch.ClearParent {
			f.ParentID = nil
		} else if patch.ParentID != nil {
			if err := checkParent(ctx, tx, id, *patch.ParentID); err != nil {
				return err
			}
			p := *patch.ParentID
			f.ParentID = &p
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE features SET name = ?, icon = ?, route = ?, parent_id = ?, order_index = ?,
				is_active = ?, updated_at = ?, updated_by = ?, version = version + 1
			WHERE id = ?`,
			f.Name, f.Icon, f.Route, parentArg(f.ParentID), f.OrderIndex,
			f.IsActive, now, patch.Actor, id)
		if err != nil {
			return fmt.Errorf("failed to update feature: %w", err)
		}

		if patch.RoleCodes != nil {
			roles := normalizeRoles(*patch.RoleCodes)
			if err := replaceRoles(ctx, tx, "feature_roles", "feature_id", id, roles, patch.Actor, now); err != nil {
				return err
			}
		}

		result, err = getFeatureWhere(ctx, tx, "f.id = ?", id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteFeature soft-deletes a feature. Its children are left in place and
// simply stop appearing in navigation trees.
func (s *SQLiteStorage) DeleteFeature(ctx context.Context, id int64, actor string) error {
	now := s.now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE features SET is_active = FALSE, deleted_at = ?, updated_at = ?, updated_by = ?,
			version = version + 1
		WHERE id = ? AND deleted_at IS NULL`,
		now, now, actor, id)
	if err != nil {
		return fmt.Errorf("failed to delete feature: %w", err)
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

// GetFeature retrieves a live feature by ID.
func (s *SQLiteStorage) GetFeature(ctx context.Context, id int64) (*Feature, error) {
	return getFeatureWhere(ctx, s.db, "f.id = ? AND f.deleted_at IS NULL", id)
}

// GetFeatureByCode retrieves a live feature by its code.
func (s *SQLiteStorage) GetFeatureByCode(ctx context.Context, code string) (*Feature, error) {
	return getFeatureWhere(ctx, s.db, "f.code = ? AND f.deleted_at IS NULL", code)
}

// ListFeatures returns all live features with their role sets.
func (s *SQLiteStorage) ListFeatures(ctx context.Context) ([]*Feature, error) {
	features, err := s.queryFeatures(ctx,
		"SELECT "+featureColumns+" FROM features f WHERE f.deleted_at IS NULL ORDER BY f.order_index ASC, f.id ASC")
	if err != nil {
		return nil, err
	}

	roles, err := s.roleIndex(ctx,
		`SELECT fr.feature_id, fr.role_code FROM feature_roles fr
			JOIN features f ON f.id = fr.feature_id
		WHERE f.deleted_at IS NULL ORDER BY fr.role_code ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load feature roles: %w", err)
	}

	for _, f := range features {
		if codes, ok := roles[f.ID]; ok {
			f.RoleCodes = codes
		}
	}

	return features, nil
}

// ListFeatureMatches returns one row per (active feature, matching role) pair for
// the given role codes. A feature reachable through two roles appears twice, each
// copy carrying only the role it matched on; callers merge them.
func (s *SQLiteStorage) ListFeatureMatches(ctx context.Context, roleCodes []string) ([]*Feature, error) {
	roleCodes = normalizeRoles(roleCodes)
	if len(roleCodes) == 0 {
		return []*Feature{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(roleCodes)), ", ")
	args := make([]any, len(roleCodes))
	for i, code := range roleCodes {
		args[i] = code
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+featureColumns+`, fr.role_code FROM features f
			JOIN feature_roles fr ON fr.feature_id = f.id
		WHERE f.is_active = TRUE AND f.deleted_at IS NULL AND fr.role_code IN (`+placeholders+`)
		ORDER BY f.id ASC, fr.role_code ASC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature matches: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	matches := make([]*Feature, 0)
	for rows.Next() {
		var role string
		f, err := scanFeature(rows, &role)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feature match: %w", err)
		}
		f.RoleCodes = []string{role}
		matches = append(matches, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feature matches: %w", err)
	}

	return matches, nil
}

func (s *SQLiteStorage) queryFeatures(ctx context.Context, query string, args ...any) ([]*Feature, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query features: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	features := make([]*Feature, 0)
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feature row: %w", err)
		}
		features = append(features, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating features: %w", err)
	}

	return features, nil
}
