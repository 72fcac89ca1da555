package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"

	"github.com/J41RO/MeStore-sub006/internal/access"
	"github.com/J41RO/MeStore-sub006/internal/db/models"
	"github.com/J41RO/MeStore-sub006/internal/repository"
	"github.com/J41RO/MeStore-sub006/internal/services/hierarchy"
)

// BootstrapResult reports what one catalog application changed.
type BootstrapResult struct {
	// Created is how many definitions inserted new catalog rows.
	Created int `json:"created"`

	// Updated is how many definitions changed existing rows.
	Updated int `json:"updated"`

	// Unchanged is how many definitions matched existing rows exactly.
	Unchanged int `json:"unchanged"`

	// Discrepancies counts definitions whose explicit clearance sits below
	// the static hierarchy threshold for their triple. The catalog value
	// still wins; the count surfaces the divergence.
	Discrepancies int `json:"discrepancies"`
}

// Loader applies validated definitions to the permissions table.
type Loader struct {
	permissions repository.PermissionRepository
}

// NewLoader creates a catalog loader.
func NewLoader(permissions repository.PermissionRepository) (*Loader, error) {
	if permissions == nil {
		return nil, fmt.Errorf("permission repository is required")
	}
	return &Loader{permissions: permissions}, nil
}

// Apply upserts definitions into the catalog, keyed by canonical name.
//
// Every definition is validated before the first write, so a bad entry
// aborts the whole application with nothing applied. Rows already
// matching their definition are left untouched; changed rows keep their
// ID so existing grants stay attached, with the repository bumping the
// version.
func (l *Loader) Apply(ctx context.Context, definitions []Definition) (*BootstrapResult, error) {
	rows := make([]*models.Permission, 0, len(definitions))
	byName := make(map[string]int, len(definitions))
	result := &BootstrapResult{}

	// Step 1: Validate everything up front.
	for i, def := range definitions {
		row, err := toPermission(def)
		if err != nil {
			return nil, fmt.Errorf("definition %d (%s): %w", i+1, def.Name, err)
		}
		if prev, dup := byName[row.Name]; dup {
			return nil, fmt.Errorf("definition %d (%s): duplicates definition %d", i+1, def.Name, prev+1)
		}
		byName[row.Name] = i

		floor := hierarchy.RequiredClearance(row.Key())
		if row.RequiredClearance < floor {
			log.Printf("WARNING: Catalog entry %s requires clearance %d, below the hierarchy threshold %d",
				row.Name, row.RequiredClearance, floor)
			result.Discrepancies++
		}

		rows = append(rows, row)
	}

	// Step 2: Upsert each row.
	for _, row := range rows {
		existing, err := l.permissions.GetByName(ctx, row.Name)
		switch {
		case err == nil:
			if !needsUpdate(existing, row) {
				result.Unchanged++
				continue
			}
			applyDefinition(existing, row)
			if err := l.permissions.Update(ctx, existing); err != nil {
				return result, fmt.Errorf("update permission %s: %w", row.Name, err)
			}
			result.Updated++
		case errors.Is(err, repository.ErrNotFound):
			if err := l.permissions.Create(ctx, row); err != nil {
				return result, fmt.Errorf("create permission %s: %w", row.Name, err)
			}
			result.Created++
		default:
			return result, fmt.Errorf("load permission %s: %w", row.Name, err)
		}
	}

	return result, nil
}

// ApplyFile parses a catalog document from disk and applies it.
func (l *Loader) ApplyFile(ctx context.Context, path string) (*BootstrapResult, error) {
	defs, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return l.Apply(ctx, defs)
}

// toPermission converts a definition into a catalog row, canonicalizing
// the name through the key parser.
func toPermission(def Definition) (*models.Permission, error) {
	key, err := access.ParseKey(def.Name)
	if err != nil {
		return nil, err
	}

	if !access.ValidClearance(def.RequiredClearance) {
		return nil, fmt.Errorf("required clearance %d outside [%d, %d]",
			def.RequiredClearance, access.MinClearance, access.MaxClearance)
	}

	risk := access.RiskMedium
	if def.RiskLevel != "" {
		risk, err = access.ParseRiskLevel(def.RiskLevel)
		if err != nil {
			return nil, err
		}
	}

	return &models.Permission{
		Name:              key.String(),
		Resource:          key.Resource,
		Action:            key.Action,
		Scope:             key.Scope,
		RequiredClearance: def.RequiredClearance,
		Inheritable:       def.Inheritable,
		Delegatable:       def.Delegatable,
		RequiresMFA:       def.RequiresMFA,
		RequiresApproval:  def.RequiresApproval,
		Conditions:        def.Conditions,
		RiskLevel:         risk,
		Description:       def.Description,
	}, nil
}

// needsUpdate reports whether the stored row differs from the definition
// in any field the catalog owns.
func needsUpdate(existing, next *models.Permission) bool {
	return existing.RequiredClearance != next.RequiredClearance ||
		existing.Inheritable != next.Inheritable ||
		existing.Delegatable != next.Delegatable ||
		existing.RequiresMFA != next.RequiresMFA ||
		existing.RequiresApproval != next.RequiresApproval ||
		existing.RiskLevel != next.RiskLevel ||
		existing.Description != next.Description ||
		!reflect.DeepEqual(existing.Conditions, next.Conditions)
}

// applyDefinition copies catalog-owned fields onto the stored row,
// preserving identity, timestamps, and version for the repository.
func applyDefinition(existing, next *models.Permission) {
	existing.RequiredClearance = next.RequiredClearance
	existing.Inheritable = next.Inheritable
	existing.Delegatable = next.Delegatable
	existing.RequiresMFA = next.RequiresMFA
	existing.RequiresApproval = next.RequiresApproval
	existing.Conditions = next.Conditions
	existing.RiskLevel = next.RiskLevel
	existing.Description = next.Description
}
