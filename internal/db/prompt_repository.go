package db

import (
	"context"
	"fmt"

	"github.com/carlosapgomes/caseflow/internal/models"
)

// PromptRepository reads active prompt_templates rows. Prompt authoring and
// activation go through the admin surface; this repository only ever reads
// the row with is_active=true per name, which the
// ux_prompt_templates_name_active_true partial unique index guarantees is
// at most one row.
type PromptRepository struct {
	db *Client
}

// NewPromptRepository builds a PromptRepository over an open Client.
func NewPromptRepository(client *Client) *PromptRepository {
	return &PromptRepository{db: client}
}

// GetActive returns the currently active prompt_templates row for name, or
// ErrNotFound if no row is active under that name.
func (r *PromptRepository) GetActive(ctx context.Context, name string) (models.PromptTemplate, error) {
	const q = `SELECT * FROM prompt_templates WHERE name = $1 AND is_active = true`
	var row models.PromptTemplate
	if err := r.db.GetContext(ctx, &row, q, name); err != nil {
		return models.PromptTemplate{}, wrapNotFound(fmt.Errorf("get active prompt %q: %w", name, err))
	}
	return row, nil
}
