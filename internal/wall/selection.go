package wall

// SelectionController enforces the single-selection invariant over the
// registry. Selection changes share the registry mutex with reconciliation,
// so removal of the selected entity always deselects first within the same
// critical section, and at most one entity is selected at any observable
// instant.
type SelectionController struct {
	registry *EntityRegistry
}

// NewSelectionController creates a controller over the given registry.
func NewSelectionController(registry *EntityRegistry) *SelectionController {
	return &SelectionController{registry: registry}
}

// Select marks the entity with the given id as selected, deselecting any
// previously selected entity. Only the final selection state is published.
// Returns ErrNotFound if no entity has that id; state is unchanged.
func (s *SelectionController) Select(id string) error {
	return s.registry.selectEntity(id)
}

// Deselect clears the current selection. Returns false if nothing was
// selected.
func (s *SelectionController) Deselect() bool {
	return s.registry.deselect()
}

// Current returns a snapshot of the currently selected entity.
func (s *SelectionController) Current() (EntitySnapshot, bool) {
	return s.registry.selected()
}
