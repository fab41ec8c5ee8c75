package core

import "cloudlab/pkg/domain"

// Catalog supplies read-only lab definitions. Implementations load labs at
// startup; the service never mutates them.
type Catalog interface {
	Lab(id string) (domain.Lab, bool)
	Labs() []domain.Lab
}
