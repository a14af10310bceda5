package aggregate

import (
	"context"

	"github.com/roach88/tally/internal/ir"
)

// ContractReader reads the deployment parameters of a project contract.
// It is the read-only collaborator EnsureProject consults on first sight of
// a project.
type ContractReader interface {
	ProjectTerms(ctx context.Context, project ir.Address) (ir.ProjectTerms, error)
}

// StaticContracts is a ContractReader backed by a fixed table, typically
// loaded from a contracts file by the source package.
type StaticContracts map[ir.Address]ir.ProjectTerms

// ProjectTerms implements ContractReader.
func (s StaticContracts) ProjectTerms(_ context.Context, project ir.Address) (ir.ProjectTerms, error) {
	terms, ok := s[project]
	if !ok {
		return ir.ProjectTerms{}, &Error{
			Code:    ErrCodeUnknownContract,
			Message: "no terms for project contract",
			Address: project,
		}
	}
	return terms, nil
}
