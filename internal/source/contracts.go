package source

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/tally/internal/aggregate"
	"github.com/roach88/tally/internal/ir"
)

type rawContract struct {
	Address     string `yaml:"address"`
	Beneficiary string `yaml:"beneficiary"`
	Goal        string `yaml:"goal"`
	Deadline    string `yaml:"deadline"`
}

// LoadContracts reads a contract terms file into a StaticContracts table.
func LoadContracts(path string) (aggregate.StaticContracts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contracts: %w", err)
	}
	return ParseContracts(path, data)
}

// ParseContracts validates a contract terms document. A contract listed
// twice is an error rather than last-one-wins.
func ParseContracts(filename string, data []byte) (aggregate.StaticContracts, error) {
	return parseContracts(filename, data, "#Contracts")
}

// ParseContractsSection is like ParseContracts but tolerates other
// top-level keys.
func ParseContractsSection(filename string, data []byte) (aggregate.StaticContracts, error) {
	return parseContracts(filename, data, "#ContractsSection")
}

func parseContracts(filename string, data []byte, envelope string) (aggregate.StaticContracts, error) {
	s, err := compileSchema()
	if err != nil {
		return nil, err
	}
	v, err := s.extract(filename, data)
	if err != nil {
		return nil, err
	}
	if err := s.check(envelope, v); err != nil {
		return nil, err
	}

	nodes, err := sequenceNodes(data, "contracts")
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}

	contracts := make(aggregate.StaticContracts, len(nodes))
	var errs []error
	for i, node := range nodes {
		var raw rawContract
		if err := node.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s: contracts[%d]: %w", filename, i, err)
		}
		fail := func(code, field, format string, args ...any) {
			errs = append(errs, ValidationError{
				File:    filename,
				Line:    node.Line,
				Code:    code,
				Field:   fmt.Sprintf("contracts[%d].%s", i, field),
				Message: fmt.Sprintf(format, args...),
			})
		}

		address, err := ir.ParseAddress(raw.Address)
		if err != nil {
			fail(ErrBadAddress, "address", "%v", err)
			continue
		}
		if _, dup := contracts[address]; dup {
			fail(ErrDuplicateTerms, "address", "%s listed more than once", address)
			continue
		}
		beneficiary, err := ir.ParseAddress(raw.Beneficiary)
		if err != nil {
			fail(ErrBadAddress, "beneficiary", "%v", err)
		}
		goal, err := ir.ParseAmount(raw.Goal)
		if err != nil {
			fail(ErrBadAmount, "goal", "%v", err)
		}
		deadline, err := parseTime(raw.Deadline)
		if err != nil {
			fail(ErrBadTime, "deadline", "%v", err)
		}
		contracts[address] = ir.ProjectTerms{
			Beneficiary: beneficiary,
			GoalAmount:  goal,
			Deadline:    deadline,
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return contracts, nil
}
