package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoutingMatrix is the chain×protocol support table. It lives in its own
// YAML file so the matrix can be redeployed without touching service config.
type RoutingMatrix struct {
	Chains []MatrixChain `yaml:"chains"`
}

// MatrixChain lists the protocols registered for one chain, in priority
// order. Option queries and tie breaking follow this order.
type MatrixChain struct {
	ID        uint64   `yaml:"id"`
	Protocols []string `yaml:"protocols"`
}

// LoadRoutingMatrix reads and validates a routing matrix file.
func LoadRoutingMatrix(path string) (*RoutingMatrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing matrix: %w", err)
	}

	var matrix RoutingMatrix
	if err := yaml.Unmarshal(data, &matrix); err != nil {
		return nil, fmt.Errorf("failed to parse routing matrix: %w", err)
	}

	if len(matrix.Chains) == 0 {
		return nil, fmt.Errorf("routing matrix lists no chains")
	}
	seen := make(map[uint64]bool, len(matrix.Chains))
	for _, c := range matrix.Chains {
		if seen[c.ID] {
			return nil, fmt.Errorf("routing matrix lists chain %d twice", c.ID)
		}
		seen[c.ID] = true
		if len(c.Protocols) == 0 {
			return nil, fmt.Errorf("chain %d lists no protocols", c.ID)
		}
	}
	return &matrix, nil
}

// DefaultRoutingMatrix builds a matrix from the main config: every
// configured protocol is registered for each chain it names.
func DefaultRoutingMatrix(cfg *Config) *RoutingMatrix {
	byChain := make(map[uint64][]string)
	order := make([]uint64, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		order = append(order, c.ID)
	}
	for _, p := range cfg.Protocols {
		for _, chain := range p.Chains {
			byChain[chain] = append(byChain[chain], p.Protocol)
		}
	}

	matrix := &RoutingMatrix{}
	for _, id := range order {
		if protocols := byChain[id]; len(protocols) > 0 {
			matrix.Chains = append(matrix.Chains, MatrixChain{ID: id, Protocols: protocols})
		}
	}
	return matrix
}
