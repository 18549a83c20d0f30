package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/vaultgate/pkg/contracts"
	"github.com/custodia-labs/vaultgate/pkg/gate"
)

// BootstrapDoc is the on-disk shape of the one-time initialization batch.
type BootstrapDoc struct {
	Admin       string            `yaml:"admin" json:"admin"`
	Permissions []PermissionDoc   `yaml:"permissions" json:"permissions"`
	Admins      []AdminBindingDoc `yaml:"admins,omitempty" json:"admins,omitempty"`
	Grants      []GrantDoc        `yaml:"grants,omitempty" json:"grants,omitempty"`
}

// PermissionDoc binds one operation on one target to a role.
type PermissionDoc struct {
	Target              string `yaml:"target" json:"target"`
	Op                  string `yaml:"op" json:"op"`
	Role                uint64 `yaml:"role" json:"role"`
	MinimalDelaySeconds int64  `yaml:"minimal_delay_seconds" json:"minimal_delay_seconds"`
}

// AdminBindingDoc assigns the admin role for a role.
type AdminBindingDoc struct {
	Role  uint64 `yaml:"role" json:"role"`
	Admin uint64 `yaml:"admin" json:"admin"`
}

// GrantDoc makes one account a member of a role.
type GrantDoc struct {
	Role                  uint64 `yaml:"role" json:"role"`
	Account               string `yaml:"account" json:"account"`
	ExecutionDelaySeconds int64  `yaml:"execution_delay_seconds" json:"execution_delay_seconds"`
}

// bootstrapSchema validates bootstrap documents before they reach the
// control plane.
const bootstrapSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["admin", "permissions"],
	"properties": {
		"admin": {"type": "string", "minLength": 1},
		"permissions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["target", "op", "role"],
				"properties": {
					"target": {"type": "string", "minLength": 1},
					"op": {"type": "string", "minLength": 1},
					"role": {"type": "integer", "minimum": 0},
					"minimal_delay_seconds": {"type": "integer", "minimum": 0}
				}
			}
		},
		"admins": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["role", "admin"],
				"properties": {
					"role": {"type": "integer", "minimum": 0},
					"admin": {"type": "integer", "minimum": 0}
				}
			}
		},
		"grants": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["role", "account"],
				"properties": {
					"role": {"type": "integer", "minimum": 0},
					"account": {"type": "string", "minLength": 1},
					"execution_delay_seconds": {"type": "integer", "minimum": 0}
				}
			}
		}
	}
}`

// LoadBootstrap reads, validates, and decodes a YAML bootstrap document.
func LoadBootstrap(path string) (*BootstrapDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bootstrap file: %w", err)
	}
	return ParseBootstrap(raw)
}

// ParseBootstrap validates a YAML bootstrap document against the embedded
// schema and decodes it.
func ParseBootstrap(raw []byte) (*BootstrapDoc, error) {
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("invalid bootstrap YAML: %w", err)
	}

	// Round-trip through JSON so the schema validator sees JSON-shaped
	// values regardless of the YAML decoder's native types.
	jsonBytes, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("bootstrap document is not JSON-representable: %w", err)
	}
	var jsonValue any
	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.UseNumber()
	if err := dec.Decode(&jsonValue); err != nil {
		return nil, err
	}

	schema, err := jsonschema.CompileString("bootstrap.schema.json", bootstrapSchema)
	if err != nil {
		return nil, fmt.Errorf("bootstrap schema is invalid: %w", err)
	}
	if err := schema.Validate(jsonValue); err != nil {
		return nil, fmt.Errorf("bootstrap document failed validation: %w", err)
	}

	var doc BootstrapDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid bootstrap YAML: %w", err)
	}
	return &doc, nil
}

// Bootstrap converts the document into the control plane's batch form.
func (d *BootstrapDoc) Bootstrap() gate.Bootstrap {
	b := gate.Bootstrap{
		Permissions: make([]gate.FunctionPermission, 0, len(d.Permissions)),
		Admins:      make([]gate.AdminBinding, 0, len(d.Admins)),
		Grants:      make([]gate.Grant, 0, len(d.Grants)),
	}
	for _, p := range d.Permissions {
		b.Permissions = append(b.Permissions, gate.FunctionPermission{
			Target:       contracts.Address(p.Target),
			Op:           contracts.OpID(p.Op),
			Role:         contracts.RoleID(p.Role),
			MinimalDelay: time.Duration(p.MinimalDelaySeconds) * time.Second,
		})
	}
	for _, a := range d.Admins {
		b.Admins = append(b.Admins, gate.AdminBinding{
			Role:  contracts.RoleID(a.Role),
			Admin: contracts.RoleID(a.Admin),
		})
	}
	for _, g := range d.Grants {
		b.Grants = append(b.Grants, gate.Grant{
			Role:           contracts.RoleID(g.Role),
			Account:        contracts.Address(g.Account),
			ExecutionDelay: time.Duration(g.ExecutionDelaySeconds) * time.Second,
		})
	}
	return b
}
