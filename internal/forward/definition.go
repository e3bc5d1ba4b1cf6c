package forward

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/validation"
)

// ErrInvalidDefinition is wrapped by every error returned from Validate.
var ErrInvalidDefinition = errors.New("invalid forward definition")

// Definition is a user-authored port-forward, persisted as one element of
// the definitions file. Optional fields are nil when absent.
type Definition struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Context    *string `json:"context,omitempty"`
	Namespace  *string `json:"namespace,omitempty"`
	LocalPort  *string `json:"localPort,omitempty"`
	RemotePort string  `json:"remotePort"`
	Enabled    bool    `json:"enabled"`
}

// NewID returns a fresh opaque identifier for a definition.
func NewID() string {
	return uuid.NewString()
}

// NewDefinition builds a disabled definition with a generated ID.
func NewDefinition(name, remotePort string) Definition {
	return Definition{
		ID:         NewID(),
		Name:       name,
		RemotePort: remotePort,
	}
}

// Optional turns an empty string into nil so it is omitted when persisted.
func Optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Value dereferences an optional field, reporting whether it was set to a
// non-empty value.
func Value(p *string) (string, bool) {
	if p == nil || *p == "" {
		return "", false
	}
	return *p, true
}

// Clone returns a copy that shares no pointers with d.
func (d Definition) Clone() Definition {
	c := d
	c.Context = clonePtr(d.Context)
	c.Namespace = clonePtr(d.Namespace)
	c.LocalPort = clonePtr(d.LocalPort)
	return c
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Merge copies the user-authored fields of other onto d. ID and Enabled are
// kept: the ID is immutable and the run state only changes through start
// and stop.
func (d Definition) Merge(other Definition) Definition {
	merged := d.Clone()
	o := other.Clone()
	merged.Name = o.Name
	merged.Context = o.Context
	merged.Namespace = o.Namespace
	merged.LocalPort = o.LocalPort
	merged.RemotePort = o.RemotePort
	return merged
}

// PortSpec returns "local:remote" when a local port is set, else the remote
// port alone.
func (d Definition) PortSpec() string {
	if local, ok := Value(d.LocalPort); ok {
		return local + ":" + d.RemotePort
	}
	return d.RemotePort
}

// Args builds the kubectl arguments for the forward.
func (d Definition) Args() []string {
	args := []string{"port-forward", d.Name, d.PortSpec()}
	if kubeContext, ok := Value(d.Context); ok {
		args = append(args, "--context="+kubeContext)
	}
	if namespace, ok := Value(d.Namespace); ok {
		args = append(args, "--namespace="+namespace)
	}
	return args
}

// Label is a short human readable description used in logs.
func (d Definition) Label() string {
	return fmt.Sprintf("%s %s", d.Name, d.PortSpec())
}

// Validate checks the invariants a definition must hold before it is added
// or edited.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDefinition)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if strings.ContainsAny(d.Name, " \t\n") {
		return fmt.Errorf("%w: name %q must not contain whitespace", ErrInvalidDefinition, d.Name)
	}
	if d.RemotePort == "" {
		return fmt.Errorf("%w: remotePort is required", ErrInvalidDefinition)
	}
	if err := validatePort("remotePort", d.RemotePort); err != nil {
		return err
	}
	if local, ok := Value(d.LocalPort); ok {
		if err := validatePort("localPort", local); err != nil {
			return err
		}
	}
	return nil
}

func validatePort(field, value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: %s %q is not a number", ErrInvalidDefinition, field, value)
	}
	if msgs := validation.IsValidPortNum(port); len(msgs) > 0 {
		return fmt.Errorf("%w: %s %q: %s", ErrInvalidDefinition, field, value, strings.Join(msgs, "; "))
	}
	return nil
}
