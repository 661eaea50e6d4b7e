// Package host declares the narrow interfaces through which the scripting
// runtime reaches host application code it does not own.
package host

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ContentLoader loads a content file (a family, a block) into the active
// document and optionally starts placing it.
type ContentLoader interface {
	LoadContent(ctx context.Context, document any, path string) error
}

// DynamoRequest describes one visual-graph run.
type DynamoRequest struct {
	GraphPath      string
	Automate       bool
	ForceManualRun bool
	CheckExisting  bool
	ModelNodesInfo string
	Application    any
	Document       any
}

// DynamoRunner runs visual-scripting graphs.
type DynamoRunner interface {
	RunGraph(ctx context.Context, req DynamoRequest) error
}

// GrasshopperRunner opens or runs parametric definitions.
type GrasshopperRunner interface {
	RunDefinition(ctx context.Context, path string, application any) error
}

// URLOpener opens a link in the user's browser.
type URLOpener interface {
	OpenURL(ctx context.Context, url string) error
}

// Collaborators bundles the host services engines may call. Any field may be
// nil when the host does not provide that service.
type Collaborators struct {
	Content     ContentLoader
	Dynamo      DynamoRunner
	Grasshopper GrasshopperRunner
	Browser     URLOpener
}

// VersionGate reports whether a feature is available for a host version.
type VersionGate struct {
	Feature    string
	constraint *semver.Constraints
}

// NewVersionGate builds a gate from a semver constraint such as ">= 2021".
func NewVersionGate(feature, constraint string) (*VersionGate, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("invalid constraint for %s: %w", feature, err)
	}
	return &VersionGate{Feature: feature, constraint: c}, nil
}

// MustVersionGate is NewVersionGate for constant constraints.
func MustVersionGate(feature, constraint string) *VersionGate {
	gate, err := NewVersionGate(feature, constraint)
	if err != nil {
		panic(err)
	}
	return gate
}

// Allows reports whether hostVersion satisfies the gate. Unparseable versions
// are not allowed.
func (g *VersionGate) Allows(hostVersion string) bool {
	v, err := semver.NewVersion(hostVersion)
	if err != nil {
		return false
	}
	return g.constraint.Check(v)
}
