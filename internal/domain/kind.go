package domain

// ResourceKind identifies one of the three prerequisites of the map widget.
type ResourceKind string

const (
	KindToken  ResourceKind = "token"
	KindModule ResourceKind = "module"
	KindDOM    ResourceKind = "dom"
)

// String returns the kind name.
func (k ResourceKind) String() string {
	return string(k)
}

// AllKinds lists the resource kinds in acquisition order.
var AllKinds = []ResourceKind{KindToken, KindModule, KindDOM}

// ReleaseOrder lists the resource kinds in reverse dependency order.
var ReleaseOrder = []ResourceKind{KindDOM, KindModule, KindToken}

// Dependencies returns the kinds that must be ready before k can be acquired.
func (k ResourceKind) Dependencies() []ResourceKind {
	if k == KindModule {
		return []ResourceKind{KindToken}
	}
	return nil
}
