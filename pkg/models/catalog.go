package models

// Endpoint describes one API operation the catalog exposes, uniquely
// identified by (Entity, Operation). Endpoints are loaded once at startup
// and never mutated during query handling (spec.md §3).
type Endpoint struct {
	ID          string
	Entity      string
	Operation   string
	HTTPMethod  string
	URLPattern  string
	Required    []Parameter
	Optional    []Parameter
	Notes       string
	Depends     []string // IDs of endpoints this one depends on
}

// Parameter is a single named input to an Endpoint.
type Parameter struct {
	Name        string
	Description string
}

// Column describes one column of a Table/Node in the schema catalog.
type Column struct {
	Name string
	Type string
}

// Table is one relation in the schema catalog (the relational mirror of
// the tenant, or a node type in a graph store).
type Table struct {
	Name          string
	Columns       []Column
	Relationships []string
}

// Catalog is the process-wide, read-mostly description of what the tenant
// exposes: the API half (Endpoints) and the schema half (Tables).
//
// Modeled as an arena-like map indexed by stable ids rather than a cyclic
// object graph of pointers (spec.md §9 design note): Endpoint.Depends and
// Table.Relationships hold ids, not references, which keeps the catalog
// trivially serializable and avoids lifetime knots.
type Catalog struct {
	Endpoints map[string]Endpoint // keyed by ID
	Tables    map[string]Table    // keyed by Name

	// byEntityOp indexes Endpoints by (entity, operation) for O(1) lookup,
	// per spec.md §3 ("Endpoints are indexed by (entity, operation)").
	byEntityOp map[entityOpKey]string
}

type entityOpKey struct {
	entity    string
	operation string
}

// NewCatalog builds a Catalog and its (entity, operation) index.
func NewCatalog(endpoints []Endpoint, tables []Table) *Catalog {
	c := &Catalog{
		Endpoints:  make(map[string]Endpoint, len(endpoints)),
		Tables:     make(map[string]Table, len(tables)),
		byEntityOp: make(map[entityOpKey]string, len(endpoints)),
	}
	for _, e := range endpoints {
		c.Endpoints[e.ID] = e
		c.byEntityOp[entityOpKey{e.Entity, e.Operation}] = e.ID
	}
	for _, t := range tables {
		c.Tables[t.Name] = t
	}
	return c
}

// LookupEndpoint returns the Endpoint for (entity, operation), if any.
func (c *Catalog) LookupEndpoint(entity, operation string) (Endpoint, bool) {
	id, ok := c.byEntityOp[entityOpKey{entity, operation}]
	if !ok {
		return Endpoint{}, false
	}
	ep, ok := c.Endpoints[id]
	return ep, ok
}

// HasTable reports whether a table/node of the given name exists.
func (c *Catalog) HasTable(name string) bool {
	_, ok := c.Tables[name]
	return ok
}

// Subset narrows a Catalog down to the given entity/operation pairs and
// table names — used by the Pre-Planner to hand the Planner a minimal
// relevant slice of the full catalog (spec.md §4.4).
func (c *Catalog) Subset(pairs []EntityOperation, tables []string) *Catalog {
	var endpoints []Endpoint
	for _, p := range pairs {
		if ep, ok := c.LookupEndpoint(p.Entity, p.Operation); ok {
			endpoints = append(endpoints, ep)
		}
	}
	var tbls []Table
	for _, name := range tables {
		if t, ok := c.Tables[name]; ok {
			tbls = append(tbls, t)
		}
	}
	return NewCatalog(endpoints, tbls)
}

// EntityOperation names one (entity, operation) pair.
type EntityOperation struct {
	Entity    string
	Operation string
}
