// Package datamodel holds the generic object tree finalized log data is
// converted into before serialization.
package datamodel

import (
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	TypeString = "QString"
	TypeInt    = "int"
)

// Model is the root of a serialized message.
type Model struct {
	DateTime   time.Time
	Version    string
	Containers []*Container
}

// Container groups objects coming from one source.
type Container struct {
	ID      string
	Name    string
	Type    string
	Objects []*Object
}

// Object is a named node carrying attributes and child objects.
type Object struct {
	ID         string
	Name       string
	Type       string
	Attributes []Attribute
	Children   []*Object
}

// Attribute is a single named value of an Object.
type Attribute struct {
	Name     string
	Value    string
	DataType string
}

// New returns an empty model stamped with the given time.
func New(now time.Time) *Model {
	return &Model{
		DateTime: now,
		Version:  strings.TrimPrefix(runtime.Version(), "go"),
	}
}

// AddContainer appends a new container to the model.
func (m *Model) AddContainer(id, name, typ string) *Container {
	c := &Container{ID: id, Name: name, Type: typ}
	m.Containers = append(m.Containers, c)

	return c
}

// AddObject appends o to the container and returns it.
func (c *Container) AddObject(o *Object) *Object {
	c.Objects = append(c.Objects, o)

	return o
}

// AddObject appends an empty child object.
func (o *Object) AddObject() *Object {
	child := &Object{}
	o.Children = append(o.Children, child)

	return child
}

// AddAttribute appends a string attribute. Duplicate names are kept.
func (o *Object) AddAttribute(name, value string) {
	o.Attributes = append(o.Attributes, Attribute{Name: name, Value: value, DataType: TypeString})
}

// AddIntAttribute appends an integer attribute.
func (o *Object) AddIntAttribute(name string, value int) {
	o.Attributes = append(o.Attributes, Attribute{Name: name, Value: strconv.Itoa(value), DataType: TypeInt})
}

// Attribute returns the value of the first attribute called name.
func (o *Object) Attribute(name string) (string, bool) {
	for _, a := range o.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}

	return "", false
}
