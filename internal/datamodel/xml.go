package datamodel

import (
	"bytes"
	"encoding/xml"
	"time"

	"codeberg.org/mutker/infologger/internal/errors"
)

// Serializer turns a model into the bytes handed back to the caller.
type Serializer interface {
	Serialize(m *Model) ([]byte, error)
}

// XMLSerializer writes the tasMessage XML document format.
type XMLSerializer struct {
	Indent bool
}

type xmlMessage struct {
	XMLName    xml.Name       `xml:"tasMessage"`
	DateTime   string         `xml:"dateTime,attr"`
	Version    string         `xml:"version,attr"`
	Containers []xmlContainer `xml:"tasInfo"`
}

type xmlContainer struct {
	ID      string      `xml:"id,attr"`
	Name    string      `xml:"name,attr"`
	Type    string      `xml:"type,attr"`
	Objects []xmlObject `xml:"obj"`
}

type xmlObject struct {
	ID         string         `xml:"id,attr"`
	Name       string         `xml:"name,attr"`
	Type       string         `xml:"type,attr"`
	Attributes []xmlAttribute `xml:"attr"`
	Children   []xmlObject    `xml:"obj"`
}

type xmlAttribute struct {
	Name     string `xml:"name,attr"`
	Value    string `xml:",chardata"`
	DataType string `xml:"dataType,attr"`
}

// Serialize implements Serializer.
func (s XMLSerializer) Serialize(m *Model) ([]byte, error) {
	errFactory := errors.New()

	if m == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "nil model")
	}

	msg := xmlMessage{
		DateTime: formatDateTime(m.DateTime),
		Version:  m.Version,
	}
	for _, c := range m.Containers {
		xc := xmlContainer{ID: c.ID, Name: c.Name, Type: c.Type}
		for _, o := range c.Objects {
			xc.Objects = append(xc.Objects, toXMLObject(o))
		}
		msg.Containers = append(msg.Containers, xc)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if s.Indent {
		enc.Indent("", "  ")
	}
	if err := enc.Encode(msg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	return buf.Bytes(), nil
}

func toXMLObject(o *Object) xmlObject {
	xo := xmlObject{ID: o.ID, Name: o.Name, Type: o.Type}
	for _, a := range o.Attributes {
		xo.Attributes = append(xo.Attributes, xmlAttribute(a))
	}
	for _, child := range o.Children {
		xo.Children = append(xo.Children, toXMLObject(child))
	}

	return xo
}

func formatDateTime(ts time.Time) string {
	return ts.Format("20060102150405") + ts.Format(".000")[1:]
}
