// Package circuit implements the netlist data model placed by the
// agents: rectangular cells connected by weighted nets, and the
// wirelength and overlap metrics of a placement.
package circuit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CellType describes the kind of a cell
type CellType string

// Available cell types
const (
	Standard CellType = "standard"
	Macro    CellType = "macro"
	IO       CellType = "io"
)

// Valid returns whether t is a known cell type
func (t CellType) Valid() bool {
	switch t {
	case Standard, Macro, IO:
		return true
	}
	return false
}

// Point is a position on the chip canvas
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pin describes a connection point of a cell
type Pin struct {
	ID        string  `json:"id,omitempty"`
	Name      string  `json:"name,omitempty"`
	Direction string  `json:"direction,omitempty"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
}

// Cell is a rectangular block to be placed. Position is the lower-left
// corner of the cell and is nil while the cell is unplaced.
type Cell struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Width    float64  `json:"width"`
	Height   float64  `json:"height"`
	Position *Point   `json:"position,omitempty"`
	Pins     []Pin    `json:"pins"`
	Type     CellType `json:"type"`
}

// Placed returns whether the cell has a position
func (c Cell) Placed() bool {
	return c.Position != nil
}

// Center returns the centre of a placed cell
func (c Cell) Center() Point {
	return Point{c.Position.X + c.Width/2, c.Position.Y + c.Height/2}
}

// Net connects pins of one or more cells. Each pin is referenced as
// <cellId>_<pinIndex>.
type Net struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Pins   []string `json:"pins"`
	Weight float64  `json:"weight"`
}

// ErrInvalidCircuit is wrapped by all validation errors
var ErrInvalidCircuit = errors.New("invalid circuit")

// ParsePinRef splits a pin reference into its cell ID and pin index.
// The pin index follows the last underscore, so cell IDs may contain
// underscores.
func ParsePinRef(ref string) (cellID string, pin int, err error) {
	i := strings.LastIndex(ref, "_")
	if i <= 0 || i == len(ref)-1 {
		return "", 0, fmt.Errorf("parsepinref: %w: malformed pin reference "+
			"%q", ErrInvalidCircuit, ref)
	}

	pin, err = strconv.Atoi(ref[i+1:])
	if err != nil || pin < 0 {
		return "", 0, fmt.Errorf("parsepinref: %w: malformed pin index in "+
			"%q", ErrInvalidCircuit, ref)
	}
	return ref[:i], pin, nil
}

// Circuit is a netlist of cells and nets
type Circuit struct {
	Cells []Cell `json:"cells"`
	Nets  []Net  `json:"nets"`
}

// New returns a circuit over cells and nets
func New(cells []Cell, nets []Net) *Circuit {
	return &Circuit{Cells: cells, Nets: nets}
}

// Validate returns an error if the circuit is malformed: it has no
// cells, duplicate or empty cell IDs, non-positive cell dimensions,
// unknown cell types, negative net weights, or nets that reference
// unknown cells.
func (c *Circuit) Validate() error {
	if len(c.Cells) == 0 {
		return fmt.Errorf("validate: %w: no cells", ErrInvalidCircuit)
	}

	ids := make(map[string]struct{}, len(c.Cells))
	for i, cell := range c.Cells {
		if cell.ID == "" {
			return fmt.Errorf("validate: %w: cell %d has no ID",
				ErrInvalidCircuit, i)
		}
		if _, ok := ids[cell.ID]; ok {
			return fmt.Errorf("validate: %w: duplicate cell ID %q",
				ErrInvalidCircuit, cell.ID)
		}
		ids[cell.ID] = struct{}{}

		if cell.Width <= 0 || cell.Height <= 0 {
			return fmt.Errorf("validate: %w: cell %q has dimensions %vx%v",
				ErrInvalidCircuit, cell.ID, cell.Width, cell.Height)
		}
		if !cell.Type.Valid() {
			return fmt.Errorf("validate: %w: cell %q has unknown type %q",
				ErrInvalidCircuit, cell.ID, cell.Type)
		}
	}

	for _, net := range c.Nets {
		if net.Weight < 0 {
			return fmt.Errorf("validate: %w: net %q has negative weight",
				ErrInvalidCircuit, net.ID)
		}
		for _, ref := range net.Pins {
			id, _, err := ParsePinRef(ref)
			if err != nil {
				return fmt.Errorf("validate: net %q: %w", net.ID, err)
			}
			if _, ok := ids[id]; !ok {
				return fmt.Errorf("validate: %w: net %q references unknown "+
					"cell %q", ErrInvalidCircuit, net.ID, id)
			}
		}
	}
	return nil
}

// Index returns the position of each cell in Cells by ID
func (c *Circuit) Index() map[string]int {
	index := make(map[string]int, len(c.Cells))
	for i, cell := range c.Cells {
		index[cell.ID] = i
	}
	return index
}

// NetCells returns the indices of the distinct cells a net connects,
// in the order of their first pin. Malformed pin references and
// unknown cells are skipped.
func (c *Circuit) NetCells(net Net, index map[string]int) []int {
	seen := make(map[int]struct{}, len(net.Pins))
	cells := make([]int, 0, len(net.Pins))
	for _, ref := range net.Pins {
		id, _, err := ParsePinRef(ref)
		if err != nil {
			continue
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		cells = append(cells, i)
	}
	return cells
}

// Clone returns a deep copy of the circuit
func (c *Circuit) Clone() *Circuit {
	out := &Circuit{
		Cells: make([]Cell, len(c.Cells)),
		Nets:  make([]Net, len(c.Nets)),
	}
	for i, cell := range c.Cells {
		out.Cells[i] = cell
		if cell.Position != nil {
			p := *cell.Position
			out.Cells[i].Position = &p
		}
		out.Cells[i].Pins = append([]Pin(nil), cell.Pins...)
	}
	for i, net := range c.Nets {
		out.Nets[i] = net
		out.Nets[i].Pins = append([]string(nil), net.Pins...)
	}
	return out
}

// Unplace removes the positions of all cells
func (c *Circuit) Unplace() {
	for i := range c.Cells {
		c.Cells[i].Position = nil
	}
}
