package voxel

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Material identifies what a voxel is made of. Zero is always air.
type Material uint16

const (
	Air Material = iota
	Stone
	Dirt
	Grass
	Sand
	Bedrock
	Water
	Glass
	Log
	Leaves
	Snow
	Lava
	Gravel
	Flower
)

// MaterialDefinition holds the traversal-relevant properties of a material.
type MaterialDefinition struct {
	ID          Material
	Name        string
	Transparent bool
	Emissive    bool
	Color       mgl32.Vec3
}

var definitions = map[Material]*MaterialDefinition{
	Air:     {ID: Air, Name: "air", Transparent: true},
	Stone:   {ID: Stone, Name: "stone", Color: mgl32.Vec3{0.50, 0.50, 0.52}},
	Dirt:    {ID: Dirt, Name: "dirt", Color: mgl32.Vec3{0.45, 0.32, 0.20}},
	Grass:   {ID: Grass, Name: "grass", Color: mgl32.Vec3{0.33, 0.62, 0.24}},
	Sand:    {ID: Sand, Name: "sand", Color: mgl32.Vec3{0.86, 0.80, 0.56}},
	Bedrock: {ID: Bedrock, Name: "bedrock", Color: mgl32.Vec3{0.20, 0.20, 0.22}},
	Water:   {ID: Water, Name: "water", Transparent: true, Color: mgl32.Vec3{0.20, 0.35, 0.80}},
	Glass:   {ID: Glass, Name: "glass", Transparent: true, Color: mgl32.Vec3{0.80, 0.90, 0.95}},
	Log:     {ID: Log, Name: "log", Color: mgl32.Vec3{0.40, 0.28, 0.16}},
	Leaves:  {ID: Leaves, Name: "leaves", Color: mgl32.Vec3{0.22, 0.48, 0.18}},
	Snow:    {ID: Snow, Name: "snow", Color: mgl32.Vec3{0.94, 0.95, 0.97}},
	Lava:    {ID: Lava, Name: "lava", Emissive: true, Color: mgl32.Vec3{1.00, 0.45, 0.10}},
	Gravel:  {ID: Gravel, Name: "gravel", Color: mgl32.Vec3{0.55, 0.52, 0.50}},
	Flower:  {ID: Flower, Name: "flower", Transparent: true, Color: mgl32.Vec3{0.90, 0.30, 0.35}},
}

// Register adds or replaces a material definition. Call before streaming starts;
// the table is read concurrently by generation workers.
func Register(def *MaterialDefinition) {
	definitions[def.ID] = def
}

// Lookup returns the definition for m, or nil when m was never registered.
func Lookup(m Material) *MaterialDefinition {
	return definitions[m]
}

// IsAir reports whether m is the empty material.
func (m Material) IsAir() bool {
	return m == Air
}

// IsSolid reports whether m occupies space. Every non-air material does,
// including transparent ones; transparency is resolved during traversal.
func (m Material) IsSolid() bool {
	return m != Air
}

// IsTransparent reports whether rays continue through m.
func (m Material) IsTransparent() bool {
	if def := definitions[m]; def != nil {
		return def.Transparent
	}
	return false
}

// IsEmissive reports whether m emits light.
func (m Material) IsEmissive() bool {
	if def := definitions[m]; def != nil {
		return def.Emissive
	}
	return false
}

// Color returns the base albedo of m. Unknown materials render magenta.
func (m Material) Color() mgl32.Vec3 {
	if def := definitions[m]; def != nil {
		return def.Color
	}
	return mgl32.Vec3{1, 0, 1}
}

func (m Material) String() string {
	if def := definitions[m]; def != nil {
		return def.Name
	}
	return "unknown"
}
