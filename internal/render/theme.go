package render

// Theme holds colors for graph rendering.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string

	// Edge colors by provenance category.
	EdgeJNIEnv     string // JNIEnv function table calls
	EdgeJavaVM     string // JavaVM function table calls
	EdgeDirect     string // BL and invoke calls
	EdgeUnresolved string // unannotated BLR/BR
	EdgeTrue       string // taken conditional branch
	EdgeFalse      string // fallthrough conditional branch

	// Node accents.
	StubFill     string // terminal blocks, external classes
	NativeFill   string // native methods
	ExternalText string // external / unresolved targets

	// Signal severities.
	SignalHigh   string
	SignalMedium string
	SignalLow    string

	// Cluster styling.
	ClusterBorder string // subgraph cluster border
	ClusterLabel  string // subgraph cluster label text
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",

	EdgeJNIEnv:     "#0B3D91", // NASA blue
	EdgeJavaVM:     "#00695C", // teal
	EdgeDirect:     "#424242", // dark gray
	EdgeUnresolved: "#FC3D21", // NASA red
	EdgeTrue:       "#0B3D91",
	EdgeFalse:      "#FC3D21",

	StubFill:     "#ECEFF1", // blue-gray 50
	NativeFill:   "#FFF3E0", // orange 50
	ExternalText: "#9E9E9E",

	SignalHigh:   "#FFCDD2", // red 100
	SignalMedium: "#FFE0B2", // orange 100
	SignalLow:    "#E3F2FD", // blue 50

	ClusterBorder: "#BDBDBD",
	ClusterLabel:  "#757575",
}
