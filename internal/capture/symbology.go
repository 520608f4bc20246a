package capture

import (
	"encoding/json"
	"image"
)

// Symbology identifies the barcode family of a detected metadata object.
type Symbology int

const (
	SymbologyUnknown Symbology = iota
	SymbologyQR
	SymbologyDataMatrix
	SymbologyEAN13
	SymbologyEAN8
	SymbologyUPCA
	SymbologyUPCE
	SymbologyCode128
)

var symbologyNames = map[Symbology]string{
	SymbologyUnknown:    "unknown",
	SymbologyQR:         "qr",
	SymbologyDataMatrix: "datamatrix",
	SymbologyEAN13:      "ean13",
	SymbologyEAN8:       "ean8",
	SymbologyUPCA:       "upca",
	SymbologyUPCE:       "upce",
	SymbologyCode128:    "code128",
}

var symbologyFromName = map[string]Symbology{
	"unknown":    SymbologyUnknown,
	"qr":         SymbologyQR,
	"datamatrix": SymbologyDataMatrix,
	"ean13":      SymbologyEAN13,
	"ean8":       SymbologyEAN8,
	"upca":       SymbologyUPCA,
	"upce":       SymbologyUPCE,
	"code128":    SymbologyCode128,
}

func (s Symbology) String() string {
	if n, ok := symbologyNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseSymbology maps a lowercase name back to a Symbology.
func ParseSymbology(name string) (Symbology, bool) {
	s, ok := symbologyFromName[name]
	return s, ok
}

func (s Symbology) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Symbology) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := symbologyFromName[name]; ok {
		*s = v
	}
	return nil
}

// MetadataObject is a single machine-readable code found in a frame.
type MetadataObject struct {
	Type        Symbology       `json:"type"`
	StringValue string          `json:"stringValue,omitempty"`
	Bounds      image.Rectangle `json:"-"`
	// Run is the capture run of the frame the object was found in.
	Run         uint64          `json:"-"`
}
