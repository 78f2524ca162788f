package protocol

// Unknown is the category of traffic on unmapped ports.
const Unknown = "unknown"

// DefaultPortCategories maps well-known service ports to application
// category labels understood by the feature extractor.
var DefaultPortCategories = map[int]string{
	53:    "DNS",
	80:    "Web Browse",
	443:   "Web Browse",
	8080:  "Web Browse",
	1935:  "Video Streaming",
	554:   "Video Streaming",
	5222:  "Instant Messaging",
	3074:  "Gaming",
	27015: "Gaming",
	25565: "Gaming",
	22:    "Remote Access",
	3389:  "Remote Access",
	3306:  "Database",
}

// Categorizer assigns an application category to a flow by port.
type Categorizer struct {
	ports map[int]string
}

// NewCategorizer layers overrides on top of DefaultPortCategories.
func NewCategorizer(overrides map[int]string) *Categorizer {
	ports := make(map[int]string, len(DefaultPortCategories)+len(overrides))
	for p, c := range DefaultPortCategories {
		ports[p] = c
	}
	for p, c := range overrides {
		ports[p] = c
	}
	return &Categorizer{ports: ports}
}

// Category looks up the destination port first, then the source port so
// response traffic is labeled like its request.
func (c *Categorizer) Category(t FiveTuple) string {
	if cat, ok := c.ports[int(t.DstPort)]; ok {
		return cat
	}
	if cat, ok := c.ports[int(t.SrcPort)]; ok {
		return cat
	}
	return Unknown
}
