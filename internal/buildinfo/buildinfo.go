package buildinfo

// Populated via -ldflags "-X github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/buildinfo.Version=..."
var (
	Version   = "dev"
	Revision  = "unknown"
	BuildDate = "unknown"
)
