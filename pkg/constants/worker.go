package constants

// Worker status constants, derived from heartbeat age on every read
type WorkerStatus string

const (
	WorkerStatusActive WorkerStatus = "active" // Heartbeat fresh
	WorkerStatusIdle   WorkerStatus = "idle"   // Heartbeat aging, not yet expired
)

func (s WorkerStatus) String() string {
	return string(s)
}

// Worker type constants
const (
	WorkerTypeLocal = "local"
	WorkerTypeCloud = "cloud"
)
