package dimse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/network"
)

// Association represents one configured remote AE this server can issue
// C-ECHO/C-FIND requests against. The SDK's SCU negotiates its own
// association per call rather than holding a persistent socket open, so
// Association itself just holds the validated destination and tracks
// when it was last used for pool.go's idle eviction.
type Association struct {
	destination *network.Destination
	timeout     time.Duration
	mu          sync.Mutex
	isConnected bool
	lastUsed    time.Time
}

// AssociationConfig holds configuration for DICOM associations.
type AssociationConfig struct {
	Host       string
	Port       int
	CallingAET string
	CalledAET  string
	Timeout    time.Duration
}

// NewAssociation creates a new DICOM association.
func NewAssociation(config AssociationConfig) *Association {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Association{
		destination: &network.Destination{
			HostName:  config.Host,
			Port:      config.Port,
			CalledAE:  config.CalledAET,
			CallingAE: config.CallingAET,
			IsCFind:   true,
			IsCMove:   false,
			IsCStore:  false,
		},
		timeout: config.Timeout,
	}
}

// Connect validates the destination is usable. There's no transport to
// dial up front -- services.SCU opens and tears down its own association
// for every EchoSCU/FindSCU call -- so this only marks the Association
// ready and stamps lastUsed for the pool.
func (a *Association) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destination.HostName == "" || a.destination.Port == 0 {
		return fmt.Errorf("dimse: host and port are required")
	}

	a.isConnected = true
	a.lastUsed = time.Now()
	return nil
}

// Close releases the association. No persistent connection is held, so
// this just flips the connected flag pool.go checks before reuse.
func (a *Association) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.isConnected = false
	return nil
}

// IsConnected checks if the association is still active.
func (a *Association) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isConnected
}

// UpdateLastUsed updates the last used timestamp.
func (a *Association) UpdateLastUsed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastUsed = time.Now()
}

// GetLastUsed returns the last used timestamp.
func (a *Association) GetLastUsed() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastUsed
}
