package dimse

import (
	"context"
	"fmt"

	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/services"
)

// TimeoutCEcho is the C-ECHO timeout, in seconds, passed straight to the
// SDK's EchoSCU.
const TimeoutCEcho = 10

// CEcho performs a C-ECHO operation (DICOM ping) against the remote AE.
func (a *Association) CEcho(ctx context.Context) error {
	if !a.IsConnected() {
		if err := a.Connect(ctx); err != nil {
			return err
		}
	}

	a.UpdateLastUsed()

	scu := services.NewSCU(a.destination)
	if err := scu.EchoSCU(TimeoutCEcho); err != nil {
		return fmt.Errorf("C-ECHO failed: %w", err)
	}

	return nil
}
