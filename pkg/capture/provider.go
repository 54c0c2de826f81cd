package capture

import "context"

// Provider is the capture state machine's external seam: anything that can
// run a CaptureSession to completion and accept cancellation. Engine is the
// native wire-protocol implementation; pkg/sigrok.Adapter is a drop-in
// replacement that shells out to an external CLI instead.
type Provider interface {
	Start(ctx context.Context, session *CaptureSession) ErrorCode
	Stop(ctx context.Context) bool
}

var _ Provider = (*Engine)(nil)
