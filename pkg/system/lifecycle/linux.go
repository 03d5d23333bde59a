package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/login1"
	portalboxd "github.com/portalbox/portalboxd/pkg"
)

const requestTimeout = 10 * time.Second

var _ portalboxd.LifecycleManager = &LifecycleManagerLinux{}

// LifecycleManagerLinux reboots and powers off the host through systemd's
// logind, so shutdown inhibitors and session bookkeeping are honored.
type LifecycleManagerLinux struct{}

func NewLifecycleManager() LifecycleManagerLinux {
	return LifecycleManagerLinux{}
}

func (t LifecycleManagerLinux) Reboot() error {
	conn, err := login1.New()
	if err != nil {
		return fmt.Errorf("connect to logind: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := conn.RebootWithContext(ctx, false); err != nil {
		return fmt.Errorf("request reboot: %w", err)
	}
	return nil
}

func (t LifecycleManagerLinux) Shutdown() error {
	conn, err := login1.New()
	if err != nil {
		return fmt.Errorf("connect to logind: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := conn.PowerOffWithContext(ctx, false); err != nil {
		return fmt.Errorf("request poweroff: %w", err)
	}
	return nil
}
