package gap

import (
	"time"

	"github.com/pkg/errors"

	"github.com/rigado/bredr/hci"
)

type config struct {
	requestTimeout   time.Duration
	denyCooldown     time.Duration
	pageScanInterval uint16
	pageScanWindow   uint16
	pageScanType     byte
	acceptRole       hci.Role
	allowRoleSwitch  bool
	scoHandler       SCOHandler
}

func defaultConfig() config {
	return config{
		requestTimeout:   30 * time.Second,
		denyCooldown:     2 * time.Second,
		pageScanInterval: 0x0800,
		pageScanWindow:   0x0011,
		pageScanType:     hci.PageScanInterlaced,
		acceptRole:       hci.RoleSlave,
		allowRoleSwitch:  true,
	}
}

// Option configures a ConnectionManager.
type Option func(*config) error

// OptRequestTimeout bounds each outbound connection attempt. On expiry
// the attempt is canceled and its callbacks fail.
func OptRequestTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		c.requestTimeout = d
		return nil
	}
}

// OptDenyCooldown sets how long inbound connections from a peer are
// rejected after we disconnect it locally.
func OptDenyCooldown(d time.Duration) Option {
	return func(c *config) error {
		if d < 0 {
			return errors.New("deny cooldown must not be negative")
		}
		c.denyCooldown = d
		return nil
	}
}

// OptPageScanActivity overrides the page scan interval and window used
// when the host is made connectable. Units of 0.625 ms.
func OptPageScanActivity(interval, window uint16) Option {
	return func(c *config) error {
		if interval < 0x0012 || interval > 0x1000 {
			return errors.Errorf("page scan interval 0x%04X out of range", interval)
		}
		if window < 0x0011 || window > interval {
			return errors.Errorf("page scan window 0x%04X out of range", window)
		}
		c.pageScanInterval = interval
		c.pageScanWindow = window
		return nil
	}
}

// OptInterlacedPageScan selects interlaced or standard page scan.
func OptInterlacedPageScan(enabled bool) Option {
	return func(c *config) error {
		if enabled {
			c.pageScanType = hci.PageScanInterlaced
		} else {
			c.pageScanType = hci.PageScanStandard
		}
		return nil
	}
}

// OptAcceptRole sets the role requested when accepting inbound
// connections.
func OptAcceptRole(r hci.Role) Option {
	return func(c *config) error {
		if r != hci.RoleMaster && r != hci.RoleSlave {
			return errors.Errorf("invalid role %d", r)
		}
		c.acceptRole = r
		return nil
	}
}

// OptAllowRoleSwitch controls whether outbound connections permit the
// peer to become master.
func OptAllowRoleSwitch(allow bool) Option {
	return func(c *config) error {
		c.allowRoleSwitch = allow
		return nil
	}
}

// OptSCOHandler enables inbound SCO/eSCO admission and routes outcomes
// to h.
func OptSCOHandler(h SCOHandler) Option {
	return func(c *config) error {
		c.scoHandler = h
		return nil
	}
}
